package txn

import (
	"fmt"

	"github.com/mesh-intelligence/graphctx/pkg/types"
)

// ApplyBatch runs steps in order. Relation endpoints may name the ref of an
// entity created by an earlier step. The first failing step aborts the
// batch; since the batch runs in the scope's transaction, the outer
// WithTransaction rolls back everything the earlier steps created.
func (s *Scope) ApplyBatch(steps []types.BatchStep) (types.BatchResult, error) {
	res := types.BatchResult{
		Entities:  []types.Entity{},
		Relations: []types.Relation{},
		Refs:      map[string]string{},
	}
	if len(steps) == 0 {
		return res, types.InvalidQuery("steps", "batch has no steps")
	}

	err := s.do(func(tx types.Tx) error {
		for i, step := range steps {
			if err := s.applyStep(tx, i, step, &res); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return types.BatchResult{}, err
	}
	return res, nil
}

func (s *Scope) applyStep(tx types.Tx, i int, step types.BatchStep, res *types.BatchResult) error {
	if _, dup := res.Refs[step.Ref]; step.Ref != "" && dup {
		return types.InvalidQuery(fmt.Sprintf("steps[%d].ref", i), "ref %q is already used", step.Ref)
	}
	switch step.Op {
	case types.BatchCreateEntity:
		var e types.Entity
		if err := s.createEntity(tx, step.EntityType, step.Properties, &e); err != nil {
			return fmt.Errorf("batch step %d: %w", i, err)
		}
		res.Entities = append(res.Entities, e)
		if step.Ref != "" {
			res.Refs[step.Ref] = e.ID
		}
		return nil

	case types.BatchCreateRelation:
		from, err := resolve(res.Refs, i, "from_entity", step.From)
		if err != nil {
			return err
		}
		to, err := resolve(res.Refs, i, "to_entity", step.To)
		if err != nil {
			return err
		}
		var r types.Relation
		if err := s.createRelation(tx, step.RelationType, from, to, step.Properties, &r); err != nil {
			return fmt.Errorf("batch step %d: %w", i, err)
		}
		res.Relations = append(res.Relations, r)
		if step.Ref != "" {
			res.Refs[step.Ref] = r.ID
		}
		return nil
	}
	return types.InvalidQuery(fmt.Sprintf("steps[%d].op", i), "unknown batch op %q", step.Op)
}

func resolve(refs map[string]string, i int, field, endpoint string) (string, error) {
	name, isRef := types.RefName(endpoint)
	if !isRef {
		return endpoint, nil
	}
	id, ok := refs[name]
	if !ok {
		return "", types.InvalidQuery(fmt.Sprintf("steps[%d].%s", i, field), "ref %q is not defined by an earlier step", name)
	}
	return id, nil
}
