package txn

import (
	"context"
	"fmt"
	"sync"

	"github.com/mesh-intelligence/graphctx/pkg/types"
)

// Scope is the execution context bound to one open transaction. Every
// mutation is validated before it is forwarded to storage. Calls on a Scope
// are serialized, and all of them fail with ErrScopeClosed once the
// transaction has finished.
type Scope struct {
	m   *Manager
	tx  types.Tx
	ctx context.Context
	id  string

	mu   sync.Mutex
	done bool
}

// ID returns the transaction id.
func (s *Scope) ID() string { return s.id }

// Context returns the context the transaction runs under.
func (s *Scope) Context() context.Context { return s.ctx }

// WithTransaction runs op in the scope's own transaction. It never commits;
// an error from op propagates to the outermost WithTransaction, which rolls
// back.
func (s *Scope) WithTransaction(op func(*Scope) error) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done {
		return types.ErrScopeClosed
	}
	return op(s)
}

func (s *Scope) finish() {
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
}

// do runs fn against the transaction while holding the scope lock.
func (s *Scope) do(fn func(tx types.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return types.ErrScopeClosed
	}
	if err := s.ctx.Err(); err != nil {
		return cancelled(err)
	}
	return fn(s.tx)
}

// CreateEntity validates props against typeName and creates the entity.
func (s *Scope) CreateEntity(typeName string, props types.Properties) (types.Entity, error) {
	var out types.Entity
	err := s.do(func(tx types.Tx) error {
		return s.createEntity(tx, typeName, props, &out)
	})
	return out, err
}

func (s *Scope) createEntity(tx types.Tx, typeName string, props types.Properties, out *types.Entity) error {
	norm, err := s.m.val.EntityPayload(typeName, props)
	if err != nil {
		return err
	}
	row, err := tx.CreateEntity(s.ctx, typeName, norm)
	if err != nil {
		return fmt.Errorf("create entity: %w", err)
	}
	*out, err = s.m.tr.Entity(*row)
	return err
}

// GetEntity reads an entity by id.
func (s *Scope) GetEntity(id string) (types.Entity, error) {
	var out types.Entity
	err := s.do(func(tx types.Tx) error {
		row, err := tx.GetEntity(s.ctx, id)
		if err != nil {
			return err
		}
		out, err = s.m.tr.Entity(*row)
		return err
	})
	return out, err
}

// UpdateEntity merges patch into the entity's properties, validates the
// result against the entity's type and stores it. A null patch value
// removes the property.
func (s *Scope) UpdateEntity(id string, patch types.Properties) (types.Entity, error) {
	var out types.Entity
	err := s.do(func(tx types.Tx) error {
		row, err := tx.GetEntity(s.ctx, id)
		if err != nil {
			return err
		}
		cur, err := s.m.tr.Entity(*row)
		if err != nil {
			return err
		}
		norm, err := s.m.val.EntityUpdate(row.Type, cur.Properties, patch)
		if err != nil {
			return err
		}
		row, err = tx.UpdateEntity(s.ctx, id, norm)
		if err != nil {
			return fmt.Errorf("update entity: %w", err)
		}
		out, err = s.m.tr.Entity(*row)
		return err
	})
	return out, err
}

// DeleteEntity deletes the entity and every relation attached to it.
func (s *Scope) DeleteEntity(id string) error {
	return s.do(func(tx types.Tx) error {
		return tx.DeleteEntity(s.ctx, id)
	})
}

// CreateRelation validates the relation, reading both endpoints in this
// transaction, and creates it.
func (s *Scope) CreateRelation(typeName, fromID, toID string, props types.Properties) (types.Relation, error) {
	var out types.Relation
	err := s.do(func(tx types.Tx) error {
		return s.createRelation(tx, typeName, fromID, toID, props, &out)
	})
	return out, err
}

func (s *Scope) createRelation(tx types.Tx, typeName, fromID, toID string, props types.Properties, out *types.Relation) error {
	norm, err := s.m.val.RelationPayload(s.ctx, tx, typeName, fromID, toID, props)
	if err != nil {
		return err
	}
	row, err := tx.CreateRelation(s.ctx, typeName, fromID, toID, norm)
	if err != nil {
		return fmt.Errorf("create relation: %w", err)
	}
	*out, err = s.m.tr.Relation(*row)
	return err
}

// GetRelation reads a relation by id.
func (s *Scope) GetRelation(id string) (types.Relation, error) {
	var out types.Relation
	err := s.do(func(tx types.Tx) error {
		row, err := tx.GetRelation(s.ctx, id)
		if err != nil {
			return err
		}
		out, err = s.m.tr.Relation(*row)
		return err
	})
	return out, err
}

// UpdateRelation merges patch into the relation's properties. Endpoints
// cannot be changed.
func (s *Scope) UpdateRelation(id string, patch types.Properties) (types.Relation, error) {
	var out types.Relation
	err := s.do(func(tx types.Tx) error {
		row, err := tx.GetRelation(s.ctx, id)
		if err != nil {
			return err
		}
		cur, err := s.m.tr.Relation(*row)
		if err != nil {
			return err
		}
		norm, err := s.m.val.RelationUpdate(row.Type, cur.Properties, patch)
		if err != nil {
			return err
		}
		row, err = tx.UpdateRelation(s.ctx, id, norm)
		if err != nil {
			return fmt.Errorf("update relation: %w", err)
		}
		out, err = s.m.tr.Relation(*row)
		return err
	})
	return out, err
}

// DeleteRelation deletes a relation by id.
func (s *Scope) DeleteRelation(id string) error {
	return s.do(func(tx types.Tx) error {
		return tx.DeleteRelation(s.ctx, id)
	})
}

// Query returns the entities matching spec.
func (s *Scope) Query(spec types.QuerySpec) ([]types.Entity, error) {
	q, err := s.m.tr.Query(spec)
	if err != nil {
		return nil, err
	}
	var out []types.Entity
	err = s.do(func(tx types.Tx) error {
		rows, err := tx.ExecuteQuery(s.ctx, q)
		if err != nil {
			return fmt.Errorf("execute query: %w", err)
		}
		out, err = s.m.tr.Entities(rows)
		return err
	})
	return out, err
}

// Traverse walks the graph from spec's start entity. The start entity must
// exist and is not part of the result.
func (s *Scope) Traverse(spec types.TraversalSpec) (types.TraversalResult, error) {
	bt, err := s.m.tr.Traversal(spec)
	if err != nil {
		return types.TraversalResult{}, err
	}
	var out types.TraversalResult
	err = s.do(func(tx types.Tx) error {
		if _, err := tx.GetEntity(s.ctx, bt.Start); err != nil {
			return err
		}
		rows, err := tx.ExecuteTraversal(s.ctx, bt)
		if err != nil {
			return fmt.Errorf("execute traversal: %w", err)
		}
		out, err = s.m.tr.TraversalResult(rows)
		return err
	})
	return out, err
}
