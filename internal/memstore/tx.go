package memstore

import (
	"context"
	"slices"
	"sort"

	"github.com/mesh-intelligence/graphctx/pkg/types"
)

type tx struct {
	store *Store
	ctx   context.Context
	state state
	done  bool
}

func (t *tx) check(ctx context.Context) error {
	if t.done {
		return types.Storagef(errTxDone, "memstore")
	}
	if err := t.ctx.Err(); err != nil {
		return types.Storagef(err, "memstore")
	}
	if err := ctx.Err(); err != nil {
		return types.Storagef(err, "memstore")
	}
	return nil
}

func (t *tx) CreateEntity(ctx context.Context, entityType string, props types.Properties) (*types.EntityRow, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	id, err := newID()
	if err != nil {
		return nil, err
	}
	now := t.store.now()
	row := types.EntityRow{ID: id, Type: entityType, Properties: props.Plain(), CreatedAt: now, UpdatedAt: now}
	t.state.entities[id] = row
	t.state.entityOrder = append(t.state.entityOrder, id)
	return &row, nil
}

func (t *tx) GetEntity(ctx context.Context, id string) (*types.EntityRow, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	row, ok := t.state.entities[id]
	if !ok {
		return nil, types.EntityNotFound(id)
	}
	return &row, nil
}

func (t *tx) UpdateEntity(ctx context.Context, id string, props types.Properties) (*types.EntityRow, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	row, ok := t.state.entities[id]
	if !ok {
		return nil, types.EntityNotFound(id)
	}
	row.Properties = props.Plain()
	row.UpdatedAt = t.store.now()
	t.state.entities[id] = row
	return &row, nil
}

func (t *tx) DeleteEntity(ctx context.Context, id string) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	if _, ok := t.state.entities[id]; !ok {
		return types.EntityNotFound(id)
	}
	delete(t.state.entities, id)
	t.state.entityOrder = slices.DeleteFunc(t.state.entityOrder, func(e string) bool { return e == id })

	t.state.relationOrder = slices.DeleteFunc(t.state.relationOrder, func(rid string) bool {
		r := t.state.relations[rid]
		if r.FromID == id || r.ToID == id {
			delete(t.state.relations, rid)
			return true
		}
		return false
	})
	return nil
}

func (t *tx) CreateRelation(ctx context.Context, relationType, fromID, toID string, props types.Properties) (*types.RelationRow, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	for _, end := range []string{fromID, toID} {
		if _, ok := t.state.entities[end]; !ok {
			return nil, types.EntityNotFound(end)
		}
	}
	id, err := newID()
	if err != nil {
		return nil, err
	}
	now := t.store.now()
	row := types.RelationRow{
		ID:         id,
		Type:       relationType,
		FromID:     fromID,
		ToID:       toID,
		Properties: props.Plain(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	t.state.relations[id] = row
	t.state.relationOrder = append(t.state.relationOrder, id)
	return &row, nil
}

func (t *tx) GetRelation(ctx context.Context, id string) (*types.RelationRow, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	row, ok := t.state.relations[id]
	if !ok {
		return nil, types.RelationNotFound(id)
	}
	return &row, nil
}

func (t *tx) UpdateRelation(ctx context.Context, id string, props types.Properties) (*types.RelationRow, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	row, ok := t.state.relations[id]
	if !ok {
		return nil, types.RelationNotFound(id)
	}
	row.Properties = props.Plain()
	row.UpdatedAt = t.store.now()
	t.state.relations[id] = row
	return &row, nil
}

func (t *tx) DeleteRelation(ctx context.Context, id string) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	if _, ok := t.state.relations[id]; !ok {
		return types.RelationNotFound(id)
	}
	delete(t.state.relations, id)
	t.state.relationOrder = slices.DeleteFunc(t.state.relationOrder, func(r string) bool { return r == id })
	return nil
}

// ExecuteQuery scans entities in insertion order.
func (t *tx) ExecuteQuery(ctx context.Context, q types.BackendQuery) ([]types.EntityRow, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	var out []types.EntityRow
	for _, id := range t.state.entityOrder {
		row := t.state.entities[id]
		if row.Type != q.EntityType {
			continue
		}
		ok, err := matches(row, q.Predicates)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}
	if q.OrderByID {
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	}
	return page(out, q.Offset, q.Limit), nil
}

func matches(row types.EntityRow, preds []types.Predicate) (bool, error) {
	if len(preds) == 0 {
		return true, nil
	}
	props, err := types.PropertiesFromAny(row.Properties)
	if err != nil {
		return false, types.Storagef(err, "decode entity %s", row.ID)
	}
	for _, p := range preds {
		if !p.Match(row.ID, props) {
			return false, nil
		}
	}
	return true, nil
}

func page[T any](rows []T, offset, limit int) []T {
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit != types.NoLimit && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

// ExecuteTraversal walks breadth first from t.Start. Relations are reported
// when both endpoints are the start or a reported entity.
func (t *tx) ExecuteTraversal(ctx context.Context, bt types.BackendTraversal) (types.TraversalRows, error) {
	if err := t.check(ctx); err != nil {
		return types.TraversalRows{}, err
	}
	var res types.TraversalRows
	if _, ok := t.state.entities[bt.Start]; !ok {
		return res, types.EntityNotFound(bt.Start)
	}

	visited := map[string]bool{bt.Start: true}
	reported := map[string]bool{bt.Start: true}
	seenRel := map[string]bool{}
	var walked []types.RelationRow

	frontier := []string{bt.Start}
	for depth := 0; len(frontier) > 0 && (bt.MaxDepth == types.UnboundedDepth || depth < bt.MaxDepth); depth++ {
		if err := ctx.Err(); err != nil {
			return types.TraversalRows{}, types.Storagef(err, "traverse")
		}
		inFrontier := make(map[string]bool, len(frontier))
		for _, id := range frontier {
			inFrontier[id] = true
		}
		var next []string
		for _, rid := range t.state.relationOrder {
			r := t.state.relations[rid]
			if len(bt.RelationTypes) > 0 && !slices.Contains(bt.RelationTypes, r.Type) {
				continue
			}
			for _, hop := range hops(r, bt.Direction, inFrontier) {
				if !seenRel[r.ID] {
					seenRel[r.ID] = true
					walked = append(walked, r)
				}
				if visited[hop] {
					continue
				}
				visited[hop] = true
				next = append(next, hop)
				e := t.state.entities[hop]
				if len(bt.EntityTypes) == 0 || slices.Contains(bt.EntityTypes, e.Type) {
					reported[hop] = true
					res.Entities = append(res.Entities, types.TraversalHit{Entity: e, Depth: depth + 1})
				}
			}
		}
		frontier = next
	}

	for _, r := range walked {
		if reported[r.FromID] && reported[r.ToID] {
			res.Relations = append(res.Relations, r)
		}
	}
	return res, nil
}

// hops returns the entities r leads to from the frontier in direction d.
func hops(r types.RelationRow, d types.Direction, frontier map[string]bool) []string {
	var out []string
	if (d == types.Outbound || d == types.Both) && frontier[r.FromID] {
		out = append(out, r.ToID)
	}
	if (d == types.Inbound || d == types.Both) && frontier[r.ToID] {
		out = append(out, r.FromID)
	}
	return out
}

func (t *tx) SaveEntityType(ctx context.Context, def types.EntityType) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	if cur, ok := t.state.entityTypes[def.Name]; ok {
		if cur.Equal(def) {
			return nil
		}
		return &types.Error{Kind: types.KindTypeConflict, Type: def.Name}
	}
	t.state.entityTypes[def.Name] = def.Clone()
	return nil
}

func (t *tx) SaveRelationType(ctx context.Context, def types.RelationType) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	if cur, ok := t.state.relationTypes[def.Name]; ok {
		if cur.Equal(def) {
			return nil
		}
		return &types.Error{Kind: types.KindTypeConflict, Type: def.Name}
	}
	t.state.relationTypes[def.Name] = def.Clone()
	return nil
}

// Commit publishes the transaction's state. A context that is already done
// or a closed store aborts the commit.
func (t *tx) Commit() error {
	if t.done {
		return errTxDone
	}
	if err := t.ctx.Err(); err != nil {
		return err
	}
	t.store.mu.Lock()
	if t.store.closed {
		t.store.mu.Unlock()
		return types.Storagef(types.ErrDetached, "commit")
	}
	t.store.state = t.state
	t.store.mu.Unlock()
	t.finish()
	return nil
}

// Rollback discards the transaction's state.
func (t *tx) Rollback() error {
	if t.done {
		return nil
	}
	t.finish()
	return nil
}

func (t *tx) finish() {
	t.done = true
	t.state = state{}
	<-t.store.sem
}
