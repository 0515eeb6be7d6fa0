package txn

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/mesh-intelligence/graphctx/pkg/types"
)

// recordingStorage is an in-memory Storage that records transaction
// lifecycle events.
type recordingStorage struct {
	mu        sync.Mutex
	events    []string
	seq       int
	entities  map[string]types.EntityRow
	relations map[string]types.RelationRow
	saved     []string

	beginErr  error
	commitErr error
	// onCommit runs at the start of every Commit.
	onCommit func()
}

func newRecordingStorage() *recordingStorage {
	return &recordingStorage{
		entities:  map[string]types.EntityRow{},
		relations: map[string]types.RelationRow{},
	}
}

func (s *recordingStorage) record(ev string) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingStorage) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

func (s *recordingStorage) Begin(ctx context.Context) (types.Tx, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	s.record("begin")
	s.mu.Lock()
	defer s.mu.Unlock()
	return &recordingTx{
		s:         s,
		entities:  maps.Clone(s.entities),
		relations: maps.Clone(s.relations),
	}, nil
}

func (s *recordingStorage) LoadTypes(context.Context) ([]types.EntityType, []types.RelationType, error) {
	return nil, nil, nil
}

func (s *recordingStorage) Close() error { return nil }

type recordingTx struct {
	s         *recordingStorage
	entities  map[string]types.EntityRow
	relations map[string]types.RelationRow
	saved     []string
	done      bool
}

func (t *recordingTx) nextID(prefix string) string {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.seq++
	return fmt.Sprintf("%s%d", prefix, t.s.seq)
}

func (t *recordingTx) CreateEntity(_ context.Context, typ string, props types.Properties) (*types.EntityRow, error) {
	t.s.record("create_entity")
	row := types.EntityRow{ID: t.nextID("e"), Type: typ, Properties: props.Plain()}
	t.entities[row.ID] = row
	return &row, nil
}

func (t *recordingTx) GetEntity(_ context.Context, id string) (*types.EntityRow, error) {
	row, ok := t.entities[id]
	if !ok {
		return nil, types.EntityNotFound(id)
	}
	return &row, nil
}

func (t *recordingTx) UpdateEntity(_ context.Context, id string, props types.Properties) (*types.EntityRow, error) {
	row, ok := t.entities[id]
	if !ok {
		return nil, types.EntityNotFound(id)
	}
	row.Properties = props.Plain()
	t.entities[id] = row
	return &row, nil
}

func (t *recordingTx) DeleteEntity(_ context.Context, id string) error {
	if _, ok := t.entities[id]; !ok {
		return types.EntityNotFound(id)
	}
	delete(t.entities, id)
	for rid, r := range t.relations {
		if r.FromID == id || r.ToID == id {
			delete(t.relations, rid)
		}
	}
	return nil
}

func (t *recordingTx) CreateRelation(_ context.Context, typ, from, to string, props types.Properties) (*types.RelationRow, error) {
	t.s.record("create_relation")
	row := types.RelationRow{ID: t.nextID("r"), Type: typ, FromID: from, ToID: to, Properties: props.Plain()}
	t.relations[row.ID] = row
	return &row, nil
}

func (t *recordingTx) GetRelation(_ context.Context, id string) (*types.RelationRow, error) {
	row, ok := t.relations[id]
	if !ok {
		return nil, types.RelationNotFound(id)
	}
	return &row, nil
}

func (t *recordingTx) UpdateRelation(_ context.Context, id string, props types.Properties) (*types.RelationRow, error) {
	row, ok := t.relations[id]
	if !ok {
		return nil, types.RelationNotFound(id)
	}
	row.Properties = props.Plain()
	t.relations[id] = row
	return &row, nil
}

func (t *recordingTx) DeleteRelation(_ context.Context, id string) error {
	if _, ok := t.relations[id]; !ok {
		return types.RelationNotFound(id)
	}
	delete(t.relations, id)
	return nil
}

func (t *recordingTx) ExecuteQuery(_ context.Context, q types.BackendQuery) ([]types.EntityRow, error) {
	var out []types.EntityRow
	for _, id := range slices.Sorted(maps.Keys(t.entities)) {
		row := t.entities[id]
		if row.Type != q.EntityType {
			continue
		}
		props, err := types.PropertiesFromAny(row.Properties)
		if err != nil {
			return nil, err
		}
		ok := true
		for _, p := range q.Predicates {
			ok = ok && p.Match(row.ID, props)
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (t *recordingTx) ExecuteTraversal(context.Context, types.BackendTraversal) (types.TraversalRows, error) {
	return types.TraversalRows{}, nil
}

func (t *recordingTx) SaveEntityType(_ context.Context, def types.EntityType) error {
	t.s.record("save_entity_type")
	t.saved = append(t.saved, def.Name)
	return nil
}

func (t *recordingTx) SaveRelationType(_ context.Context, def types.RelationType) error {
	t.s.record("save_relation_type")
	t.saved = append(t.saved, def.Name)
	return nil
}

func (t *recordingTx) Commit() error {
	if t.done {
		return errors.New("transaction already finished")
	}
	if t.s.onCommit != nil {
		t.s.onCommit()
	}
	if t.s.commitErr != nil {
		t.s.record("commit_failed")
		return t.s.commitErr
	}
	t.done = true
	t.s.record("commit")
	t.s.mu.Lock()
	t.s.entities = t.entities
	t.s.relations = t.relations
	t.s.saved = append(t.s.saved, t.saved...)
	t.s.mu.Unlock()
	return nil
}

func (t *recordingTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.s.record("rollback")
	return nil
}
