// Package graph is the public entry point of the graph context service.
//
// A Graph runs every operation in its own storage transaction. Callers that
// need several operations to commit or roll back together use
// WithTransaction and the Scope it hands out.
package graph

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/graphctx/internal/ctxlog"
	"github.com/mesh-intelligence/graphctx/internal/memstore"
	"github.com/mesh-intelligence/graphctx/internal/registry"
	"github.com/mesh-intelligence/graphctx/internal/sqlite"
	"github.com/mesh-intelligence/graphctx/internal/txn"
	"github.com/mesh-intelligence/graphctx/pkg/types"
)

// Version is the release version of graphd.
const Version = "0.1.0"

// Revision is the source revision, set at build time with -ldflags -X.
var Revision = "dev"

// Scope is a transaction-bound handle. See txn.Scope.
type Scope = txn.Scope

// Graph is a typed graph over a storage backend.
type Graph struct {
	storage types.Storage
	reg     *registry.Registry
	m       *txn.Manager
}

// New returns a Graph over storage, loading the type definitions it has
// saved.
func New(ctx context.Context, storage types.Storage) (*Graph, error) {
	reg := registry.New()
	m := txn.NewManager(storage, reg)
	if err := m.LoadTypes(ctx); err != nil {
		return nil, fmt.Errorf("load types: %w", err)
	}
	return &Graph{storage: storage, reg: reg, m: m}, nil
}

// OpenStorage creates the backend cfg selects. The memory backend keeps a
// JSONL snapshot in dataDir when dataDir is set.
func OpenStorage(cfg types.Config, dataDir string) (types.Storage, error) {
	switch cfg.Backend {
	case types.BackendSQLite:
		return sqlite.Open(dataDir)
	case types.BackendMemory:
		if dataDir == "" {
			return memstore.New(), nil
		}
		return memstore.Open(dataDir)
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrBackendUnknown, cfg.Backend)
	}
}

// Open creates the configured backend and a Graph over it.
func Open(ctx context.Context, cfg types.Config, dataDir string) (*Graph, error) {
	st, err := OpenStorage(cfg, dataDir)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Backend, err)
	}
	g, err := New(ctx, st)
	if err != nil {
		st.Close()
		return nil, err
	}
	ctxlog.FromContext(ctx).Info("graph opened", "backend", cfg.Backend, "data_dir", dataDir)
	return g, nil
}

// Close releases the storage backend.
func (g *Graph) Close() error { return g.storage.Close() }

// Manager returns the transaction manager.
func (g *Graph) Manager() *txn.Manager { return g.m }

// WithTransaction runs op in one transaction. See txn.Manager.
func (g *Graph) WithTransaction(ctx context.Context, op func(*Scope) error) error {
	return g.m.WithTransaction(ctx, op)
}

// RegisterEntityType registers and persists def. It reports whether the
// type is new.
func (g *Graph) RegisterEntityType(ctx context.Context, def types.EntityType) (bool, error) {
	return g.m.RegisterEntityType(ctx, def)
}

// RegisterRelationType registers and persists def.
func (g *Graph) RegisterRelationType(ctx context.Context, def types.RelationType) (bool, error) {
	return g.m.RegisterRelationType(ctx, def)
}

// EntityType returns the registered entity type called name.
func (g *Graph) EntityType(name string) (types.EntityType, error) { return g.reg.EntityType(name) }

// RelationType returns the registered relation type called name.
func (g *Graph) RelationType(name string) (types.RelationType, error) {
	return g.reg.RelationType(name)
}

// EntityTypes lists the registered entity types by name.
func (g *Graph) EntityTypes() []types.EntityType { return g.reg.EntityTypes() }

// RelationTypes lists the registered relation types by name.
func (g *Graph) RelationTypes() []types.RelationType { return g.reg.RelationTypes() }

// CreateEntity validates props against the entity type and stores a new
// entity.
func (g *Graph) CreateEntity(ctx context.Context, typeName string, props types.Properties) (types.Entity, error) {
	return txn.Do(ctx, g.m, func(s *Scope) (types.Entity, error) { return s.CreateEntity(typeName, props) })
}

// GetEntity returns the entity with the given id.
func (g *Graph) GetEntity(ctx context.Context, id string) (types.Entity, error) {
	return txn.Do(ctx, g.m, func(s *Scope) (types.Entity, error) { return s.GetEntity(id) })
}

// UpdateEntity merges patch into the entity's properties. A null value
// removes the property.
func (g *Graph) UpdateEntity(ctx context.Context, id string, patch types.Properties) (types.Entity, error) {
	return txn.Do(ctx, g.m, func(s *Scope) (types.Entity, error) { return s.UpdateEntity(id, patch) })
}

// DeleteEntity deletes the entity and every relation attached to it.
func (g *Graph) DeleteEntity(ctx context.Context, id string) error {
	return g.m.WithTransaction(ctx, func(s *Scope) error { return s.DeleteEntity(id) })
}

// CreateRelation stores a relation from fromID to toID. Both endpoints must
// exist and match the relation type's endpoint types.
func (g *Graph) CreateRelation(ctx context.Context, typeName, fromID, toID string, props types.Properties) (types.Relation, error) {
	return txn.Do(ctx, g.m, func(s *Scope) (types.Relation, error) {
		return s.CreateRelation(typeName, fromID, toID, props)
	})
}

// GetRelation returns the relation with the given id.
func (g *Graph) GetRelation(ctx context.Context, id string) (types.Relation, error) {
	return txn.Do(ctx, g.m, func(s *Scope) (types.Relation, error) { return s.GetRelation(id) })
}

// UpdateRelation merges patch into the relation's properties. A null value
// removes the property.
func (g *Graph) UpdateRelation(ctx context.Context, id string, patch types.Properties) (types.Relation, error) {
	return txn.Do(ctx, g.m, func(s *Scope) (types.Relation, error) { return s.UpdateRelation(id, patch) })
}

// DeleteRelation deletes the relation with the given id.
func (g *Graph) DeleteRelation(ctx context.Context, id string) error {
	return g.m.WithTransaction(ctx, func(s *Scope) error { return s.DeleteRelation(id) })
}

// Query returns the entities of one type that match every filter in spec.
func (g *Graph) Query(ctx context.Context, spec types.QuerySpec) ([]types.Entity, error) {
	return txn.Do(ctx, g.m, func(s *Scope) ([]types.Entity, error) { return s.Query(spec) })
}

// Traverse walks relations breadth-first from spec's start entity.
func (g *Graph) Traverse(ctx context.Context, spec types.TraversalSpec) (types.TraversalResult, error) {
	return txn.Do(ctx, g.m, func(s *Scope) (types.TraversalResult, error) { return s.Traverse(spec) })
}

// ApplyBatch runs every step in one transaction. Nothing is stored unless
// every step succeeds.
func (g *Graph) ApplyBatch(ctx context.Context, steps []types.BatchStep) (types.BatchResult, error) {
	return txn.Do(ctx, g.m, func(s *Scope) (types.BatchResult, error) { return s.ApplyBatch(steps) })
}
