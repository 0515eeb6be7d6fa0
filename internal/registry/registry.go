// Package registry holds the entity and relation type definitions every
// mutation and query is checked against.
//
// A Registry is constructed once at startup and shared by reference. Reads
// take a read lock and never block each other; a registration publishes
// the complete definition under the write lock. Definitions are copied on
// the way in and out, so callers can never observe or produce a partially
// applied definition.
package registry

import (
	"sort"
	"sync"

	"github.com/mesh-intelligence/graphctx/pkg/types"
)

// Registry is the process-wide store of type definitions.
type Registry struct {
	mu        sync.RWMutex
	entities  map[string]types.EntityType
	relations map[string]types.RelationType
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		entities:  make(map[string]types.EntityType),
		relations: make(map[string]types.RelationType),
	}
}

// CheckEntityType validates def against the registry without registering it.
// It reports exists=true when an identical definition is already
// registered, and a TypeConflict error when a different one is.
func (r *Registry) CheckEntityType(def types.EntityType) (exists bool, err error) {
	if err := def.Validate(); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.checkEntityLocked(def)
}

func (r *Registry) checkEntityLocked(def types.EntityType) (bool, error) {
	cur, ok := r.entities[def.Name]
	if !ok {
		return false, nil
	}
	if !cur.Equal(def) {
		return true, &types.Error{Kind: types.KindTypeConflict, Type: def.Name}
	}
	return true, nil
}

// RegisterEntityType adds def. Registering an identical definition again
// succeeds with created=false; a different definition under a registered
// name fails with TypeConflict and the original stays in place.
func (r *Registry) RegisterEntityType(def types.EntityType) (created bool, err error) {
	if err := def.Validate(); err != nil {
		return false, err
	}
	def = def.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	exists, err := r.checkEntityLocked(def)
	if err != nil || exists {
		return false, err
	}
	r.entities[def.Name] = def
	return true, nil
}

// CheckRelationType validates def, including that every endpoint type is a
// registered entity type.
func (r *Registry) CheckRelationType(def types.RelationType) (exists bool, err error) {
	if err := def.Validate(); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.checkRelationLocked(def)
}

func (r *Registry) checkRelationLocked(def types.RelationType) (bool, error) {
	for _, names := range [][]string{def.FromTypes, def.ToTypes} {
		for _, n := range names {
			if _, ok := r.entities[n]; !ok {
				return false, &types.Error{Kind: types.KindUnknownType, Type: n,
					Msg: "relation type " + def.Name + " references it as an endpoint"}
			}
		}
	}
	cur, ok := r.relations[def.Name]
	if !ok {
		return false, nil
	}
	if !cur.Equal(def) {
		return true, &types.Error{Kind: types.KindTypeConflict, Type: def.Name}
	}
	return true, nil
}

// RegisterRelationType adds def with the same idempotence rules as
// RegisterEntityType. Endpoint types must already be registered.
func (r *Registry) RegisterRelationType(def types.RelationType) (created bool, err error) {
	if err := def.Validate(); err != nil {
		return false, err
	}
	def = def.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	exists, err := r.checkRelationLocked(def)
	if err != nil || exists {
		return false, err
	}
	r.relations[def.Name] = def
	return true, nil
}

// EntityType returns the definition registered under name.
func (r *Registry) EntityType(name string) (types.EntityType, error) {
	r.mu.RLock()
	def, ok := r.entities[name]
	r.mu.RUnlock()
	if !ok {
		return types.EntityType{}, types.UnknownType(name)
	}
	return def.Clone(), nil
}

// RelationType returns the definition registered under name.
func (r *Registry) RelationType(name string) (types.RelationType, error) {
	r.mu.RLock()
	def, ok := r.relations[name]
	r.mu.RUnlock()
	if !ok {
		return types.RelationType{}, types.UnknownType(name)
	}
	return def.Clone(), nil
}

// EntityTypes returns every entity type sorted by name.
func (r *Registry) EntityTypes() []types.EntityType {
	r.mu.RLock()
	out := make([]types.EntityType, 0, len(r.entities))
	for _, def := range r.entities {
		out = append(out, def.Clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RelationTypes returns every relation type sorted by name.
func (r *Registry) RelationTypes() []types.RelationType {
	r.mu.RLock()
	out := make([]types.RelationType, 0, len(r.relations))
	for _, def := range r.relations {
		out = append(out, def.Clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Load registers previously saved definitions, entity types first so that
// relation endpoints resolve.
func (r *Registry) Load(entities []types.EntityType, relations []types.RelationType) error {
	for _, def := range entities {
		if _, err := r.RegisterEntityType(def); err != nil {
			return err
		}
	}
	for _, def := range relations {
		if _, err := r.RegisterRelationType(def); err != nil {
			return err
		}
	}
	return nil
}
