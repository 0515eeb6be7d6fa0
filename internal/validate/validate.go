// Package validate checks entity and relation payloads against the type
// registry before they reach storage.
package validate

import (
	"context"
	"fmt"
	"sort"

	"github.com/mesh-intelligence/graphctx/internal/registry"
	"github.com/mesh-intelligence/graphctx/pkg/types"
)

// Field names used in endpoint errors.
const (
	FieldFrom = "from_entity"
	FieldTo   = "to_entity"
)

// EndpointReader reads relation endpoints. It is satisfied by types.Tx, so
// the check observes the same snapshot as the write that follows.
type EndpointReader interface {
	GetEntity(ctx context.Context, id string) (*types.EntityRow, error)
}

// Validator validates payloads against a registry.
type Validator struct {
	reg *registry.Registry
}

// New returns a validator backed by reg.
func New(reg *registry.Registry) *Validator {
	return &Validator{reg: reg}
}

// EntityPayload validates props for a new entity of typeName and returns
// the normalized properties to store. Null values count as absent.
func (v *Validator) EntityPayload(typeName string, props types.Properties) (types.Properties, error) {
	et, err := v.reg.EntityType(typeName)
	if err != nil {
		return nil, err
	}
	return checkProperties(et.Name, et.Properties, props)
}

// EntityUpdate merges patch over current and validates the result as a full
// payload. A null patch value removes the property.
func (v *Validator) EntityUpdate(typeName string, current, patch types.Properties) (types.Properties, error) {
	et, err := v.reg.EntityType(typeName)
	if err != nil {
		return nil, err
	}
	return checkProperties(et.Name, et.Properties, merge(current, patch))
}

// RelationPayload validates a new relation. Both endpoints are read through
// r; a missing endpoint is EntityNotFound and an endpoint of a type outside
// the allowed set is EndpointTypeMismatch.
func (v *Validator) RelationPayload(ctx context.Context, r EndpointReader, typeName, fromID, toID string, props types.Properties) (types.Properties, error) {
	rt, err := v.reg.RelationType(typeName)
	if err != nil {
		return nil, err
	}
	out, err := checkProperties(rt.Name, rt.Properties, props)
	if err != nil {
		return nil, err
	}
	if err := checkEndpoint(ctx, r, rt, FieldFrom, fromID, rt.AllowsFrom); err != nil {
		return nil, err
	}
	if err := checkEndpoint(ctx, r, rt, FieldTo, toID, rt.AllowsTo); err != nil {
		return nil, err
	}
	return out, nil
}

// RelationUpdate merges patch over current and validates the result against
// the relation type. Endpoints are immutable and are not re-read.
func (v *Validator) RelationUpdate(typeName string, current, patch types.Properties) (types.Properties, error) {
	rt, err := v.reg.RelationType(typeName)
	if err != nil {
		return nil, err
	}
	return checkProperties(rt.Name, rt.Properties, merge(current, patch))
}

func checkEndpoint(ctx context.Context, r EndpointReader, rt types.RelationType, field, id string, allowed func(string) bool) error {
	if id == "" {
		return &types.Error{Kind: types.KindEntityNotFound, Type: rt.Name, Field: field, Msg: "endpoint id is empty"}
	}
	row, err := r.GetEntity(ctx, id)
	if err != nil {
		return fmt.Errorf("read %s: %w", field, err)
	}
	if !allowed(row.Type) {
		return &types.Error{
			Kind:  types.KindEndpointTypeMismatch,
			Type:  rt.Name,
			Field: field,
			ID:    id,
			Msg:   fmt.Sprintf("entity type %q not allowed", row.Type),
		}
	}
	return nil
}

// checkProperties reports missing required properties first (declared
// order), then undeclared keys (sorted), then type mismatches (declared
// order).
func checkProperties(typeName string, schema types.PropertySchema, props types.Properties) (types.Properties, error) {
	names := schema.Names()
	for _, name := range names {
		def, _ := schema.Get(name)
		if !def.Required {
			continue
		}
		if val, ok := props[name]; !ok || val.IsNull() {
			return nil, &types.Error{Kind: types.KindMissingProperty, Type: typeName, Field: name}
		}
	}

	var unknown []string
	for key := range props {
		if _, ok := schema.Get(key); !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &types.Error{Kind: types.KindUnknownProperty, Type: typeName, Field: unknown[0]}
	}

	out := make(types.Properties, len(props))
	for _, name := range names {
		val, ok := props[name]
		if !ok || val.IsNull() {
			continue
		}
		def, _ := schema.Get(name)
		norm, ok := def.Type.Accepts(val)
		if !ok {
			return nil, &types.Error{
				Kind:  types.KindTypeMismatch,
				Type:  typeName,
				Field: name,
				Msg:   fmt.Sprintf("expected %s, got %s", def.Type, val.Kind()),
			}
		}
		out[name] = norm
	}
	return out, nil
}

func merge(current, patch types.Properties) types.Properties {
	out := current.Clone()
	if out == nil {
		out = make(types.Properties, len(patch))
	}
	for k, val := range patch {
		if val.IsNull() {
			delete(out, k)
			continue
		}
		out[k] = val
	}
	return out
}
