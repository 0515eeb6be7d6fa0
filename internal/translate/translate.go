// Package translate maps API query and traversal specs to backend requests
// and maps backend rows back to API representations.
package translate

import (
	"fmt"
	"slices"

	"github.com/mesh-intelligence/graphctx/internal/registry"
	"github.com/mesh-intelligence/graphctx/pkg/types"
)

var comparisons = []types.Operator{types.OpEq, types.OpNeq, types.OpGt, types.OpGte, types.OpLt, types.OpLte}

// operators lists the operators each property type supports.
var operators = map[types.PropertyType][]types.Operator{
	types.PropertyString:   append(slices.Clone(comparisons), types.OpContains),
	types.PropertyInteger:  comparisons,
	types.PropertyFloat:    comparisons,
	types.PropertyDatetime: comparisons,
	types.PropertyBoolean:  {types.OpEq, types.OpNeq},
	types.PropertyObject:   {types.OpEq, types.OpNeq},
	types.PropertyList:     {types.OpEq, types.OpNeq, types.OpContains},
}

// Supports reports whether op applies to fields of type t.
func Supports(t types.PropertyType, op types.Operator) bool {
	return slices.Contains(operators[t], op)
}

// Translator translates against a registry.
type Translator struct {
	reg *registry.Registry
}

// New returns a translator backed by reg.
func New(reg *registry.Registry) *Translator {
	return &Translator{reg: reg}
}

func invalid(field, typ, format string, args ...any) error {
	return &types.Error{Kind: types.KindInvalidQuerySpec, Field: field, Type: typ, Msg: fmt.Sprintf(format, args...)}
}

// Query translates spec. When a limit or offset is set the result carries
// OrderByID so pagination is deterministic.
func (t *Translator) Query(spec types.QuerySpec) (types.BackendQuery, error) {
	if spec.EntityType == "" {
		return types.BackendQuery{}, invalid("entity_type", "", "entity type is required")
	}
	et, err := t.reg.EntityType(spec.EntityType)
	if err != nil {
		return types.BackendQuery{}, invalid("entity_type", spec.EntityType, "entity type is not registered")
	}

	q := types.BackendQuery{EntityType: et.Name, Limit: types.NoLimit}
	for i, c := range spec.Conditions {
		p, err := predicate(et, i, c)
		if err != nil {
			return types.BackendQuery{}, err
		}
		q.Predicates = append(q.Predicates, p)
	}

	if spec.Limit != nil {
		if *spec.Limit < 0 {
			return types.BackendQuery{}, invalid("limit", et.Name, "limit must not be negative")
		}
		q.Limit = *spec.Limit
		q.OrderByID = true
	}
	if spec.Offset != nil {
		if *spec.Offset < 0 {
			return types.BackendQuery{}, invalid("offset", et.Name, "offset must not be negative")
		}
		q.Offset = *spec.Offset
		q.OrderByID = true
	}
	return q, nil
}

func predicate(et types.EntityType, i int, c types.Condition) (types.Predicate, error) {
	if c.Field == "" {
		return types.Predicate{}, invalid("field", et.Name, "conditions[%d]: field is required", i)
	}
	if c.Value.IsNull() {
		return types.Predicate{}, invalid(c.Field, et.Name, "conditions[%d]: value is required", i)
	}
	if c.Field == types.IDField {
		if c.Operator != types.OpEq && c.Operator != types.OpNeq {
			return types.Predicate{}, invalid(c.Field, et.Name, "conditions[%d]: operator %q not supported on id", i, c.Operator)
		}
		if _, ok := c.Value.Str(); !ok {
			return types.Predicate{}, invalid(c.Field, et.Name, "conditions[%d]: id must be a string", i)
		}
		return types.Predicate{Field: c.Field, IsID: true, Op: c.Operator, Value: c.Value}, nil
	}

	def, ok := et.Properties.Get(c.Field)
	if !ok {
		return types.Predicate{}, invalid(c.Field, et.Name, "conditions[%d]: unknown field", i)
	}
	if !Supports(def.Type, c.Operator) {
		return types.Predicate{}, invalid(c.Field, et.Name, "conditions[%d]: operator %q not supported on %s field", i, c.Operator, def.Type)
	}
	val, ok := operand(def.Type, c.Operator, c.Value)
	if !ok {
		return types.Predicate{}, invalid(c.Field, et.Name, "conditions[%d]: %s value not comparable with %s field", i, c.Value.Kind(), def.Type)
	}
	return types.Predicate{Field: c.Field, Type: def.Type, Op: c.Operator, Value: val}, nil
}

// operand checks that v can be compared with a field of type t under op.
// Numeric fields accept any number; list membership accepts any element.
func operand(t types.PropertyType, op types.Operator, v types.Value) (types.Value, bool) {
	switch {
	case t == types.PropertyInteger || t == types.PropertyFloat:
		_, ok := v.Number()
		return v, ok
	case t == types.PropertyList && op == types.OpContains:
		return v, true
	}
	return t.Accepts(v)
}

// Traversal translates spec. An unset max depth becomes UnboundedDepth and
// an unset direction becomes Outbound.
func (t *Translator) Traversal(spec types.TraversalSpec) (types.BackendTraversal, error) {
	if spec.Start == "" {
		return types.BackendTraversal{}, invalid("start_entity", "", "start entity is required")
	}
	bt := types.BackendTraversal{Start: spec.Start, Direction: spec.Direction, MaxDepth: types.UnboundedDepth}

	switch spec.Direction {
	case "":
		bt.Direction = types.Outbound
	case types.Outbound, types.Inbound, types.Both:
	default:
		return types.BackendTraversal{}, invalid("direction", "", "unknown direction %q", spec.Direction)
	}

	if spec.MaxDepth != nil {
		if *spec.MaxDepth < 0 {
			return types.BackendTraversal{}, invalid("max_depth", "", "max depth must not be negative")
		}
		bt.MaxDepth = *spec.MaxDepth
	}

	for _, name := range spec.RelationTypes {
		if _, err := t.reg.RelationType(name); err != nil {
			return types.BackendTraversal{}, invalid("relation_types", name, "relation type is not registered")
		}
		if !slices.Contains(bt.RelationTypes, name) {
			bt.RelationTypes = append(bt.RelationTypes, name)
		}
	}
	for _, name := range spec.EntityTypes {
		if _, err := t.reg.EntityType(name); err != nil {
			return types.BackendTraversal{}, invalid("entity_types", name, "entity type is not registered")
		}
		if !slices.Contains(bt.EntityTypes, name) {
			bt.EntityTypes = append(bt.EntityTypes, name)
		}
	}
	return bt, nil
}

// Entity maps a backend row to an Entity, normalizing values against the
// registered schema.
func (t *Translator) Entity(row types.EntityRow) (types.Entity, error) {
	var schema types.PropertySchema
	if et, err := t.reg.EntityType(row.Type); err == nil {
		schema = et.Properties
	}
	props, err := decode(schema, row.Properties)
	if err != nil {
		return types.Entity{}, types.Storagef(err, "decode entity %s", row.ID)
	}
	return types.Entity{
		ID:         row.ID,
		Type:       row.Type,
		Properties: props,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}, nil
}

// Entities maps rows in order.
func (t *Translator) Entities(rows []types.EntityRow) ([]types.Entity, error) {
	out := make([]types.Entity, 0, len(rows))
	for _, row := range rows {
		e, err := t.Entity(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Relation maps a backend row to a Relation.
func (t *Translator) Relation(row types.RelationRow) (types.Relation, error) {
	var schema types.PropertySchema
	if rt, err := t.reg.RelationType(row.Type); err == nil {
		schema = rt.Properties
	}
	props, err := decode(schema, row.Properties)
	if err != nil {
		return types.Relation{}, types.Storagef(err, "decode relation %s", row.ID)
	}
	return types.Relation{
		ID:         row.ID,
		Type:       row.Type,
		FromID:     row.FromID,
		ToID:       row.ToID,
		Properties: props,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}, nil
}

// Relations maps rows in order.
func (t *Translator) Relations(rows []types.RelationRow) ([]types.Relation, error) {
	out := make([]types.Relation, 0, len(rows))
	for _, row := range rows {
		r, err := t.Relation(row)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// TraversalResult maps a backend traversal result.
func (t *Translator) TraversalResult(rows types.TraversalRows) (types.TraversalResult, error) {
	res := types.TraversalResult{Entities: make([]types.TraversedEntity, 0, len(rows.Entities))}
	for _, hit := range rows.Entities {
		e, err := t.Entity(hit.Entity)
		if err != nil {
			return types.TraversalResult{}, err
		}
		res.Entities = append(res.Entities, types.TraversedEntity{Entity: e, Depth: hit.Depth})
	}
	rels, err := t.Relations(rows.Relations)
	if err != nil {
		return types.TraversalResult{}, err
	}
	res.Relations = rels
	return res, nil
}

func decode(schema types.PropertySchema, plain map[string]any) (types.Properties, error) {
	props, err := types.PropertiesFromAny(plain)
	if err != nil {
		return nil, err
	}
	for name, val := range props {
		def, ok := schema.Get(name)
		if !ok {
			continue
		}
		if norm, ok := def.Type.Accepts(val); ok {
			props[name] = norm
		}
	}
	return props, nil
}
