package types

import (
	"strings"
	"time"
)

// Operator is a field condition operator.
type Operator string

// Operators.
const (
	OpEq       Operator = "eq"
	OpNeq      Operator = "neq"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpContains Operator = "contains"
)

// Direction selects which relations a traversal follows from each entity.
type Direction string

// Directions.
const (
	Outbound Direction = "outbound"
	Inbound  Direction = "inbound"
	Both     Direction = "both"
)

// UnboundedDepth is the translated max depth when a traversal sets none.
const UnboundedDepth = -1

// NoLimit is the translated limit when a query sets none.
const NoLimit = -1

// Condition is one field condition of a QuerySpec.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    Value    `json:"value"`
}

// QuerySpec filters entities of one type. Conditions are combined with AND.
type QuerySpec struct {
	EntityType string      `json:"entity_type"`
	Conditions []Condition `json:"conditions,omitempty"`
	Limit      *int        `json:"limit,omitempty"`
	Offset     *int        `json:"offset,omitempty"`
}

// TraversalSpec describes a walk from a start entity.
type TraversalSpec struct {
	Start         string    `json:"start_entity"`
	RelationTypes []string  `json:"relation_types,omitempty"`
	Direction     Direction `json:"direction,omitempty"`
	MaxDepth      *int      `json:"max_depth,omitempty"`
	EntityTypes   []string  `json:"entity_types,omitempty"`
}

// Predicate is a translated condition. Type is the declared type of Field;
// IsID marks conditions on the entity id.
type Predicate struct {
	Field string
	IsID  bool
	Type  PropertyType
	Op    Operator
	Value Value
}

// BackendQuery is what a storage backend executes for a QuerySpec.
// Limit is NoLimit when unset. When OrderByID is set the backend must sort
// by id before applying Offset and Limit.
type BackendQuery struct {
	EntityType string
	Predicates []Predicate
	OrderByID  bool
	Limit      int
	Offset     int
}

// BackendTraversal is what a storage backend executes for a TraversalSpec.
// MaxDepth is UnboundedDepth when the walk has no bound. Empty filters match
// everything.
type BackendTraversal struct {
	Start         string
	RelationTypes []string
	Direction     Direction
	MaxDepth      int
	EntityTypes   []string
}

// TraversalHit is an entity reached by a traversal and the number of hops
// from the start.
type TraversalHit struct {
	Entity EntityRow
	Depth  int
}

// TraversalRows is the backend result of a traversal. Entities are in
// breadth-first discovery order and exclude the start entity.
type TraversalRows struct {
	Entities  []TraversalHit
	Relations []RelationRow
}

// TraversedEntity is an entity in a traversal result.
type TraversedEntity struct {
	Entity
	Depth int `json:"depth"`
}

// TraversalResult is the API representation of a traversal.
type TraversalResult struct {
	Entities  []TraversedEntity `json:"entities"`
	Relations []Relation        `json:"relations"`
}

// Match evaluates p against an entity's id and properties. A missing
// property only satisfies neq.
func (p Predicate) Match(id string, props Properties) bool {
	var v Value
	if p.IsID {
		v = String(id)
	} else {
		got, ok := props[p.Field]
		if !ok || got.IsNull() {
			return p.Op == OpNeq
		}
		v = got
	}
	switch p.Op {
	case OpEq:
		return v.Equal(p.Value)
	case OpNeq:
		return !v.Equal(p.Value)
	case OpContains:
		if s, ok := v.Str(); ok {
			sub, ok := p.Value.Str()
			return ok && strings.Contains(s, sub)
		}
		for _, item := range v.Items() {
			if item.Equal(p.Value) {
				return true
			}
		}
		return false
	}
	c, ok := p.compare(v)
	if !ok {
		return false
	}
	switch p.Op {
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	}
	return false
}

func (p Predicate) compare(v Value) (int, bool) {
	if p.Type == PropertyDatetime {
		a, okA := parseTime(v)
		b, okB := parseTime(p.Value)
		if !okA || !okB {
			return 0, false
		}
		return a.Compare(b), true
	}
	return Compare(v, p.Value)
}

func parseTime(v Value) (time.Time, bool) {
	s, ok := v.Str()
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	return t, err == nil
}
