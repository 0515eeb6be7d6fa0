package types

import "time"

// Entity is a typed node in the graph.
type Entity struct {
	ID         string     `json:"id"`
	Type       string     `json:"entity_type"`
	Properties Properties `json:"properties"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Relation is a typed, directed edge between two entities.
type Relation struct {
	ID         string     `json:"id"`
	Type       string     `json:"relation_type"`
	FromID     string     `json:"from_entity"`
	ToID       string     `json:"to_entity"`
	Properties Properties `json:"properties"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// EntityRow is an entity as a storage backend returns it. Properties hold
// plain decoded values; the translator maps rows back to Entity using the
// registered schema.
type EntityRow struct {
	ID         string
	Type       string
	Properties map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RelationRow is a relation as a storage backend returns it.
type RelationRow struct {
	ID         string
	Type       string
	FromID     string
	ToID       string
	Properties map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
