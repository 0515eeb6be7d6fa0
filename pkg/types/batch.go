package types

import "strings"

// BatchOp names a batch step.
type BatchOp string

// Batch operations.
const (
	BatchCreateEntity   BatchOp = "create_entity"
	BatchCreateRelation BatchOp = "create_relation"
)

// RefPrefix marks an endpoint that names an earlier step's Ref instead of
// an entity id.
const RefPrefix = "@"

// BatchStep is one create in an atomic batch. Relation endpoints may be
// entity ids or RefPrefix+ref of an entity created earlier in the batch.
type BatchStep struct {
	Op           BatchOp    `json:"op"`
	Ref          string     `json:"ref,omitempty"`
	EntityType   string     `json:"entity_type,omitempty"`
	RelationType string     `json:"relation_type,omitempty"`
	From         string     `json:"from_entity,omitempty"`
	To           string     `json:"to_entity,omitempty"`
	Properties   Properties `json:"properties,omitempty"`
}

// BatchResult lists what a committed batch created, in step order. Refs
// maps each step ref to the id it produced.
type BatchResult struct {
	Entities  []Entity          `json:"entities"`
	Relations []Relation        `json:"relations"`
	Refs      map[string]string `json:"refs"`
}

// RefName returns the ref an endpoint names and whether it is a ref.
func RefName(endpoint string) (string, bool) {
	return strings.CutPrefix(endpoint, RefPrefix)
}
