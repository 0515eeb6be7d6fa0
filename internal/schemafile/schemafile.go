// Package schemafile reads YAML schema documents that declare entity and
// relation types, and registers them.
//
// A document looks like:
//
//	entity_types:
//	  - name: Person
//	    properties:
//	      name: {type: string, required: true}
//	      age: {type: integer}
//	    indexed_properties: [name]
//	relation_types:
//	  - name: WORKS_AT
//	    from_types: [Person]
//	    to_types: [Company]
package schemafile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/graphctx/internal/registry"
	"github.com/mesh-intelligence/graphctx/pkg/types"
)

// Document is a parsed schema file.
type Document struct {
	EntityTypes   []types.EntityType   `yaml:"entity_types"`
	RelationTypes []types.RelationType `yaml:"relation_types"`
}

// Registrar registers type definitions. txn.Manager and graph.Graph
// implement it.
type Registrar interface {
	RegisterEntityType(ctx context.Context, def types.EntityType) (bool, error)
	RegisterRelationType(ctx context.Context, def types.RelationType) (bool, error)
}

// Summary counts the outcome of Apply.
type Summary struct {
	Created  int `json:"created"`
	Existing int `json:"existing"`
}

// Load reads and parses the schema file at path.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read schema file: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes a schema document. Unknown keys are rejected.
func Parse(data []byte) (Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var doc Document
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return Document{}, fmt.Errorf("parse schema: %w", err)
	}
	return doc, nil
}

// Check validates the document on its own: every definition is well
// formed, names are not declared twice with different definitions, and
// relation endpoints name entity types that are declared in the document
// or already present in known.
func Check(doc Document, known *registry.Registry) error {
	scratch := registry.New()
	if known != nil {
		if err := scratch.Load(known.EntityTypes(), known.RelationTypes()); err != nil {
			return err
		}
	}
	for _, def := range doc.EntityTypes {
		if _, err := scratch.RegisterEntityType(def); err != nil {
			return fmt.Errorf("entity type %q: %w", def.Name, err)
		}
	}
	for _, def := range doc.RelationTypes {
		if _, err := scratch.RegisterRelationType(def); err != nil {
			return fmt.Errorf("relation type %q: %w", def.Name, err)
		}
	}
	return nil
}

// Apply registers every entity type, then every relation type, in
// document order. It stops at the first failure; types registered before
// it stay registered.
func Apply(ctx context.Context, r Registrar, doc Document) (Summary, error) {
	var sum Summary
	count := func(created bool) {
		if created {
			sum.Created++
		} else {
			sum.Existing++
		}
	}
	for _, def := range doc.EntityTypes {
		created, err := r.RegisterEntityType(ctx, def)
		if err != nil {
			return sum, fmt.Errorf("entity type %q: %w", def.Name, err)
		}
		count(created)
	}
	for _, def := range doc.RelationTypes {
		created, err := r.RegisterRelationType(ctx, def)
		if err != nil {
			return sum, fmt.Errorf("relation type %q: %w", def.Name, err)
		}
		count(created)
	}
	return sum, nil
}
