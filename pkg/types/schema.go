package types

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
)

var (
	typeNamePattern     = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,127}$`)
	propertyNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,127}$`)
)

// IDField is the pseudo-field queries use to match entity ids. It cannot be
// declared as a property.
const IDField = "id"

// EntityType is the schema of a class of entities.
type EntityType struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Properties  PropertySchema `json:"properties" yaml:"properties"`
	Indexed     []string       `json:"indexed_properties,omitempty" yaml:"indexed_properties,omitempty"`
}

// RelationType is the schema of a class of directed relations.
type RelationType struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Properties  PropertySchema `json:"properties" yaml:"properties"`
	FromTypes   []string       `json:"from_types" yaml:"from_types"`
	ToTypes     []string       `json:"to_types" yaml:"to_types"`
	Indexed     []string       `json:"indexed_properties,omitempty" yaml:"indexed_properties,omitempty"`
}

// Validate checks the structure of the definition. Endpoint type existence
// is checked by the registry, which knows what is registered.
func (t EntityType) Validate() error {
	return validateSchema(t.Name, t.Properties, t.Indexed)
}

// Validate checks the structure of the definition.
func (t RelationType) Validate() error {
	if err := validateSchema(t.Name, t.Properties, t.Indexed); err != nil {
		return err
	}
	if len(t.FromTypes) == 0 {
		return &Error{Kind: KindInvalidDefinition, Type: t.Name, Field: "from_types", Msg: "at least one from type is required"}
	}
	if len(t.ToTypes) == 0 {
		return &Error{Kind: KindInvalidDefinition, Type: t.Name, Field: "to_types", Msg: "at least one to type is required"}
	}
	return nil
}

func validateSchema(name string, props PropertySchema, indexed []string) error {
	if !typeNamePattern.MatchString(name) {
		return &Error{Kind: KindInvalidDefinition, Type: name, Field: "name",
			Msg: "name must start with a letter and contain only letters, digits, '_' or '-'"}
	}
	for _, p := range props.Names() {
		if !propertyNamePattern.MatchString(p) || p == IDField {
			return &Error{Kind: KindInvalidDefinition, Type: name, Field: p, Msg: "invalid property name"}
		}
		def, _ := props.Get(p)
		if !IsValidPropertyType(def.Type) {
			return &Error{Kind: KindInvalidDefinition, Type: name, Field: p,
				Msg: fmt.Sprintf("unknown property type %q", def.Type)}
		}
	}
	for _, p := range indexed {
		if _, ok := props.Get(p); !ok {
			return &Error{Kind: KindInvalidDefinition, Type: name, Field: p, Msg: "indexed property is not declared"}
		}
	}
	return nil
}

// Equal reports whether two definitions are identical. Property order and
// the order of name sets are not significant.
func (t EntityType) Equal(o EntityType) bool {
	return t.Name == o.Name &&
		t.Description == o.Description &&
		t.Properties.Equal(o.Properties) &&
		sameSet(t.Indexed, o.Indexed)
}

// Equal reports whether two definitions are identical.
func (t RelationType) Equal(o RelationType) bool {
	return t.Name == o.Name &&
		t.Description == o.Description &&
		t.Properties.Equal(o.Properties) &&
		sameSet(t.FromTypes, o.FromTypes) &&
		sameSet(t.ToTypes, o.ToTypes) &&
		sameSet(t.Indexed, o.Indexed)
}

// Clone returns a deep copy.
func (t EntityType) Clone() EntityType {
	t.Properties = t.Properties.Clone()
	t.Indexed = slices.Clone(t.Indexed)
	return t
}

// Clone returns a deep copy.
func (t RelationType) Clone() RelationType {
	t.Properties = t.Properties.Clone()
	t.FromTypes = slices.Clone(t.FromTypes)
	t.ToTypes = slices.Clone(t.ToTypes)
	t.Indexed = slices.Clone(t.Indexed)
	return t
}

// AllowsFrom reports whether entities of typeName may be the source.
func (t RelationType) AllowsFrom(typeName string) bool {
	return slices.Contains(t.FromTypes, typeName)
}

// AllowsTo reports whether entities of typeName may be the target.
func (t RelationType) AllowsTo(typeName string) bool {
	return slices.Contains(t.ToTypes, typeName)
}

func sameSet(a, b []string) bool {
	ac, bc := dedupeSorted(a), dedupeSorted(b)
	return slices.Equal(ac, bc)
}

func dedupeSorted(s []string) []string {
	c := slices.Clone(s)
	sort.Strings(c)
	return slices.Compact(c)
}
