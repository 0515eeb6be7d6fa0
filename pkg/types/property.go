package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// PropertyType is the declared semantic type of a property.
type PropertyType string

// Property types.
const (
	PropertyString   PropertyType = "string"
	PropertyInteger  PropertyType = "integer"
	PropertyFloat    PropertyType = "float"
	PropertyBoolean  PropertyType = "boolean"
	PropertyObject   PropertyType = "object"
	PropertyList     PropertyType = "list"
	PropertyDatetime PropertyType = "datetime"
)

// validPropertyTypes is the set of recognized property types.
var validPropertyTypes = map[PropertyType]bool{
	PropertyString:   true,
	PropertyInteger:  true,
	PropertyFloat:    true,
	PropertyBoolean:  true,
	PropertyObject:   true,
	PropertyList:     true,
	PropertyDatetime: true,
}

// IsValidPropertyType reports whether t is a recognized property type.
func IsValidPropertyType(t PropertyType) bool {
	return validPropertyTypes[t]
}

// PropertyDefinition declares one property of an entity or relation type.
type PropertyDefinition struct {
	Type        PropertyType `json:"type" yaml:"type"`
	Required    bool         `json:"required" yaml:"required"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
}

// Accepts reports whether v has the runtime shape t declares, returning the
// value normalized for storage. Integral floats satisfy integer properties
// and integers are widened for float properties. Datetimes are RFC 3339
// strings and keep their original text.
func (t PropertyType) Accepts(v Value) (Value, bool) {
	switch t {
	case PropertyString:
		return v, v.kind == KindString
	case PropertyInteger:
		switch v.kind {
		case KindInt:
			return v, true
		case KindFloat:
			if n := numberValue(v.f); n.kind == KindInt {
				return n, true
			}
		}
	case PropertyFloat:
		if f, ok := v.Number(); ok {
			return Float(f), true
		}
	case PropertyBoolean:
		return v, v.kind == KindBool
	case PropertyObject:
		return v, v.kind == KindObject
	case PropertyList:
		return v, v.kind == KindList
	case PropertyDatetime:
		if v.kind == KindString {
			if _, err := time.Parse(time.RFC3339Nano, v.s); err == nil {
				return v, true
			}
		}
	}
	return v, false
}

// PropertySchema is an ordered mapping of property name to definition.
// Declaration order is kept through JSON and YAML round trips.
type PropertySchema struct {
	names []string
	defs  map[string]PropertyDefinition
}

// NewPropertySchema builds a schema from props in declaration order.
func NewPropertySchema(props ...NamedProperty) PropertySchema {
	var s PropertySchema
	for _, p := range props {
		s.Set(p.Name, p.Definition)
	}
	return s
}

// NamedProperty pairs a name with its definition.
type NamedProperty struct {
	Name       string
	Definition PropertyDefinition
}

// Prop is shorthand for a NamedProperty.
func Prop(name string, t PropertyType, required bool) NamedProperty {
	return NamedProperty{Name: name, Definition: PropertyDefinition{Type: t, Required: required}}
}

// Set adds or replaces a property. New names are appended.
func (s *PropertySchema) Set(name string, def PropertyDefinition) {
	if s.defs == nil {
		s.defs = make(map[string]PropertyDefinition)
	}
	if _, ok := s.defs[name]; !ok {
		s.names = append(s.names, name)
	}
	s.defs[name] = def
}

// Get returns the definition for name.
func (s PropertySchema) Get(name string) (PropertyDefinition, bool) {
	d, ok := s.defs[name]
	return d, ok
}

// Names returns property names in declaration order.
func (s PropertySchema) Names() []string {
	c := make([]string, len(s.names))
	copy(c, s.names)
	return c
}

// Len returns the number of properties.
func (s PropertySchema) Len() int { return len(s.names) }

// Clone returns a deep copy.
func (s PropertySchema) Clone() PropertySchema {
	var c PropertySchema
	for _, n := range s.names {
		c.Set(n, s.defs[n])
	}
	return c
}

// Equal compares definitions by name; declaration order is not significant.
func (s PropertySchema) Equal(o PropertySchema) bool {
	if len(s.defs) != len(o.defs) {
		return false
	}
	for n, d := range s.defs {
		od, ok := o.defs[n]
		if !ok || od != d {
			return false
		}
	}
	return true
}

// MarshalJSON writes the schema as a JSON object in declaration order.
func (s PropertySchema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, n := range s.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(n)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		db, err := json.Marshal(s.defs[n])
		if err != nil {
			return nil, err
		}
		buf.Write(db)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, keeping key order.
func (s *PropertySchema) UnmarshalJSON(data []byte) error {
	*s = PropertySchema{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("property schema must be a JSON object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("property schema key must be a string")
		}
		var def PropertyDefinition
		if err := dec.Decode(&def); err != nil {
			return fmt.Errorf("property %q: %w", name, err)
		}
		if _, dup := s.defs[name]; dup {
			return fmt.Errorf("property %q declared twice", name)
		}
		s.Set(name, def)
	}
	_, err = dec.Token()
	return err
}

// UnmarshalYAML reads a YAML mapping, keeping key order.
func (s *PropertySchema) UnmarshalYAML(node *yaml.Node) error {
	*s = PropertySchema{}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: property schema must be a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		var def PropertyDefinition
		if err := val.Decode(&def); err != nil {
			return fmt.Errorf("property %q: %w", key.Value, err)
		}
		if _, dup := s.defs[key.Value]; dup {
			return fmt.Errorf("line %d: property %q declared twice", key.Line, key.Value)
		}
		s.Set(key.Value, def)
	}
	return nil
}

// MarshalYAML writes the schema as an ordered YAML mapping.
func (s PropertySchema) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, n := range s.names {
		var val yaml.Node
		if err := val.Encode(s.defs[n]); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: n},
			&val,
		)
	}
	return node, nil
}
