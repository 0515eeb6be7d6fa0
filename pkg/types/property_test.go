package types

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestPropertyTypeAccepts(t *testing.T) {
	tests := []struct {
		name   string
		typ    PropertyType
		value  Value
		wantOK bool
		want   Value
	}{
		{"string accepts string", PropertyString, String("a"), true, String("a")},
		{"string rejects int", PropertyString, Int(1), false, Int(1)},
		{"integer accepts int", PropertyInteger, Int(30), true, Int(30)},
		{"integer accepts integral float", PropertyInteger, Float(30), true, Int(30)},
		{"integer rejects fractional float", PropertyInteger, Float(30.5), false, Float(30.5)},
		{"integer rejects string", PropertyInteger, String("30"), false, String("30")},
		{"float widens int", PropertyFloat, Int(2), true, Float(2)},
		{"float accepts float", PropertyFloat, Float(2.5), true, Float(2.5)},
		{"boolean accepts bool", PropertyBoolean, Bool(true), true, Bool(true)},
		{"boolean rejects int", PropertyBoolean, Int(1), false, Int(1)},
		{"object accepts object", PropertyObject, Object(map[string]Value{"a": Int(1)}), true, Object(map[string]Value{"a": Int(1)})},
		{"object rejects list", PropertyObject, List(Int(1)), false, List(Int(1))},
		{"list accepts list", PropertyList, List(String("x")), true, List(String("x"))},
		{"datetime accepts RFC 3339", PropertyDatetime, String("2023-01-01T10:00:00Z"), true, String("2023-01-01T10:00:00Z")},
		{"datetime rejects date only", PropertyDatetime, String("2023-01-01"), false, String("2023-01-01")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.typ.Accepts(tt.value)
			assert.Equal(t, tt.wantOK, ok)
			assert.True(t, tt.want.Equal(got), "got %v, want %v", got, tt.want)
			assert.Equal(t, tt.want.Kind(), got.Kind())
		})
	}
}

func TestIsValidPropertyType(t *testing.T) {
	for _, pt := range []PropertyType{
		PropertyString, PropertyInteger, PropertyFloat, PropertyBoolean,
		PropertyObject, PropertyList, PropertyDatetime,
	} {
		assert.True(t, IsValidPropertyType(pt), "IsValidPropertyType(%q)", pt)
	}
	for _, pt := range []PropertyType{"", "text", "date", "number"} {
		assert.False(t, IsValidPropertyType(pt), "IsValidPropertyType(%q)", pt)
	}
}

func TestPropertySchemaJSONKeepsOrder(t *testing.T) {
	input := `{"zeta":{"type":"string","required":true},"alpha":{"type":"integer","required":false}}`

	var s PropertySchema
	require.NoError(t, json.Unmarshal([]byte(input), &s))
	assert.Equal(t, []string{"zeta", "alpha"}, s.Names())

	def, ok := s.Get("zeta")
	require.True(t, ok)
	assert.Equal(t, PropertyDefinition{Type: PropertyString, Required: true}, def)

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, input, string(out))
	assert.Less(t, strings.Index(string(out), "zeta"), strings.Index(string(out), "alpha"))
}

func TestPropertySchemaJSONRejectsDuplicates(t *testing.T) {
	var s PropertySchema
	err := json.Unmarshal([]byte(`{"a":{"type":"string"},"a":{"type":"integer"}}`), &s)
	require.Error(t, err)
}

func TestPropertySchemaYAMLKeepsOrder(t *testing.T) {
	input := `
name:
  type: string
  required: true
age:
  type: integer
`
	var s PropertySchema
	require.NoError(t, yaml.Unmarshal([]byte(input), &s))
	assert.Equal(t, []string{"name", "age"}, s.Names())

	out, err := yaml.Marshal(s)
	require.NoError(t, err)
	var back PropertySchema
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, s.Names(), back.Names())
	assert.True(t, s.Equal(back))
}

func TestPropertySchemaEqualIgnoresOrder(t *testing.T) {
	a := NewPropertySchema(Prop("name", PropertyString, true), Prop("age", PropertyInteger, true))
	b := NewPropertySchema(Prop("age", PropertyInteger, true), Prop("name", PropertyString, true))
	c := NewPropertySchema(Prop("age", PropertyInteger, false), Prop("name", PropertyString, true))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}
