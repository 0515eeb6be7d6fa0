package types

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"sort"
	"strings"
)

// ValueKind is the runtime shape of a Value.
type ValueKind uint8

// Value kinds. KindNull only appears in update patches, where it removes
// the property.
const (
	KindNull ValueKind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindObject
	KindList
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindBool:
		return "boolean"
	case KindObject:
		return "object"
	case KindList:
		return "list"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a property value: string, integer, float, boolean, nested object
// or list. The zero Value is null.
type Value struct {
	kind ValueKind
	s    string
	i    int64
	f    float64
	b    bool
	obj  map[string]Value
	list []Value
}

// Properties maps property names to values.
type Properties map[string]Value

// Null returns the null value.
func Null() Value { return Value{} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a float value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Object returns a nested object value. The map is copied.
func Object(m map[string]Value) Value {
	c := make(map[string]Value, len(m))
	for k, v := range m {
		c[k] = v
	}
	return Value{kind: KindObject, obj: c}
}

// List returns a list value. The slice is copied.
func List(items ...Value) Value {
	c := make([]Value, len(items))
	copy(c, items)
	return Value{kind: KindList, list: c}
}

// Kind returns the runtime shape of v.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string payload and whether v is a string.
func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

// IntVal returns the integer payload and whether v is an integer.
func (v Value) IntVal() (int64, bool) { return v.i, v.kind == KindInt }

// BoolVal returns the boolean payload and whether v is a boolean.
func (v Value) BoolVal() (bool, bool) { return v.b, v.kind == KindBool }

// Number returns v as a float64 for integer and float values.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	}
	return 0, false
}

// Fields returns a copy of an object value's fields, or nil.
func (v Value) Fields() map[string]Value {
	if v.kind != KindObject {
		return nil
	}
	c := make(map[string]Value, len(v.obj))
	for k, f := range v.obj {
		c[k] = f
	}
	return c
}

// Items returns a copy of a list value's items, or nil.
func (v Value) Items() []Value {
	if v.kind != KindList {
		return nil
	}
	c := make([]Value, len(v.list))
	copy(c, v.list)
	return c
}

// Plain converts v to the plain Go shape encoding/json produces: string,
// int64, float64, bool, map[string]any, []any or nil.
func (v Value) Plain() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindObject:
		m := make(map[string]any, len(v.obj))
		for k, f := range v.obj {
			m[k] = f.Plain()
		}
		return m
	case KindList:
		l := make([]any, len(v.list))
		for i, item := range v.list {
			l[i] = item.Plain()
		}
		return l
	default:
		return nil
	}
}

// FromAny converts a decoded JSON (or plain Go) value to a Value. Integral
// numbers become integers; json.Number is parsed the same way.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case float32:
		return numberValue(float64(t)), nil
	case float64:
		return numberValue(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", t.String(), err)
		}
		return numberValue(f), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			fv, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("field %q: %w", k, err)
			}
			m[k] = fv
		}
		return Value{kind: KindObject, obj: m}, nil
	case []any:
		l := make([]Value, len(t))
		for i, item := range t {
			iv, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("item %d: %w", i, err)
			}
			l[i] = iv
		}
		return Value{kind: KindList, list: l}, nil
	case []string:
		l := make([]Value, len(t))
		for i, s := range t {
			l[i] = String(s)
		}
		return Value{kind: KindList, list: l}, nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", x)
	}
}

func numberValue(f float64) Value {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return Int(int64(f))
	}
	return Float(f)
}

// Equal reports deep equality. Integers and floats compare numerically
// and exactly, so distinct integers beyond 2^53 stay distinct.
func (v Value) Equal(o Value) bool {
	if v.isNumber() {
		c, ok := compareNumbers(v, o)
		return ok && c == 0
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.s == o.s
	case KindBool:
		return v.b == o.b
	case KindObject:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, f := range v.obj {
			g, ok := o.obj[k]
			if !ok || !f.Equal(g) {
				return false
			}
		}
		return true
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Compare orders two scalar values of compatible kinds: numbers with
// numbers, strings with strings, booleans with booleans (false < true).
// ok is false when the values are not comparable.
func Compare(a, b Value) (c int, ok bool) {
	if a.isNumber() {
		return compareNumbers(a, b)
	}
	if a.kind != b.kind {
		return 0, false
	}
	switch a.kind {
	case KindString:
		return strings.Compare(a.s, b.s), true
	case KindBool:
		switch {
		case a.b == b.b:
			return 0, true
		case !a.b:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func (v Value) isNumber() bool { return v.kind == KindInt || v.kind == KindFloat }

// compareNumbers orders two numeric values without rounding integers
// through float64. NaN is not comparable.
func compareNumbers(a, b Value) (int, bool) {
	if !a.isNumber() || !b.isNumber() {
		return 0, false
	}
	if a.kind == KindInt && b.kind == KindInt {
		return cmp.Compare(a.i, b.i), true
	}
	if a.kind == KindFloat && b.kind == KindFloat {
		if math.IsNaN(a.f) || math.IsNaN(b.f) {
			return 0, false
		}
		return cmp.Compare(a.f, b.f), true
	}
	x, okx := a.bigFloat()
	y, oky := b.bigFloat()
	if !okx || !oky {
		return 0, false
	}
	return x.Cmp(y), true
}

func (v Value) bigFloat() (*big.Float, bool) {
	if v.kind == KindInt {
		return new(big.Float).SetInt64(v.i), true
	}
	if math.IsNaN(v.f) {
		return nil, false
	}
	return new(big.Float).SetFloat64(v.f), true
}

func (v Value) String() string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<%s>", v.kind)
	}
	return string(b)
}

// MarshalJSON encodes v, writing object keys in sorted order.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindObject:
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			fb, err := v.obj[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(fb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	case KindList:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			ib, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(ib)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil, fmt.Errorf("cannot encode non-finite float %v", v.f)
		}
	}
	return json.Marshal(v.Plain())
}

// UnmarshalJSON decodes any JSON value into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var x any
	if err := dec.Decode(&x); err != nil {
		return err
	}
	decoded, err := FromAny(x)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// Plain converts every value to its plain Go shape.
func (p Properties) Plain() map[string]any {
	m := make(map[string]any, len(p))
	for k, v := range p {
		m[k] = v.Plain()
	}
	return m
}

// Clone returns a shallow copy of p. Values are immutable once built, so
// sharing them is safe.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	c := make(Properties, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// Equal reports whether p and o hold the same keys with equal values.
func (p Properties) Equal(o Properties) bool {
	if len(p) != len(o) {
		return false
	}
	for k, v := range p {
		w, ok := o[k]
		if !ok || !v.Equal(w) {
			return false
		}
	}
	return true
}

// PropertiesFromAny converts a plain decoded JSON object to Properties.
func PropertiesFromAny(m map[string]any) (Properties, error) {
	p := make(Properties, len(m))
	for k, x := range m {
		v, err := FromAny(x)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
		p[k] = v
	}
	return p, nil
}
