// Package payload represents the per-vector structured metadata stored
// alongside a vector and the filter predicates evaluated against it.
//
// Payload.Value mirrors a JSON document (null, bool, integer, double,
// string, list, map) so a Payload round-trips losslessly through
// encoding/json the way the teacher's metadata columns do
// (pkg/core/document.go, internal/encoding/utils.go), without preserving
// field order across a marshal/unmarshal cycle (spec.md §3).
package payload

import (
	"encoding/json"
	"fmt"
)

// Kind tags the variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
)

// Value is a small closed sum type for payload field values.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	list []Value
	m    map[string]Value
}

func Null() Value                { return Value{kind: KindNull} }
func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func Int(i int64) Value          { return Value{kind: KindInt, i: i} }
func Float(f float64) Value      { return Value{kind: KindFloat, f: f} }
func String(s string) Value      { return Value{kind: KindString, s: s} }
func List(vs []Value) Value      { return Value{kind: KindList, list: vs} }
func Map(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Bool() (bool, bool)   { return v.b, v.kind == KindBool }
func (v Value) Int() (int64, bool)   { return v.i, v.kind == KindInt }
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}
func (v Value) StringValue() (string, bool) { return v.s, v.kind == KindString }
func (v Value) List() ([]Value, bool)       { return v.list, v.kind == KindList }
func (v Value) Map() (map[string]Value, bool) { return v.m, v.kind == KindMap }

// isNumeric reports whether the value can be coerced to a float64 for a
// numeric comparison (spec.md §4.2: "coerce integer and double operands to
// double").
func (v Value) isNumeric() bool {
	return v.kind == KindInt || v.kind == KindFloat
}

// Equal performs deep-equality, used by contained_in membership tests and
// the eq/ne operators (spec.md §4.2).
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		// an int and a float holding the same numeric value are still
		// considered equal under the "numeric" umbrella the way gt/lt are.
		if a.isNumeric() && b.isNumeric() {
			af, _ := a.Float()
			bf, _ := b.Float()
			return af == bf
		}
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f
	case KindString:
		return a.s == b.s
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.m) != len(b.m) {
			return false
		}
		for k, av := range a.m {
			bv, ok := b.m[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// MarshalJSON implements a self-describing JSON-compatible document.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindString:
		return json.Marshal(v.s)
	case KindList:
		return json.Marshal(v.list)
	case KindMap:
		return json.Marshal(v.m)
	default:
		return nil, fmt.Errorf("payload: unknown value kind %d", v.kind)
	}
}

// UnmarshalJSON decodes a JSON document into the matching Value variant.
// Field order of maps is not preserved across the round trip (spec.md §3).
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = fromInterface(raw)
	return nil
}

func fromInterface(raw interface{}) Value {
	switch x := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(x)
	case int:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int64:
		return Int(x)
	case float64:
		// encoding/json decodes all JSON numbers as float64; preserve
		// integral values as Int so gt/lt coercion and eq semantics line
		// up with values constructed directly via Int().
		if x == float64(int64(x)) {
			return Int(int64(x))
		}
		return Float(x)
	case string:
		return String(x)
	case []interface{}:
		vs := make([]Value, len(x))
		for i, e := range x {
			vs[i] = fromInterface(e)
		}
		return List(vs)
	case map[string]interface{}:
		m := make(map[string]Value, len(x))
		for k, e := range x {
			m[k] = fromInterface(e)
		}
		return Map(m)
	default:
		return Null()
	}
}

// Payload is a mapping from field name to Value.
type Payload map[string]Value

// Get looks up a field, returning ok=false if it is absent.
func (p Payload) Get(field string) (Value, bool) {
	v, ok := p[field]
	return v, ok
}

// ToJSON serializes a Payload to its self-describing JSON-compatible form
// (spec.md §3), used by pkg/collection to store a payload alongside a
// vector in the WAL and snapshot.
func (p Payload) ToJSON() ([]byte, error) {
	return json.Marshal(map[string]Value(p))
}

// FromJSON is the inverse of ToJSON.
func FromJSON(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// New builds a Payload from plain Go values, coercing them via the same
// rules as JSON decoding. Convenient for tests and embedders that don't
// want to build Value literals by hand.
func New(fields map[string]interface{}) Payload {
	p := make(Payload, len(fields))
	for k, v := range fields {
		p[k] = fromInterface(normalizeGoValue(v))
	}
	return p
}

// normalizeGoValue widens Go's native numeric types to the ones
// fromInterface switches on directly. Integers (int/int32/int64) are left
// as int64 rather than routed through float64 — float64 only has 53 bits
// of exact integer precision, which would silently corrupt large int64
// values before payload.New ever stored them.
func normalizeGoValue(v interface{}) interface{} {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case float32:
		return float64(x)
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = normalizeGoValue(e)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			out[k] = normalizeGoValue(e)
		}
		return out
	default:
		return v
	}
}
