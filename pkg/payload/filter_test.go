package payload

import "testing"

func mustCond(t *testing.T, field string, op Op, operand Value) *Condition {
	t.Helper()
	c, err := NewCondition(field, op, operand)
	if err != nil {
		t.Fatalf("NewCondition: %v", err)
	}
	return c
}

func TestConditionEq(t *testing.T) {
	p := New(map[string]interface{}{"cat": "a"})
	c := mustCond(t, "cat", OpEq, String("a"))
	if !c.Matches(p) {
		t.Error("expected match")
	}
	c2 := mustCond(t, "cat", OpEq, String("b"))
	if c2.Matches(p) {
		t.Error("expected no match")
	}
}

func TestMissingFieldSemantics(t *testing.T) {
	p := New(map[string]interface{}{"x": 1})

	if mustCond(t, "missing", OpEq, String("a")).Matches(p) {
		t.Error("eq on missing field must be false")
	}
	if !mustCond(t, "missing", OpNe, String("a")).Matches(p) {
		t.Error("ne on missing field must be true")
	}
	if mustCond(t, "missing", OpExists, Null()).Matches(p) {
		t.Error("exists on missing field must be false")
	}
	if mustCond(t, "missing", OpGt, Int(1)).Matches(p) {
		t.Error("gt on missing field must be false")
	}
}

func TestNumericCoercion(t *testing.T) {
	p := New(map[string]interface{}{"price": 10})
	if !mustCond(t, "price", OpGt, Float(9.5)).Matches(p) {
		t.Error("int field compared to float operand should coerce")
	}
	if !mustCond(t, "price", OpLte, Int(10)).Matches(p) {
		t.Error("lte should include equal")
	}

	ps := New(map[string]interface{}{"price": "ten"})
	if mustCond(t, "price", OpGt, Int(1)).Matches(ps) {
		t.Error("non-numeric field should make gt false")
	}
}

func TestContainedIn(t *testing.T) {
	p := New(map[string]interface{}{"tag": "b"})
	c := mustCond(t, "tag", OpContainedIn, List([]Value{String("a"), String("b")}))
	if !c.Matches(p) {
		t.Error("expected membership match")
	}
	if _, err := NewCondition("tag", OpContainedIn, String("not a list")); err == nil {
		t.Error("expected error for non-list operand")
	}
}

func TestContainsSubstringAndElement(t *testing.T) {
	p := New(map[string]interface{}{"title": "The Rust Book"})
	if !mustCond(t, "title", OpContains, String("Rust")).Matches(p) {
		t.Error("expected substring match")
	}
	if mustCond(t, "title", OpContains, String("Go")).Matches(p) {
		t.Error("expected no match")
	}

	pl := New(map[string]interface{}{"tags": []interface{}{"a", "b"}})
	if !mustCond(t, "tags", OpContains, String("b")).Matches(pl) {
		t.Error("expected element-of match")
	}
}

func TestExistsRequiresNoOperand(t *testing.T) {
	if _, err := NewCondition("x", OpExists, String("y")); err == nil {
		t.Error("expected error when exists is given an operand")
	}
}

func TestAndOrNotShortCircuit(t *testing.T) {
	p := New(map[string]interface{}{"a": 1})
	calls := 0
	tracking := trackingCondition{match: false, calls: &calls}

	and := And{Children: []Filter{tracking, mustCond(t, "a", OpEq, Int(1))}}
	if and.Matches(p) {
		t.Error("And should be false when first child is false")
	}
	if calls != 1 {
		t.Errorf("expected short-circuit after first child, calls=%d", calls)
	}

	calls = 0
	trackingTrue := trackingCondition{match: true, calls: &calls}
	or := Or{Children: []Filter{trackingTrue, mustCond(t, "a", OpEq, Int(1))}}
	if !or.Matches(p) {
		t.Error("Or should be true")
	}
	if calls != 1 {
		t.Errorf("expected short-circuit after first true child, calls=%d", calls)
	}

	not := Not{Child: mustCond(t, "a", OpEq, Int(2))}
	if !not.Matches(p) {
		t.Error("Not should negate")
	}
}

// trackingCondition counts how many times Matches is invoked, to verify
// short-circuit evaluation in And/Or.
type trackingCondition struct {
	match bool
	calls *int
}

func (trackingCondition) isFilter() {}
func (t trackingCondition) Matches(Payload) bool {
	*t.calls++
	return t.match
}

func TestUnknownOpRejected(t *testing.T) {
	if _, err := NewCondition("x", Op(99), Null()); err == nil {
		t.Error("expected error for unknown operator")
	}
}

func TestNewPreservesLargeInt64Precision(t *testing.T) {
	// Regression: New() used to widen every Go integer type through
	// float64 before classifying it, silently truncating int64 values
	// beyond 2^53's exact range.
	const want int64 = 9007199254740993 // 2^53 + 1, not exactly representable as float64
	p := New(map[string]interface{}{"x": want, "y": int(want % (1 << 31)), "z": int32(12345)})

	got, ok := p["x"].Int()
	if !ok || got != want {
		t.Fatalf("int64 field: got (%d, %v), want (%d, true)", got, ok, want)
	}
	if p["x"].Kind() != KindInt {
		t.Fatalf("expected KindInt, got %v", p["x"].Kind())
	}

	gotY, ok := p["y"].Int()
	if !ok || gotY != want%(1<<31) {
		t.Fatalf("int field: got (%d, %v)", gotY, ok)
	}
	gotZ, ok := p["z"].Int()
	if !ok || gotZ != 12345 {
		t.Fatalf("int32 field: got (%d, %v)", gotZ, ok)
	}
}

func TestValueJSONRoundTrip(t *testing.T) {
	p := New(map[string]interface{}{
		"s":    "hi",
		"n":    42,
		"f":    3.5,
		"b":    true,
		"nil":  nil,
		"list": []interface{}{1, "two", 3.0},
		"map":  map[string]interface{}{"k": "v"},
	})
	for k, v := range p {
		data, err := v.MarshalJSON()
		if err != nil {
			t.Fatalf("marshal %s: %v", k, err)
		}
		var back Value
		if err := back.UnmarshalJSON(data); err != nil {
			t.Fatalf("unmarshal %s: %v", k, err)
		}
		if !Equal(v, back) {
			t.Errorf("field %s: round trip mismatch: %v vs %v", k, v, back)
		}
	}
}
