package bitmap

import (
	"testing"

	"github.com/liliang-cn/vecdb/pkg/payload"
)

func TestEqExact(t *testing.T) {
	idx := New()
	idx.Insert(1, payload.New(map[string]interface{}{"cat": "a"}))
	idx.Insert(2, payload.New(map[string]interface{}{"cat": "b"}))

	cond, _ := payload.NewCondition("cat", payload.OpEq, payload.String("a"))
	res := idx.Query(cond)
	if !res.Exact() {
		t.Fatal("expected exact result")
	}
	if !res.Contains(1) || res.Contains(2) {
		t.Errorf("expected only id 1, got ids=%v", res.Ids())
	}
}

func TestNeByComplement(t *testing.T) {
	idx := New()
	idx.Insert(1, payload.New(map[string]interface{}{"cat": "a"}))
	idx.Insert(2, payload.New(map[string]interface{}{"cat": "b"}))
	idx.Insert(3, payload.New(map[string]interface{}{"cat": "a"}))

	cond, _ := payload.NewCondition("cat", payload.OpNe, payload.String("a"))
	res := idx.Query(cond)
	if !res.Exact() {
		t.Fatal("expected exact result")
	}
	if res.Len() != 1 || !res.Contains(2) {
		t.Errorf("expected only id 2, got %v", res.Ids())
	}
}

func TestOverApproximationForRangeAndContains(t *testing.T) {
	idx := New()
	idx.Insert(1, payload.New(map[string]interface{}{"title": "The Rust Book"}))
	idx.Insert(2, payload.New(map[string]interface{}{"title": "Go in Action"}))

	cond, _ := payload.NewCondition("title", payload.OpContains, payload.String("Rust"))
	res := idx.Query(cond)
	if res.Exact() {
		t.Fatal("contains must be reported as an over-approximation")
	}
	if !res.Contains(1) || !res.Contains(2) {
		t.Error("over-approximation must be a superset of the true result")
	}
}

func TestContainedInUnion(t *testing.T) {
	idx := New()
	idx.Insert(1, payload.New(map[string]interface{}{"tag": "a"}))
	idx.Insert(2, payload.New(map[string]interface{}{"tag": "b"}))
	idx.Insert(3, payload.New(map[string]interface{}{"tag": "c"}))

	cond, _ := payload.NewCondition("tag", payload.OpContainedIn, payload.List([]payload.Value{payload.String("a"), payload.String("b")}))
	res := idx.Query(cond)
	if !res.Exact() {
		t.Fatal("expected exact result")
	}
	if res.Len() != 2 || !res.Contains(1) || !res.Contains(2) || res.Contains(3) {
		t.Errorf("got %v", res.Ids())
	}
}

func TestExists(t *testing.T) {
	idx := New()
	idx.Insert(1, payload.New(map[string]interface{}{"cat": "a"}))
	idx.Insert(2, payload.New(map[string]interface{}{"other": "x"}))

	cond, _ := payload.NewCondition("cat", payload.OpExists, payload.Null())
	res := idx.Query(cond)
	if !res.Exact() || res.Len() != 1 || !res.Contains(1) {
		t.Errorf("got %v exact=%v", res.Ids(), res.Exact())
	}
}

func TestArrayElementsIndexedPerElement(t *testing.T) {
	idx := New()
	idx.Insert(1, payload.New(map[string]interface{}{"tags": []interface{}{"x", "y"}}))

	cond, _ := payload.NewCondition("tags", payload.OpContainedIn, payload.List([]payload.Value{payload.String("y")}))
	res := idx.Query(cond)
	if !res.Exact() || !res.Contains(1) {
		t.Errorf("expected element match, got %v", res.Ids())
	}
}

func TestNestedObjectsNotIndexed(t *testing.T) {
	idx := New()
	idx.Insert(1, payload.New(map[string]interface{}{"meta": map[string]interface{}{"k": "v"}}))

	cond, _ := payload.NewCondition("meta", payload.OpEq, payload.String("whatever"))
	res := idx.Query(cond)
	if res.Len() != 0 {
		t.Errorf("nested object should not be indexed, got %v", res.Ids())
	}
}

func TestAndIntersectsOrUnions(t *testing.T) {
	idx := New()
	idx.Insert(1, payload.New(map[string]interface{}{"a": "x", "b": "y"}))
	idx.Insert(2, payload.New(map[string]interface{}{"a": "x", "b": "z"}))

	ca, _ := payload.NewCondition("a", payload.OpEq, payload.String("x"))
	cb, _ := payload.NewCondition("b", payload.OpEq, payload.String("y"))

	and := idx.Query(payload.And{Children: []payload.Filter{ca, cb}})
	if and.Len() != 1 || !and.Contains(1) {
		t.Errorf("expected and to isolate id 1, got %v", and.Ids())
	}

	or := idx.Query(payload.Or{Children: []payload.Filter{ca, cb}})
	if or.Len() != 2 {
		t.Errorf("expected or to match both, got %v", or.Ids())
	}
}

func TestRemoveInverse(t *testing.T) {
	idx := New()
	p := payload.New(map[string]interface{}{"cat": "a"})
	idx.Insert(1, p)
	idx.Remove(1, p)

	cond, _ := payload.NewCondition("cat", payload.OpEq, payload.String("a"))
	res := idx.Query(cond)
	if res.Len() != 0 {
		t.Errorf("expected empty after remove, got %v", res.Ids())
	}
}

func TestSoundnessAgainstNaiveFilter(t *testing.T) {
	idx := New()
	payloads := map[uint64]payload.Payload{
		1: payload.New(map[string]interface{}{"title": "The Rust Book", "price": 10}),
		2: payload.New(map[string]interface{}{"title": "Go in Action", "price": 20}),
		3: payload.New(map[string]interface{}{"title": "Rust for Rustaceans", "price": 30}),
	}
	for id, p := range payloads {
		idx.Insert(id, p)
	}

	cond, _ := payload.NewCondition("title", payload.OpContains, payload.String("Rust"))
	res := idx.Query(cond)

	naive := map[uint64]bool{}
	for id, p := range payloads {
		if cond.Matches(p) {
			naive[id] = true
		}
	}
	for id := range naive {
		if !res.Contains(id) {
			t.Errorf("bitmap.Query must be a superset of the naive filter result; missing id %d", id)
		}
	}
}
