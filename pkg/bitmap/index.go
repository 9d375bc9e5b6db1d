package bitmap

import (
	"strconv"
	"sync"

	"github.com/liliang-cn/vecdb/pkg/payload"
)

// Index maintains, for each (field, value) pair, a compressed set of
// vector ids, plus a per-field "has this field at all" set for exists and
// a global "every live id" set used for ne-by-complement and for the
// over-approximation answer to operators the bitmap cannot answer exactly
// (spec.md §4.3).
type Index struct {
	mu sync.RWMutex

	all      *shardSet                       // every live id
	values   map[string]map[string]*shardSet // field -> encoded value -> ids
	presence map[string]*shardSet            // field -> ids that have it
}

// New creates an empty bitmap index.
func New() *Index {
	return &Index{
		all:      newShardSet(),
		values:   make(map[string]map[string]*shardSet),
		presence: make(map[string]*shardSet),
	}
}

// Insert adds id to every (field, value) bucket its payload touches.
// Scalar leaf fields are indexed directly; list elements are indexed per
// element; nested maps are not indexed (spec.md §4.3).
func (idx *Index) Insert(id uint64, p payload.Payload) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.all.add(id)
	for field, v := range p {
		idx.indexField(id, field, v)
	}
}

func (idx *Index) indexField(id uint64, field string, v payload.Value) {
	presence, ok := idx.presence[field]
	if !ok {
		presence = newShardSet()
		idx.presence[field] = presence
	}
	presence.add(id)

	if list, ok := v.List(); ok {
		for _, elem := range list {
			idx.addScalar(id, field, elem)
		}
		return
	}
	idx.addScalar(id, field, v)
}

func (idx *Index) addScalar(id uint64, field string, v payload.Value) {
	key, ok := valueKey(v)
	if !ok {
		return // nested objects (and unindexable kinds) are not indexed
	}
	byValue, ok := idx.values[field]
	if !ok {
		byValue = make(map[string]*shardSet)
		idx.values[field] = byValue
	}
	set, ok := byValue[key]
	if !ok {
		set = newShardSet()
		byValue[key] = set
	}
	set.add(id)
}

// Remove is the inverse of Insert.
func (idx *Index) Remove(id uint64, p payload.Payload) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.all.remove(id)
	for field, v := range p {
		if presence, ok := idx.presence[field]; ok {
			presence.remove(id)
		}
		if list, ok := v.List(); ok {
			for _, elem := range list {
				idx.removeScalar(id, field, elem)
			}
			continue
		}
		idx.removeScalar(id, field, v)
	}
}

func (idx *Index) removeScalar(id uint64, field string, v payload.Value) {
	key, ok := valueKey(v)
	if !ok {
		return
	}
	if byValue, ok := idx.values[field]; ok {
		if set, ok := byValue[key]; ok {
			set.remove(id)
		}
	}
}

// Query returns the candidate set for filter. Exact-answer operators are
// eq, ne, contained_in and exists; everything else (gt/gte/lt/lte,
// contains) yields the full live-id universe and relies on the caller's
// post-filter pass (spec.md §4.3).
func (idx *Index) Query(f payload.Filter) IdSet {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.eval(f)
}

func (idx *Index) eval(f payload.Filter) IdSet {
	switch n := f.(type) {
	case *payload.Condition:
		return idx.evalCondition(n)
	case payload.And:
		if len(n.Children) == 0 {
			return IdSet{set: idx.all.clone(), exact: true}
		}
		acc := idx.eval(n.Children[0])
		for _, c := range n.Children[1:] {
			next := idx.eval(c)
			acc = IdSet{set: intersectShards(acc.set, next.set), exact: acc.exact && next.exact}
		}
		return acc
	case payload.Or:
		if len(n.Children) == 0 {
			return IdSet{set: newShardSet(), exact: true}
		}
		acc := idx.eval(n.Children[0])
		for _, c := range n.Children[1:] {
			next := idx.eval(c)
			acc = IdSet{set: unionShards(acc.set, next.set), exact: acc.exact && next.exact}
		}
		return acc
	case payload.Not:
		child := idx.eval(n.Child)
		if child.exact {
			return IdSet{set: diffShards(idx.all, child.set), exact: true}
		}
		// complementing an over-approximation would under-approximate
		// the true result, which is unsound; fall back to the universe.
		return IdSet{set: idx.all.clone(), exact: false}
	default:
		return IdSet{set: idx.all.clone(), exact: false}
	}
}

func (idx *Index) evalCondition(c *payload.Condition) IdSet {
	switch c.Op {
	case payload.OpEq:
		return IdSet{set: idx.lookup(c.Field, c.Operand), exact: true}
	case payload.OpNe:
		eq := idx.lookup(c.Field, c.Operand)
		return IdSet{set: diffShards(idx.all, eq), exact: true}
	case payload.OpContainedIn:
		list, _ := c.Operand.List()
		acc := newShardSet()
		for _, v := range list {
			acc = unionShards(acc, idx.lookup(c.Field, v))
		}
		return IdSet{set: acc, exact: true}
	case payload.OpExists:
		if set, ok := idx.presence[c.Field]; ok {
			return IdSet{set: set.clone(), exact: true}
		}
		return IdSet{set: newShardSet(), exact: true}
	default:
		// gt, gte, lt, lte, contains: the bitmap has no range or substring
		// index, so it yields the universe and the residual filter
		// (payload.Filter.Matches) decides membership (spec.md §4.3).
		return IdSet{set: idx.all.clone(), exact: false}
	}
}

func (idx *Index) lookup(field string, v payload.Value) *shardSet {
	key, ok := valueKey(v)
	if !ok {
		return newShardSet()
	}
	byValue, ok := idx.values[field]
	if !ok {
		return newShardSet()
	}
	set, ok := byValue[key]
	if !ok {
		return newShardSet()
	}
	return set
}

// valueKey produces a canonical string key for scalar Value kinds. Lists
// and maps are not directly indexable (callers index list elements one at
// a time; maps are never indexed per spec.md §4.3).
func valueKey(v payload.Value) (string, bool) {
	switch v.Kind() {
	case payload.KindNull:
		return "n:", true
	case payload.KindBool:
		b, _ := v.Bool()
		if b {
			return "b:1", true
		}
		return "b:0", true
	case payload.KindInt, payload.KindFloat:
		// Both kinds share one numeric key space (via their float64
		// widening) so that eq/contained_in stay exact even when a field
		// holds a mix of Int(10) and Float(10.0) across entries — the
		// same coercion payload.Condition.Matches applies for gt/lt.
		fl, _ := v.Float()
		return "num:" + strconv.FormatFloat(fl, 'g', -1, 64), true
	case payload.KindString:
		s, _ := v.StringValue()
		return "s:" + s, true
	default:
		return "", false
	}
}
