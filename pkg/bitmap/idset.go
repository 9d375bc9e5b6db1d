// Package bitmap implements the compressed-id-set auxiliary index that
// accelerates highly selective metadata filters ahead of an HNSW or
// brute-force scan (spec.md §4.3).
//
// The compressed-set representation is github.com/RoaringBitmap/roaring/v2
// — pulled into this module from the rest of the retrieval pack (it rides
// in as an indirect dependency of bleve-based indexers there) and wired
// here as the direct, load-bearing dependency spec.md names as "the
// canonical choice" for a run-length id set.
package bitmap

import "github.com/RoaringBitmap/roaring/v2"

// shardSet widens roaring.Bitmap (32-bit) to the spec's 64-bit VectorId
// space: the high 32 bits of an id select a shard, the low 32 bits are
// the roaring-encoded member. Most collections never populate more than
// one shard; the scheme only pays for itself when ids climb past 2^32.
type shardSet struct {
	shards map[uint32]*roaring.Bitmap
}

func newShardSet() *shardSet {
	return &shardSet{shards: make(map[uint32]*roaring.Bitmap)}
}

func split(id uint64) (hi, lo uint32) {
	return uint32(id >> 32), uint32(id)
}

func join(hi, lo uint32) uint64 {
	return uint64(hi)<<32 | uint64(lo)
}

func (s *shardSet) add(id uint64) {
	hi, lo := split(id)
	b, ok := s.shards[hi]
	if !ok {
		b = roaring.New()
		s.shards[hi] = b
	}
	b.Add(lo)
}

func (s *shardSet) remove(id uint64) {
	hi, lo := split(id)
	if b, ok := s.shards[hi]; ok {
		b.Remove(lo)
		if b.IsEmpty() {
			delete(s.shards, hi)
		}
	}
}

func (s *shardSet) contains(id uint64) bool {
	hi, lo := split(id)
	b, ok := s.shards[hi]
	return ok && b.Contains(lo)
}

func (s *shardSet) cardinality() uint64 {
	var n uint64
	for _, b := range s.shards {
		n += b.GetCardinality()
	}
	return n
}

func (s *shardSet) clone() *shardSet {
	out := newShardSet()
	for hi, b := range s.shards {
		out.shards[hi] = b.Clone()
	}
	return out
}

func (s *shardSet) isEmpty() bool {
	for _, b := range s.shards {
		if !b.IsEmpty() {
			return false
		}
	}
	return true
}

func (s *shardSet) forEach(f func(id uint64) bool) {
	for hi, b := range s.shards {
		it := b.Iterator()
		for it.HasNext() {
			if !f(join(hi, it.Next())) {
				return
			}
		}
	}
}

func unionShards(a, b *shardSet) *shardSet {
	out := a.clone()
	for hi, bb := range b.shards {
		if ab, ok := out.shards[hi]; ok {
			ab.Or(bb)
		} else {
			out.shards[hi] = bb.Clone()
		}
	}
	return out
}

func intersectShards(a, b *shardSet) *shardSet {
	out := newShardSet()
	for hi, ab := range a.shards {
		if bb, ok := b.shards[hi]; ok {
			out.shards[hi] = roaring.And(ab, bb)
		}
	}
	return out
}

func diffShards(a, b *shardSet) *shardSet {
	out := newShardSet()
	for hi, ab := range a.shards {
		if bb, ok := b.shards[hi]; ok {
			out.shards[hi] = roaring.AndNot(ab, bb)
		} else {
			out.shards[hi] = ab.Clone()
		}
	}
	return out
}

// IdSet is the result of a bitmap Query: a compressed set of candidate
// ids plus whether that set is an exact answer to the filter it came from
// or an over-approximation that still needs post-filtering (spec.md
// §4.3).
type IdSet struct {
	set   *shardSet
	exact bool
}

// Exact reports whether every id in the set is guaranteed to satisfy the
// filter it was produced from (no post-filtering required).
func (s IdSet) Exact() bool { return s.exact }

// Contains reports whether id is a member of the candidate set.
func (s IdSet) Contains(id uint64) bool {
	if s.set == nil {
		return false
	}
	return s.set.contains(id)
}

// Len returns the number of candidate ids.
func (s IdSet) Len() uint64 {
	if s.set == nil {
		return 0
	}
	return s.set.cardinality()
}

// ForEach calls f for every candidate id until f returns false.
func (s IdSet) ForEach(f func(id uint64) bool) {
	if s.set == nil {
		return
	}
	s.set.forEach(f)
}

// Ids materializes the set as a slice, for callers (e.g. the brute-force
// fallback) that want to range over it directly.
func (s IdSet) Ids() []uint64 {
	out := make([]uint64, 0, s.Len())
	s.ForEach(func(id uint64) bool {
		out = append(out, id)
		return true
	})
	return out
}
