package hnsw

import (
	"sort"
	"sync"

	"github.com/liliang-cn/vecdb/pkg/distance"
)

// BruteForce is the exact-search alternative to Graph (spec.md §4.4
// "index_kind: BruteForce"): a flat scan, no approximate structure, used
// when a collection is small or exact recall is required. It shares
// Config, SearchResult, VectorID and the same error values as Graph so
// callers (pkg/collection) can select between the two without branching
// on result types.
type BruteForce struct {
	mu sync.RWMutex

	cfg     Config
	ids     []VectorID
	vectors [][]float32
	idToPos map[VectorID]int
	deleted map[VectorID]bool
}

// NewBruteForce creates an empty exact index.
func NewBruteForce(cfg Config) *BruteForce {
	cfg.applyDefaults()
	return &BruteForce{
		cfg:     cfg,
		idToPos: make(map[VectorID]int),
		deleted: make(map[VectorID]bool),
	}
}

func (b *BruteForce) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, id := range b.ids {
		if !b.deleted[id] {
			n++
		}
	}
	return n
}

func (b *BruteForce) Dimension() int { return b.cfg.Dimension }

// Insert follows the same precondition contract as Graph.Insert (spec.md
// §4.4) so the two index kinds are interchangeable behind pkg/collection.
func (b *BruteForce) Insert(id VectorID, v []float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(v) == 0 {
		return ErrEmptyVector
	}
	if len(v) != b.cfg.Dimension {
		return ErrDimensionMismatch
	}
	if b.deleted[id] {
		return ErrReinsertDeletedID
	}
	if _, exists := b.idToPos[id]; exists {
		return ErrDuplicateID
	}
	if b.cfg.Metric == distance.Cosine && distance.ZeroVector(v) {
		return ErrZeroVectorCosine
	}

	vec := make([]float32, len(v))
	copy(vec, v)
	b.idToPos[id] = len(b.ids)
	b.ids = append(b.ids, id)
	b.vectors = append(b.vectors, vec)
	return nil
}

func (b *BruteForce) Update(id VectorID, v []float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos, exists := b.idToPos[id]
	if !exists {
		return ErrUnknownID
	}
	if len(v) != b.cfg.Dimension {
		return ErrDimensionMismatch
	}
	if b.cfg.Metric == distance.Cosine && distance.ZeroVector(v) {
		return ErrZeroVectorCosine
	}
	vec := make([]float32, len(v))
	copy(vec, v)
	b.vectors[pos] = vec
	delete(b.deleted, id)
	return nil
}

func (b *BruteForce) Delete(id VectorID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.idToPos[id]; !exists {
		return ErrUnknownID
	}
	if b.deleted[id] {
		return ErrAlreadyDeleted
	}
	b.deleted[id] = true
	return nil
}

func (b *BruteForce) Contains(id VectorID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, exists := b.idToPos[id]
	return exists && !b.deleted[id]
}

// Vector returns the stored vector for a live id.
func (b *BruteForce) Vector(id VectorID) ([]float32, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	pos, exists := b.idToPos[id]
	if !exists || b.deleted[id] {
		return nil, false
	}
	return b.vectors[pos], true
}

// Search scans every live vector and returns the k closest (spec.md §4.4
// end-to-end scenario 1, "Exact-recall sanity").
func (b *BruteForce) Search(query []float32, k int, _ int, postFilter func(VectorID) bool) ([]SearchResult, error) {
	return b.search(query, k, nil, postFilter)
}

// SearchWithBitmap restricts the scan to ids allowed admits.
func (b *BruteForce) SearchWithBitmap(query []float32, k int, _ int, allowed func(VectorID) bool, postFilter func(VectorID) bool) ([]SearchResult, error) {
	return b.search(query, k, allowed, postFilter)
}

func (b *BruteForce) search(query []float32, k int, allowed func(VectorID) bool, postFilter func(VectorID) bool) ([]SearchResult, error) {
	if k == 0 {
		return nil, ErrZeroK
	}
	if len(query) != b.cfg.Dimension {
		return nil, ErrDimensionMismatch
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	all := make([]SearchResult, 0, len(b.ids))
	for i, id := range b.ids {
		if b.deleted[id] {
			continue
		}
		if allowed != nil && !allowed(id) {
			continue
		}
		if postFilter != nil && !postFilter(id) {
			continue
		}
		all = append(all, SearchResult{ID: id, Distance: distance.Distance(b.cfg.Metric, query, b.vectors[i])})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Distance < all[j].Distance })
	if len(all) > k {
		all = all[:k]
	}
	return all, nil
}
