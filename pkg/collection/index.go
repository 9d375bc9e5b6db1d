package collection

import "github.com/liliang-cn/vecdb/pkg/hnsw"

// vectorIndex is the surface pkg/collection needs from either index kind
// (spec.md §6 "index_kind: {BruteForce, Hnsw}"). hnsw.Graph and
// hnsw.BruteForce both already satisfy it without adapters.
type vectorIndex interface {
	Insert(id hnsw.VectorID, v []float32) error
	Update(id hnsw.VectorID, v []float32) error
	Delete(id hnsw.VectorID) error
	Contains(id hnsw.VectorID) bool
	Vector(id hnsw.VectorID) ([]float32, bool)
	Len() int
	Dimension() int
	Search(query []float32, k int, efOverride int, postFilter func(hnsw.VectorID) bool) ([]hnsw.SearchResult, error)
	SearchWithBitmap(query []float32, k int, efOverride int, allowed func(hnsw.VectorID) bool, postFilter func(hnsw.VectorID) bool) ([]hnsw.SearchResult, error)
}

func newVectorIndex(cfg Config) vectorIndex {
	if cfg.IndexKind == IndexBruteForce {
		return hnsw.NewBruteForce(cfg.hnswConfig())
	}
	return hnsw.New(cfg.hnswConfig())
}
