package hnsw

import (
	"math"

	"github.com/liliang-cn/vecdb/pkg/distance"
)

// VectorID is the caller-chosen identifier for a vector (spec.md §3).
type VectorID = uint64

// NodeIdx is the dense, graph-internal position of a node, distinct from
// VectorID. Storing neighbor lists as NodeIdx rather than VectorID (or a
// pointer) avoids the cyclic-ownership problem a pointer graph would have
// and keeps neighbor lookups a flat array index (spec.md §9 design note).
type NodeIdx uint32

// Config holds the tunable HNSW parameters (spec.md §4.4).
type Config struct {
	Dimension      int
	Metric         distance.Metric
	M              int     // target out-degree per node per layer (default 16)
	MMax0          int     // out-degree cap at layer 0 (default 2*M)
	EfConstruction int     // beam width during insert (default 100)
	EfSearch       int     // default beam width during search (default 50)
	LevelMult      float64 // 1/ln(M) by default
	Seed           int64   // deterministic RNG seed
}

// DefaultConfig returns a Config for dim and metric with every tuning field
// set to its spec.md §4.4 default.
func DefaultConfig(dim int, metric distance.Metric) Config {
	return Config{
		Dimension:      dim,
		Metric:         metric,
		M:              16,
		MMax0:          32,
		EfConstruction: 100,
		EfSearch:       50,
		LevelMult:      1.0 / ln(16),
		Seed:           0,
	}
}

func (c *Config) applyDefaults() {
	if c.M <= 0 {
		c.M = 16
	}
	if c.MMax0 <= 0 {
		c.MMax0 = 2 * c.M
	}
	if c.EfConstruction <= 0 {
		c.EfConstruction = 100
	}
	if c.EfSearch <= 0 {
		c.EfSearch = 50
	}
	if c.LevelMult <= 0 {
		c.LevelMult = 1.0 / ln(float64(c.M))
	}
}

// SearchResult is one ranked hit from Search/SearchWithBitmap.
type SearchResult struct {
	ID       VectorID
	Distance float32
}

func ln(x float64) float64 {
	return math.Log(x)
}
