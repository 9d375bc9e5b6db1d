package collection

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/liliang-cn/vecdb/pkg/distance"
	"github.com/liliang-cn/vecdb/pkg/hnsw"
)

// IndexKind selects the vector index implementation (spec.md §6
// "Configuration enumeration").
type IndexKind string

const (
	IndexHNSW        IndexKind = "Hnsw"
	IndexBruteForce  IndexKind = "BruteForce"
	defaultIndexKind           = IndexHNSW
)

// FormatVersion gates on-disk compatibility (spec.md §6 "Persisted state
// layout"); a reader rejects a metadata.json whose Version is higher than
// what this build understands.
const FormatVersion = 1

// defaultSnapshotTriggerBytes is the WAL size, in bytes, past which an
// automatic snapshot is taken on the next write if the caller hasn't set
// SnapshotTriggerBytes explicitly.
const defaultSnapshotTriggerBytes = 16 << 20 // 16 MiB

// defaultBitmapFallbackSelectivity: when an exact bitmap answer covers more
// than 1 minus this fraction of the live ids, Collection.Search does not
// use it to gate the beam search and relies on the residual post-filter
// alone, since gating stops paying for itself once nearly every id matches
// (an Open Question in spec.md §9, resolved here as a tunable constant —
// see DESIGN.md). No brute-force scan over the matching ids is done for
// highly selective filters.
const defaultBitmapFallbackSelectivity = 0.01

// Config is the caller-supplied collection configuration (spec.md §6).
type Config struct {
	Dimension int             `json:"dimension"`
	Metric    distance.Metric `json:"metric"`
	IndexKind IndexKind       `json:"index_kind"`

	HNSWM              int     `json:"hnsw_m,omitempty"`
	HNSWMMax0          int     `json:"hnsw_m_max0,omitempty"`
	HNSWEfConstruction int     `json:"hnsw_ef_construction,omitempty"`
	HNSWEfSearch       int     `json:"hnsw_ef_search,omitempty"`
	HNSWLevelMult      float64 `json:"hnsw_level_mult,omitempty"`
	HNSWSeed           int64   `json:"hnsw_seed,omitempty"`

	SnapshotTriggerBytes      uint64  `json:"snapshot_trigger_bytes,omitempty"`
	BitmapFallbackSelectivity float64 `json:"bitmap_fallback_selectivity,omitempty"`
}

func (c *Config) applyDefaults() {
	if c.IndexKind == "" {
		c.IndexKind = defaultIndexKind
	}
	if c.SnapshotTriggerBytes == 0 {
		c.SnapshotTriggerBytes = defaultSnapshotTriggerBytes
	}
	if c.BitmapFallbackSelectivity == 0 {
		c.BitmapFallbackSelectivity = defaultBitmapFallbackSelectivity
	}
}

// hnswConfig projects the collection config onto hnsw.Config. Zero
// fields are left for hnsw.New/NewBruteForce to default (spec.md §4.4).
func (c Config) hnswConfig() hnsw.Config {
	return hnsw.Config{
		Dimension:      c.Dimension,
		Metric:         c.Metric,
		M:              c.HNSWM,
		MMax0:          c.HNSWMMax0,
		EfConstruction: c.HNSWEfConstruction,
		EfSearch:       c.HNSWEfSearch,
		LevelMult:      c.HNSWLevelMult,
		Seed:           c.HNSWSeed,
	}
}

// metadataFile is the exact shape persisted to metadata.json (spec.md
// §4.5 "On-disk layout"), plus the FormatVersion gate.
type metadataFile struct {
	Version int    `json:"version"`
	Config  Config `json:"config"`
}

// readOrCreateMetadata implements spec.md §4.5 "Open / recovery protocol"
// step 1.
func readOrCreateMetadata(dir string, want Config) (Config, error) {
	path := filepath.Join(dir, "metadata.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		want.applyDefaults()
		mf := metadataFile{Version: FormatVersion, Config: want}
		buf, err := json.MarshalIndent(mf, "", "  ")
		if err != nil {
			return Config{}, fmt.Errorf("encode metadata: %w", err)
		}
		if err := os.WriteFile(path, buf, 0o644); err != nil {
			return Config{}, fmt.Errorf("write metadata: %w", err)
		}
		return want, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read metadata: %w", err)
	}

	var mf metadataFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrMetadataMissing, err)
	}
	if mf.Version > FormatVersion {
		return Config{}, ErrUnsupportedVersion
	}
	mf.Config.applyDefaults()

	// Dimension has no valid zero value for a real collection, so it
	// doubles as the "caller supplied an explicit config" signal: Metric's
	// zero value is the meaningful Euclidean, not "unset", so it can only
	// be conflict-checked once we know the caller wasn't just reopening
	// with a bare path.
	if want.Dimension != 0 {
		if want.Dimension != mf.Config.Dimension {
			return Config{}, ErrMetadataConflict
		}
		if want.Metric != mf.Config.Metric {
			return Config{}, ErrMetadataConflict
		}
		wantKind := want.IndexKind
		if wantKind == "" {
			wantKind = defaultIndexKind
		}
		if wantKind != mf.Config.IndexKind {
			return Config{}, ErrMetadataConflict
		}
	}
	return mf.Config, nil
}
