// Package collection implements the persistent Collection described in
// spec.md §4.5: one vector index (HNSW or brute-force) plus a bitmap
// pre-filter index, backed by a WAL and periodic snapshots on disk.
// Locking and error-wrapping follow the teacher's SQLiteStore
// (store.go): a single sync.RWMutex, an Op-tagged error type, and a
// read-only latch once an I/O error has been observed.
package collection

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/liliang-cn/vecdb/internal/walfmt"
	"github.com/liliang-cn/vecdb/pkg/bitmap"
	"github.com/liliang-cn/vecdb/pkg/hnsw"
	"github.com/liliang-cn/vecdb/pkg/payload"
)

// SearchResult is one ranked hit (spec.md §3: "(id, distance, payload?)").
type SearchResult struct {
	ID       uint64
	Distance float32
	Payload  payload.Payload
}

// Collection is a directory-backed, durable vector collection. All
// exported methods are safe for concurrent use: writes take the
// exclusive half of mu, searches the shared half (spec.md §5 "Locking
// discipline of a Collection").
type Collection struct {
	mu sync.RWMutex

	dir string
	cfg Config

	index    vectorIndex
	bitmap   *bitmap.Index
	payloads map[uint64]payload.Payload

	walFile               *os.File
	walBytesSinceSnapshot uint64

	lock *flock.Flock

	closed   bool
	readOnly bool
}

// Open implements spec.md §4.5 "Open / recovery protocol" and §6
// "open_or_create". cfg's zero-value fields (IndexKind, HNSW tuning,
// SnapshotTriggerBytes) are defaulted. When metadata.json already exists
// and cfg.Dimension is non-zero, cfg's Dimension, Metric and IndexKind are
// checked against it and a conflict is rejected; cfg's other fields are
// not checked, and the stored config is used as-is.
func Open(dir string, cfg Config) (*Collection, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, wrapError("open", fmt.Errorf("create collection directory: %w", err))
	}

	lock := flock.New(filepath.Join(dir, ".vecdb.lock"))
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, wrapError("open", fmt.Errorf("acquire lock file: %w", err))
	}
	if !acquired {
		return nil, wrapError("open", ErrAlreadyOpen)
	}

	finalCfg, err := readOrCreateMetadata(dir, cfg)
	if err != nil {
		_ = lock.Unlock()
		return nil, wrapError("open", err)
	}

	c := &Collection{
		dir:      dir,
		cfg:      finalCfg,
		index:    newVectorIndex(finalCfg),
		bitmap:   bitmap.New(),
		payloads: make(map[uint64]payload.Payload),
		lock:     lock,
	}

	if err := c.loadSnapshot(); err != nil {
		_ = lock.Unlock()
		return nil, wrapError("open", err)
	}
	if err := c.replayWAL(); err != nil {
		_ = lock.Unlock()
		return nil, wrapError("open", err)
	}

	walFile, err := os.OpenFile(filepath.Join(dir, "wal.bin"), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		_ = lock.Unlock()
		return nil, wrapError("open", fmt.Errorf("open wal.bin: %w", err))
	}
	info, err := walFile.Stat()
	if err != nil {
		_ = walFile.Close()
		_ = lock.Unlock()
		return nil, wrapError("open", err)
	}
	c.walFile = walFile
	c.walBytesSinceSnapshot = uint64(info.Size())

	return c, nil
}

func (c *Collection) loadSnapshot() error {
	path := filepath.Join(c.dir, "data.bin")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read data.bin: %w", err)
	}

	r := bytes.NewReader(data)
	count, err := walfmt.ReadSnapshotHeader(r)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadSnapshotHeader, err) // fatal to open
	}
	for i := uint64(0); i < count; i++ {
		id, vec, payloadBytes, err := walfmt.ReadSnapshotEntry(r)
		if err != nil {
			return fmt.Errorf("read snapshot entry %d: %w", i, err)
		}
		p, err := decodePayload(payloadBytes)
		if err != nil {
			return fmt.Errorf("decode snapshot payload %d: %w", i, err)
		}
		c.applyInsert(id, vec, p)
	}
	return nil
}

// replayWAL implements spec.md §4.5 step 3: scan records, verifying
// length and CRC; on the first mismatch or truncated tail, truncate the
// file at the last valid record boundary and stop (crash-during-append
// tolerance), rather than treating it as an open error.
func (c *Collection) replayWAL() error {
	path := filepath.Join(c.dir, "wal.bin")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read wal.bin: %w", err)
	}

	r := bytes.NewReader(data)
	var validOffset int64
	for r.Len() > 0 {
		before := r.Len()
		rec, err := walfmt.ReadRecord(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			break // corrupt/truncated tail: stop here, truncate below
		}
		validOffset += int64(before - r.Len())
		if err := c.applyWALRecord(rec); err != nil {
			return fmt.Errorf("replay wal record: %w", err)
		}
	}

	if validOffset < int64(len(data)) {
		if err := os.Truncate(path, validOffset); err != nil {
			return fmt.Errorf("truncate corrupt wal tail: %w", err)
		}
	}
	return nil
}

// applyWALRecord applies one record during recovery, tolerating the
// duplicate-application cases spec.md §4.5 calls out explicitly: "insert
// of an already-present id becomes update; delete of an absent id is a
// no-op."
func (c *Collection) applyWALRecord(rec walfmt.Record) error {
	p, err := decodePayload(rec.Payload)
	if err != nil {
		return err
	}
	switch rec.Op {
	case walfmt.OpInsert:
		if c.index.Contains(rec.ID) {
			return c.applyUpdate(rec.ID, rec.Vector, p)
		}
		c.applyInsert(rec.ID, rec.Vector, p)
	case walfmt.OpUpdate:
		if !c.index.Contains(rec.ID) {
			c.applyInsert(rec.ID, rec.Vector, p)
			return nil
		}
		return c.applyUpdate(rec.ID, rec.Vector, p)
	case walfmt.OpDelete:
		if !c.index.Contains(rec.ID) {
			return nil
		}
		c.applyDelete(rec.ID)
	}
	return nil
}

func (c *Collection) applyInsert(id uint64, v []float32, p payload.Payload) {
	_ = c.index.Insert(id, v) // recovery only re-applies ops that already once succeeded
	c.bitmap.Insert(id, p)
	c.payloads[id] = p
}

func (c *Collection) applyUpdate(id uint64, v []float32, p payload.Payload) error {
	if old, ok := c.payloads[id]; ok {
		c.bitmap.Remove(id, old)
	}
	if err := c.index.Update(id, v); err != nil {
		return err
	}
	c.bitmap.Insert(id, p)
	c.payloads[id] = p
	return nil
}

func (c *Collection) applyDelete(id uint64) {
	if old, ok := c.payloads[id]; ok {
		c.bitmap.Remove(id, old)
	}
	_ = c.index.Delete(id)
	delete(c.payloads, id)
}

func decodePayload(data []byte) (payload.Payload, error) {
	if len(data) == 0 {
		return payload.Payload{}, nil
	}
	return payload.FromJSON(data)
}

func encodePayload(p payload.Payload) ([]byte, error) {
	if len(p) == 0 {
		return nil, nil
	}
	return p.ToJSON()
}

// Insert adds a new vector+payload under id (spec.md §4.5 "Write path").
func (c *Collection) Insert(id uint64, v []float32, p payload.Payload) error {
	return c.write("insert", walfmt.OpInsert, id, v, p)
}

// Update replaces the vector and payload stored under id.
func (c *Collection) Update(id uint64, v []float32, p payload.Payload) error {
	return c.write("update", walfmt.OpUpdate, id, v, p)
}

// Delete tombstones id.
func (c *Collection) Delete(id uint64) error {
	return c.write("delete", walfmt.OpDelete, id, nil, nil)
}

func (c *Collection) write(op string, kind walfmt.Op, id uint64, v []float32, p payload.Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return wrapError(op, ErrClosed)
	}
	if c.readOnly {
		return wrapError(op, ErrReadOnly)
	}

	if kind != walfmt.OpDelete {
		if len(v) != c.index.Dimension() {
			return wrapError(op, ErrDimensionMismatch)
		}
	}
	switch kind {
	case walfmt.OpInsert:
		if c.index.Contains(id) {
			return wrapError(op, ErrDuplicateID)
		}
	case walfmt.OpUpdate, walfmt.OpDelete:
		if !c.index.Contains(id) {
			return wrapError(op, ErrUnknownID)
		}
	}

	payloadBytes, err := encodePayload(p)
	if err != nil {
		return wrapError(op, fmt.Errorf("encode payload: %w", err))
	}

	rec := walfmt.Record{Op: kind, ID: id, Vector: v, Payload: payloadBytes}
	if kind == walfmt.OpDelete {
		rec.Vector, rec.Payload = nil, nil
	}
	enc, err := walfmt.EncodeWALRecord(rec)
	if err != nil {
		return wrapError(op, err)
	}

	n, err := c.walFile.Write(enc)
	if err != nil {
		c.readOnly = true
		return wrapError(op, fmt.Errorf("append wal: %w", err))
	}
	c.walBytesSinceSnapshot += uint64(n)

	switch kind {
	case walfmt.OpInsert:
		if err := c.index.Insert(id, v); err != nil {
			return wrapError(op, err)
		}
		c.bitmap.Insert(id, p)
		c.payloads[id] = p
	case walfmt.OpUpdate:
		if err := c.applyUpdate(id, v, p); err != nil {
			return wrapError(op, err)
		}
	case walfmt.OpDelete:
		c.applyDelete(id)
	}

	if c.walBytesSinceSnapshot >= c.cfg.SnapshotTriggerBytes {
		if err := c.snapshotLocked(); err != nil {
			return wrapError(op, err)
		}
	}
	return nil
}

// Search runs a k-NN query, optionally restricted by filter (spec.md §4.4
// "Search", §4.3 "Bitmap index"). The filter itself is always evaluated as
// a residual post-filter over the index's candidates. An exact bitmap
// result additionally gates admission into the index's beam search, unless
// it is so unselective (more than 1-BitmapFallbackSelectivity of the live
// ids) that gating wouldn't narrow the search meaningfully; an
// over-approximate result is not used for gating.
func (c *Collection) Search(query []float32, k int, filter payload.Filter) ([]SearchResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, wrapError("search", ErrClosed)
	}
	if k == 0 {
		return nil, wrapError("search", ErrZeroK)
	}
	if len(query) != c.index.Dimension() {
		return nil, wrapError("search", ErrDimensionMismatch)
	}

	var hits []hnsw.SearchResult
	var err error
	if filter == nil {
		hits, err = c.index.Search(query, k, 0, nil)
	} else {
		bm := c.bitmap.Query(filter)
		postFilter := func(id uint64) bool { return filter.Matches(c.payloads[id]) }

		var allowed func(uint64) bool
		if bm.Exact() {
			total := c.index.Len()
			ratio := 1.0
			if total > 0 {
				ratio = float64(bm.Len()) / float64(total)
			}
			if ratio <= 1.0-c.cfg.BitmapFallbackSelectivity {
				allowed = bm.Contains
			}
		}
		hits, err = c.index.SearchWithBitmap(query, k, 0, allowed, postFilter)
	}
	if err != nil {
		return nil, wrapError("search", err)
	}

	out := make([]SearchResult, len(hits))
	for i, h := range hits {
		out[i] = SearchResult{ID: h.ID, Distance: h.Distance, Payload: c.payloads[h.ID]}
	}
	return out, nil
}

// Flush fsyncs the WAL (spec.md §6 "flush()").
func (c *Collection) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

func (c *Collection) flushLocked() error {
	if c.closed {
		return wrapError("flush", ErrClosed)
	}
	if err := c.walFile.Sync(); err != nil {
		c.readOnly = true
		return wrapError("flush", err)
	}
	return nil
}

// Snapshot writes a fresh data.bin from the in-memory state and
// truncates the WAL (spec.md §4.5 "flush"/"snapshot"), following the
// atomic-replace pattern the teacher's retrieval pack uses for durable
// writes (tmp file, fsync, rename, fsync the directory).
func (c *Collection) Snapshot() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Collection) snapshotLocked() error {
	if c.closed {
		return wrapError("snapshot", ErrClosed)
	}

	tmpPath := filepath.Join(c.dir, "data.bin.tmp")
	finalPath := filepath.Join(c.dir, "data.bin")

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		c.readOnly = true
		return wrapError("snapshot", err)
	}

	if err := walfmt.WriteSnapshotHeader(f, uint64(len(c.payloads))); err != nil {
		_ = f.Close()
		c.readOnly = true
		return wrapError("snapshot", err)
	}
	for id, p := range c.payloads {
		payloadBytes, err := encodePayload(p)
		if err != nil {
			_ = f.Close()
			c.readOnly = true
			return wrapError("snapshot", err)
		}
		vec, err := c.vectorOf(id)
		if err != nil {
			_ = f.Close()
			c.readOnly = true
			return wrapError("snapshot", err)
		}
		if err := walfmt.WriteSnapshotEntry(f, id, vec, payloadBytes); err != nil {
			_ = f.Close()
			c.readOnly = true
			return wrapError("snapshot", err)
		}
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		c.readOnly = true
		return wrapError("snapshot", err)
	}
	if err := f.Close(); err != nil {
		c.readOnly = true
		return wrapError("snapshot", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		c.readOnly = true
		return wrapError("snapshot", err)
	}
	if dirFile, err := os.Open(c.dir); err == nil {
		_ = dirFile.Sync()
		_ = dirFile.Close()
	}

	if err := c.walFile.Truncate(0); err != nil {
		c.readOnly = true
		return wrapError("snapshot", err)
	}
	if _, err := c.walFile.Seek(0, io.SeekStart); err != nil {
		c.readOnly = true
		return wrapError("snapshot", err)
	}
	c.walBytesSinceSnapshot = 0
	return nil
}

func (c *Collection) vectorOf(id uint64) ([]float32, error) {
	v, ok := c.index.Vector(id)
	if !ok {
		return nil, fmt.Errorf("snapshot: id %d missing from index", id)
	}
	return v, nil
}

// Close fsyncs the WAL and releases the collection's lock file (spec.md
// §6 "close()").
func (c *Collection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	err := c.flushLocked()
	_ = c.walFile.Close()
	_ = c.lock.Unlock()
	c.closed = true
	return err
}

// Len reports the number of live vectors.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index.Len()
}
