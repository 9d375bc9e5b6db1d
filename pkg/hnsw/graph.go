// Package hnsw implements the Hierarchical Navigable Small World proximity
// graph (spec.md §4.4): layered graph, insert algorithm, greedy+beam
// search, and pre-filtered search. It is a from-scratch implementation —
// grounded on the teacher's own hand-rolled index (pkg/index/hnsw.go) — as
// opposed to the sibling approach elsewhere in the retrieval pack of
// wrapping an external HNSW library, because spec.md §9 explicitly calls
// for a flat NodeIdx/VectorID table with no pointer ownership cycles.
package hnsw

import (
	"container/heap"
	"sort"
	"sync"

	"math/rand"

	"github.com/liliang-cn/vecdb/pkg/distance"
)

// node is one HNSW graph node, addressed by its dense NodeIdx.
type node struct {
	id         VectorID
	vector     []float32
	level      int
	neighbors  [][]NodeIdx // neighbors[l] is this node's edge list at layer l
	tombstoned bool
}

// Graph is the layered proximity graph. It is not safe to share across
// goroutines by itself (spec.md §5 — the collection above it owns the
// locking discipline); Graph's own mutex only protects against the
// pathological case of being used directly without that wrapper.
type Graph struct {
	mu sync.RWMutex

	cfg Config
	rng *rand.Rand

	nodes    []*node
	idToIdx  map[VectorID]NodeIdx
	deleted  map[VectorID]bool // ids that were tombstoned, to reject reinsertion
	entry    NodeIdx
	hasEntry bool
	maxLevel int
	live     int
}

// New creates an empty HNSW graph.
func New(cfg Config) *Graph {
	cfg.applyDefaults()
	return &Graph{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		idToIdx: make(map[VectorID]NodeIdx),
		deleted: make(map[VectorID]bool),
	}
}

// Len returns the number of live (non-tombstoned) vectors.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.live
}

// Dimension returns the fixed vector width this graph was created with.
func (g *Graph) Dimension() int { return g.cfg.Dimension }

func (g *Graph) selectLevel() int {
	u := g.rng.Float64()
	for u <= 0 {
		u = g.rng.Float64()
	}
	return int(-ln(u) * g.cfg.LevelMult)
}

func (g *Graph) distanceTo(query []float32, idx NodeIdx) float32 {
	return distance.Distance(g.cfg.Metric, query, g.nodes[idx].vector)
}

// Insert adds vector v under id. Preconditions from spec.md §4.4: len(v)
// == Dimension; id not already present; v is non-zero if the metric is
// Cosine. Any violation is a caller error, surfaced synchronously, leaving
// the graph unchanged. Validation runs entirely before any node is
// appended or any neighbor list mutated, so a rejected insert leaves every
// existing edge exactly as it was (spec.md §4.4 "Failure semantics").
func (g *Graph) Insert(id VectorID, v []float32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.insertLocked(id, v)
}

func (g *Graph) insertLocked(id VectorID, v []float32) error {
	if len(v) == 0 {
		return ErrEmptyVector
	}
	if len(v) != g.cfg.Dimension {
		return ErrDimensionMismatch
	}
	if g.deleted[id] {
		return ErrReinsertDeletedID
	}
	if _, exists := g.idToIdx[id]; exists {
		return ErrDuplicateID
	}
	if g.cfg.Metric == distance.Cosine && distance.ZeroVector(v) {
		return ErrZeroVectorCosine
	}

	vec := make([]float32, len(v))
	copy(vec, v)
	newLevel := g.selectLevel()

	if !g.hasEntry || g.live == 0 {
		n := &node{id: id, vector: vec, level: newLevel, neighbors: make([][]NodeIdx, newLevel+1)}
		idx := g.appendNode(n)
		g.entry = idx
		g.hasEntry = true
		g.maxLevel = newLevel
		g.live++
		return nil
	}

	// Step 2: descend greedily from the entry point down to newLevel+1,
	// carrying a single running-best candidate.
	currNearest := []NodeIdx{g.entry}
	for lc := g.nodes[g.entry].level; lc > newLevel; lc-- {
		found := g.searchLayer(vec, currNearest, searchOpts{ef: 1, layer: lc})
		if len(found) > 0 {
			currNearest = toIdxSlice(found)
		}
	}

	n := &node{id: id, vector: vec, level: newLevel, neighbors: make([][]NodeIdx, newLevel+1)}
	newIdx := g.appendNode(n)

	// Step 3: from min(newLevel, maxLevel) down to 0, beam-search for
	// ef_construction candidates, select M neighbors via the heuristic,
	// wire bidirectional edges, and prune any neighbor pushed over its
	// degree cap.
	top := newLevel
	if g.maxLevel < top {
		top = g.maxLevel
	}
	for lc := top; lc >= 0; lc-- {
		mAtLayer := g.cfg.M
		if lc == 0 {
			mAtLayer = g.cfg.MMax0
		}

		candidates := g.searchLayer(vec, currNearest, searchOpts{ef: g.cfg.EfConstruction, layer: lc, skipTombstoned: true})
		selected := g.selectNeighborsHeuristic(vec, candidates, mAtLayer)
		n.neighbors[lc] = selected

		// Iterate over a copy: pruning a neighbor can drop the new node's
		// edge to it, which rewrites n.neighbors[lc] (and so selected) in place.
		for _, nb := range append([]NodeIdx(nil), selected...) {
			g.connect(newIdx, nb, lc)
			g.pruneIfOverCap(nb, lc)
		}

		if len(candidates) > 0 {
			currNearest = toIdxSlice(candidates)
		} else {
			currNearest = selected
		}
	}

	g.live++
	if newLevel > g.maxLevel {
		g.entry = newIdx
		g.maxLevel = newLevel
	}
	return nil
}

// connect installs both directions of the edge between a and b at layer.
func (g *Graph) connect(a, b NodeIdx, layer int) {
	an, bn := g.nodes[a], g.nodes[b]
	if layer < len(an.neighbors) {
		an.neighbors[layer] = appendUnique(an.neighbors[layer], b)
	}
	if layer < len(bn.neighbors) {
		bn.neighbors[layer] = appendUnique(bn.neighbors[layer], a)
	}
}

// pruneIfOverCap re-runs the neighbor heuristic for nb at layer if its
// out-degree there now exceeds the per-layer cap (spec.md §4.4 step 3:
// "For any newly-connected old node whose out-degree at this layer
// exceeds Mℓ, prune its neighbor list with the same heuristic").
func (g *Graph) pruneIfOverCap(nb NodeIdx, layer int) {
	nbNode := g.nodes[nb]
	if layer >= len(nbNode.neighbors) {
		return
	}
	cap := g.cfg.M
	if layer == 0 {
		cap = g.cfg.MMax0
	}
	if len(nbNode.neighbors[layer]) <= cap {
		return
	}
	candidates := make([]item, len(nbNode.neighbors[layer]))
	for i, c := range nbNode.neighbors[layer] {
		candidates[i] = item{idx: c, dist: distance.Distance(g.cfg.Metric, nbNode.vector, g.nodes[c].vector)}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
	pruned := g.selectNeighborsHeuristic(nbNode.vector, candidates, cap)

	// Pruning only ever drops edges from nb's side; the dropped
	// neighbors' back-references to nb are removed too so bidirectionality
	// (spec.md §8) keeps holding.
	kept := make(map[NodeIdx]bool, len(pruned))
	for _, k := range pruned {
		kept[k] = true
	}
	for _, c := range nbNode.neighbors[layer] {
		if !kept[c] {
			g.disconnectOneSide(c, nb, layer)
		}
	}
	nbNode.neighbors[layer] = pruned
}

func (g *Graph) disconnectOneSide(from, to NodeIdx, layer int) {
	fn := g.nodes[from]
	if layer >= len(fn.neighbors) {
		return
	}
	out := fn.neighbors[layer][:0]
	for _, x := range fn.neighbors[layer] {
		if x != to {
			out = append(out, x)
		}
	}
	fn.neighbors[layer] = out
}

func appendUnique(s []NodeIdx, v NodeIdx) []NodeIdx {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}

func (g *Graph) appendNode(n *node) NodeIdx {
	idx := NodeIdx(len(g.nodes))
	g.nodes = append(g.nodes, n)
	g.idToIdx[n.id] = idx
	return idx
}

// searchOpts configures one layer's beam search.
type searchOpts struct {
	ef    int
	layer int
	// skipTombstoned excludes tombstoned nodes from the *results* heap
	// (they are still traversed for connectivity) — spec.md §4.4 "Update
	// and Delete": "Tombstoned nodes are skipped when forming search
	// results and when selecting neighbors to admit, but remain in the
	// graph to preserve connectivity."
	skipTombstoned bool
	// allowed gates results-heap admission for a bitmap pre-filter
	// (spec.md §4.4 "Pre-filtered search"). Candidates keep exploring
	// through disallowed nodes so the graph's connectivity still finds
	// allowed nodes on the far side of a disallowed one; only the
	// *results* are restricted to allowed ids. This resolves spec.md's
	// "may still be traversed for connectivity (optional implementation
	// choice)" in favor of preserving recall.
	allowed func(VectorID) bool
}

func (g *Graph) admit(idx NodeIdx, opts searchOpts) bool {
	n := g.nodes[idx]
	if opts.skipTombstoned && n.tombstoned {
		return false
	}
	if opts.allowed != nil && !opts.allowed(n.id) {
		return false
	}
	return true
}

// searchLayer runs one beam search at a single layer, returning up to
// opts.ef candidates sorted ascending by distance to query (spec.md §4.4
// step 3, §9 design note on the two-heap structure).
func (g *Graph) searchLayer(query []float32, entryPoints []NodeIdx, opts searchOpts) []item {
	if opts.ef <= 0 {
		opts.ef = 1
	}
	visited := make(map[NodeIdx]bool, opts.ef*4)
	candidates := &minHeap{}
	results := &maxHeap{}

	admitResult := func(idx NodeIdx, d float32) {
		if !g.admit(idx, opts) {
			return
		}
		heap.Push(results, item{idx: idx, dist: d})
		if results.Len() > opts.ef {
			heap.Pop(results)
		}
	}

	for _, ep := range entryPoints {
		if visited[ep] {
			continue
		}
		visited[ep] = true
		d := g.distanceTo(query, ep)
		heap.Push(candidates, item{idx: ep, dist: d})
		admitResult(ep, d)
	}

	for candidates.Len() > 0 {
		top := (*candidates)[0]
		if results.Len() >= opts.ef && top.dist > (*results)[0].dist {
			break
		}
		cur := heap.Pop(candidates).(item)
		curNode := g.nodes[cur.idx]
		if opts.layer >= len(curNode.neighbors) {
			continue
		}
		for _, nb := range curNode.neighbors[opts.layer] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			d := g.distanceTo(query, nb)
			if results.Len() < opts.ef || d < (*results)[0].dist {
				heap.Push(candidates, item{idx: nb, dist: d})
				admitResult(nb, d)
			}
		}
	}

	out := make([]item, len(*results))
	copy(out, *results)
	sort.Slice(out, func(i, j int) bool { return out[i].dist < out[j].dist })
	return out
}

func toIdxSlice(items []item) []NodeIdx {
	out := make([]NodeIdx, len(items))
	for i, it := range items {
		out[i] = it.idx
	}
	return out
}

// selectNeighborsHeuristic implements the diversity-preserving neighbor
// selection of spec.md §4.4: scan candidates (already sorted ascending by
// distance to q) and admit c iff no already-admitted r is strictly closer
// to c than q is.
func (g *Graph) selectNeighborsHeuristic(q []float32, candidates []item, m int) []NodeIdx {
	result := make([]NodeIdx, 0, m)
	for _, c := range candidates {
		if len(result) >= m {
			break
		}
		admit := true
		for _, r := range result {
			rc := distance.Distance(g.cfg.Metric, g.nodes[r].vector, g.nodes[c.idx].vector)
			if rc < c.dist {
				admit = false
				break
			}
		}
		if admit {
			result = append(result, c.idx)
		}
	}
	return result
}

// Search runs a k-NN query (spec.md §4.4 "Search"). postFilter, if
// non-nil, is applied as a residual filter over ids after the beam search
// completes. efOverride, if > 0, overrides the configured EfSearch for
// this call only.
func (g *Graph) Search(query []float32, k int, efOverride int, postFilter func(VectorID) bool) ([]SearchResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.searchLocked(query, k, efOverride, nil, postFilter)
}

// SearchWithBitmap restricts admitted results to ids allowed returns true
// for (spec.md §4.4 "Pre-filtered search").
func (g *Graph) SearchWithBitmap(query []float32, k int, efOverride int, allowed func(VectorID) bool, postFilter func(VectorID) bool) ([]SearchResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.searchLocked(query, k, efOverride, allowed, postFilter)
}

func (g *Graph) searchLocked(query []float32, k int, efOverride int, allowed func(VectorID) bool, postFilter func(VectorID) bool) ([]SearchResult, error) {
	if k == 0 {
		return nil, ErrZeroK
	}
	if len(query) != g.cfg.Dimension {
		return nil, ErrDimensionMismatch
	}
	if !g.hasEntry {
		return nil, nil
	}

	ef := efOverride
	if ef <= 0 {
		ef = g.cfg.EfSearch
	}
	if ef < k {
		ef = k
	}

	curr := []NodeIdx{g.entry}
	for lc := g.maxLevel; lc > 0; lc-- {
		found := g.searchLayer(query, curr, searchOpts{ef: 1, layer: lc})
		if len(found) > 0 {
			curr = toIdxSlice(found)
		}
	}

	candidates := g.searchLayer(query, curr, searchOpts{
		ef:             ef,
		layer:          0,
		skipTombstoned: true,
		allowed:        allowed,
	})

	out := make([]SearchResult, 0, k)
	for _, c := range candidates {
		id := g.nodes[c.idx].id
		if postFilter != nil && !postFilter(id) {
			continue
		}
		out = append(out, SearchResult{ID: id, Distance: c.dist})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// Update is semantically delete(id) followed by insert(id, v) (spec.md
// §4.4 "Update and Delete"): it always reassigns a fresh level and
// re-runs the full insert algorithm rather than mutating the vector in
// place, which keeps the bidirectionality invariant trivially true
// without a separate in-place code path to maintain.
func (g *Graph) Update(id VectorID, v []float32) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx, exists := g.idToIdx[id]
	if !exists {
		return ErrUnknownID
	}
	if len(v) != g.cfg.Dimension {
		return ErrDimensionMismatch
	}
	if g.cfg.Metric == distance.Cosine && distance.ZeroVector(v) {
		return ErrZeroVectorCosine
	}

	wasTombstoned := g.nodes[idx].tombstoned
	g.tombstone(idx)
	delete(g.deleted, id) // update may reuse the id it just retired
	delete(g.idToIdx, id) // insertLocked must see id as available, not a duplicate

	if err := g.insertLocked(id, v); err != nil {
		g.idToIdx[id] = idx
		g.nodes[idx].tombstoned = wasTombstoned
		if !wasTombstoned {
			g.live++
		}
		delete(g.deleted, id)
		return err
	}
	return nil
}

// Delete marks id as tombstoned (spec.md §4.4 "Update and Delete"). The
// node is skipped by search and neighbor-selection but its edges remain,
// preserving connectivity (spec.md §9 open question: the recall trade-off
// of tombstone-only deletion is accepted as-is — graph repair around a
// tombstone is an explicit non-goal of this spec).
func (g *Graph) Delete(id VectorID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx, exists := g.idToIdx[id]
	if !exists {
		return ErrUnknownID
	}
	if g.nodes[idx].tombstoned {
		return ErrAlreadyDeleted
	}
	g.tombstone(idx)
	return nil
}

func (g *Graph) tombstone(idx NodeIdx) {
	n := g.nodes[idx]
	n.tombstoned = true
	g.deleted[n.id] = true
	g.live--

	if g.entry == idx {
		// The new entry point must be a live node at the true maximum
		// level among survivors, not merely the first live node found —
		// otherwise a higher-level survivor becomes an unreachable upper
		// shortcut, since greedy descent only ever starts from g.maxLevel.
		found := false
		bestLevel := -1
		var bestIdx NodeIdx
		for i, other := range g.nodes {
			if other.tombstoned {
				continue
			}
			if !found || other.level > bestLevel {
				found = true
				bestLevel = other.level
				bestIdx = NodeIdx(i)
			}
		}
		if found {
			g.entry = bestIdx
			g.maxLevel = bestLevel
		}
	}
}

// Contains reports whether id currently maps to a live (non-tombstoned)
// node.
func (g *Graph) Contains(id VectorID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idx, ok := g.idToIdx[id]
	return ok && !g.nodes[idx].tombstoned
}

// Vector returns the stored vector for a live id, used by pkg/collection
// to rebuild a snapshot from the in-memory index.
func (g *Graph) Vector(id VectorID) ([]float32, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idx, ok := g.idToIdx[id]
	if !ok || g.nodes[idx].tombstoned {
		return nil, false
	}
	return g.nodes[idx].vector, true
}

// CheckInvariants verifies bidirectionality and the per-layer degree caps
// across the whole graph (spec.md §8 "Invariants (quantified)"). Intended
// for tests, not the hot path.
func (g *Graph) CheckInvariants() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for idx, n := range g.nodes {
		for lc, neighbors := range n.neighbors {
			cap := g.cfg.M
			if lc == 0 {
				cap = g.cfg.MMax0
			}
			if len(neighbors) > cap {
				return &invariantError{idx: NodeIdx(idx), layer: lc, msg: "degree cap exceeded"}
			}
			for _, nb := range neighbors {
				nbNode := g.nodes[nb]
				if lc >= len(nbNode.neighbors) {
					return &invariantError{idx: nb, layer: lc, msg: "neighbor missing layer"}
				}
				found := false
				for _, back := range nbNode.neighbors[lc] {
					if int(back) == idx {
						found = true
						break
					}
				}
				if !found {
					return &invariantError{idx: NodeIdx(idx), layer: lc, msg: "edge not bidirectional"}
				}
			}
		}
	}
	return nil
}

type invariantError struct {
	idx   NodeIdx
	layer int
	msg   string
}

func (e *invariantError) Error() string {
	return e.msg
}
