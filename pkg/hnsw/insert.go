package hnsw

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/vexdb/vexdb/pkg/distance"
)

// Insert adds a vector to the index and returns its id.
//
// The whole insertion runs under the write lock: insertions are
// serialized against each other, and searches observe the graph as of
// the last completed insert.
func (ix *Index) Insert(vec []float32) (uint32, error) {
	if len(vec) != ix.dim {
		return 0, fmt.Errorf("%w: index dimension %d, vector length %d",
			distance.ErrDimensionMismatch, ix.dim, len(vec))
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	id, err := ix.store.Insert(vec)
	if err != nil {
		return 0, err
	}

	level := ix.randomLevel()
	ix.graph.addNode(id, level)

	if err := ix.connectLocked(id, vec, level); err != nil {
		return 0, err
	}
	return id, nil
}

// connectLocked wires a node into the graph at its assigned level. It is
// shared by Insert and Compact (which replays surviving nodes at their
// stored levels). Caller holds the write lock.
func (ix *Index) connectLocked(id uint32, vec []float32, level int) error {
	// First node: it becomes the entry point and the graph is trivially
	// consistent.
	if ix.topLayer < 0 {
		ix.entryPoint = id
		ix.topLayer = level
		return nil
	}

	scratchA := ix.newScratch()
	scratchB := ix.newScratch()

	// Phase 1: greedy single-best descent from the top layer down to
	// level+1, purely to find a good entry point. No edges are written.
	ep := ix.entryPoint
	epDist := ix.distFn(vec, ix.store.Resolve(ep, scratchA))
	for l := ix.topLayer; l > level; l-- {
		ep, epDist = ix.greedyLocked(vec, ep, epDist, l, scratchA)
	}

	// Phase 2: from min(level, topLayer) down to 0, beam-search for
	// efConstruction candidates, select diverse neighbors, and link both
	// directions.
	start := level
	if ix.topLayer < start {
		start = ix.topLayer
	}
	for l := start; l >= 0; l-- {
		cands := ix.searchLayerLocked(vec, ep, ix.efConstruction, l, true, scratchA)
		if len(cands) == 0 {
			// Every reachable node at this layer is tombstoned; nothing
			// to link against.
			continue
		}

		sel := ix.selectDiverseLocked(cands, ix.graph.degreeCap(l), scratchA, scratchB)
		if err := ix.graph.setNeighbors(id, l, sel); err != nil {
			return err
		}

		for _, n := range sel {
			if l > ix.graph.level(n) {
				continue
			}
			cur := ix.graph.neighbors(n, l)
			updated := make([]uint32, 0, len(cur)+1)
			updated = append(updated, cur...)
			updated = append(updated, id)

			if len(updated) <= ix.graph.degreeCap(l) {
				if err := ix.graph.setNeighbors(n, l, updated); err != nil {
					return err
				}
				continue
			}
			if err := ix.pruneLocked(n, l, updated); err != nil {
				return err
			}
		}

		ep = cands[0].id
	}

	// Phase 3: the entry point and top layer move together, under the
	// same write lock, so a search never sees one without the other.
	if level > ix.topLayer {
		ix.topLayer = level
		ix.entryPoint = id
	}
	return nil
}

// greedyLocked walks to the single closest neighbor repeatedly within one
// layer. Tombstoned nodes remain valid stepping stones here; only result
// admission filters them out.
func (ix *Index) greedyLocked(q []float32, ep uint32, epDist float32, layer int, scratch []float32) (uint32, float32) {
	for {
		improved := false
		for _, n := range ix.graph.neighbors(ep, layer) {
			d := ix.distFn(q, ix.store.Resolve(n, scratch))
			if d < epDist {
				epDist = d
				ep = n
				improved = true
			}
		}
		if !improved {
			return ep, epDist
		}
	}
}

// searchLayerLocked is the bounded beam search within one layer: it keeps
// the ef best admitted candidates in a max-heap and expands the frontier
// closest-first until no unexplored candidate can improve the result set.
//
// With liveOnly set, tombstoned nodes are traversed but never admitted to
// the result set. Returns candidates sorted ascending by distance.
func (ix *Index) searchLayerLocked(q []float32, ep uint32, ef, layer int, liveOnly bool, scratch []float32) []candidate {
	visited := map[uint32]struct{}{ep: {}}
	frontier := &minHeap{}
	results := &maxHeap{}

	epDist := ix.distFn(q, ix.store.Resolve(ep, scratch))
	heap.Push(frontier, candidate{id: ep, distance: epDist})
	if !liveOnly || ix.store.IsLive(ep) {
		heap.Push(results, candidate{id: ep, distance: epDist})
	}

	for frontier.Len() > 0 {
		current := heap.Pop(frontier).(candidate)
		if results.Len() >= ef && current.distance > (*results)[0].distance {
			break
		}

		for _, n := range ix.graph.neighbors(current.id, layer) {
			if _, seen := visited[n]; seen {
				continue
			}
			visited[n] = struct{}{}

			d := ix.distFn(q, ix.store.Resolve(n, scratch))
			if results.Len() >= ef && d >= (*results)[0].distance {
				continue
			}

			heap.Push(frontier, candidate{id: n, distance: d})
			if !liveOnly || ix.store.IsLive(n) {
				heap.Push(results, candidate{id: n, distance: d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]candidate, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(candidate)
	}
	return out
}

// selectDiverseLocked picks up to max neighbors from candidates sorted
// ascending by distance to the base vector. A candidate is kept only if
// it is closer to the base than to every already-selected neighbor; this
// prefers spread over raw proximity and keeps the graph navigable.
// Rejected candidates backfill remaining slots nearest-first so nodes
// keep a full degree.
func (ix *Index) selectDiverseLocked(cands []candidate, max int, scratchA, scratchB []float32) []uint32 {
	if len(cands) <= max {
		out := make([]uint32, len(cands))
		for i, c := range cands {
			out[i] = c.id
		}
		return out
	}

	selected := make([]uint32, 0, max)
	rejected := make([]uint32, 0, len(cands))

	for _, c := range cands {
		if len(selected) >= max {
			break
		}
		cv := ix.store.Resolve(c.id, scratchA)
		keep := true
		for _, s := range selected {
			if ix.distFn(cv, ix.store.Resolve(s, scratchB)) <= c.distance {
				keep = false
				break
			}
		}
		if keep {
			selected = append(selected, c.id)
		} else {
			rejected = append(rejected, c.id)
		}
	}

	for _, r := range rejected {
		if len(selected) >= max {
			break
		}
		selected = append(selected, r)
	}
	return selected
}

// pruneLocked rewrites node n's adjacency at a layer back down to the cap
// using the same diversity heuristic, measured from n's own vector.
func (ix *Index) pruneLocked(n uint32, layer int, members []uint32) error {
	scratchA := ix.newScratch()
	scratchB := ix.newScratch()

	base := ix.store.Resolve(n, scratchA)
	cands := make([]candidate, 0, len(members))
	for _, m := range members {
		cands = append(cands, candidate{
			id:       m,
			distance: ix.distFn(base, ix.store.Resolve(m, scratchB)),
		})
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].distance < cands[j].distance })

	// base lives in scratchA on the float16 path; the distances above are
	// already materialized, so the scratch can be reused for selection.
	sel := ix.selectDiverseLocked(cands, ix.graph.degreeCap(layer), scratchA, scratchB)
	return ix.graph.setNeighbors(n, layer, sel)
}
