package hnsw

import (
	"fmt"

	"github.com/vexdb/vexdb/pkg/distance"
)

// Result is one search hit: a live vector id and its distance to the
// query under the index's metric.
type Result struct {
	ID       uint32
	Distance float32
}

// Search returns the k approximate nearest neighbors of query, sorted
// ascending by distance. ef bounds the layer-0 candidate list and is
// coerced up to k; larger values trade latency for recall.
//
// An empty index yields an empty slice, not an error. Tombstoned nodes
// are traversed as stepping stones but never returned.
func (ix *Index) Search(query []float32, k, ef int) ([]Result, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: index dimension %d, query length %d",
			distance.ErrDimensionMismatch, ix.dim, len(query))
	}
	if k <= 0 {
		return []Result{}, nil
	}
	if ef < k {
		ef = k
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.topLayer < 0 {
		return []Result{}, nil
	}

	scratch := ix.newScratch()

	// Greedy descent from the top layer to layer 1 refines the entry
	// point with a candidate list of size 1.
	ep := ix.entryPoint
	epDist := ix.distFn(query, ix.store.Resolve(ep, scratch))
	for l := ix.topLayer; l > 0; l-- {
		ep, epDist = ix.greedyLocked(query, ep, epDist, l, scratch)
	}

	cands := ix.searchLayerLocked(query, ep, ef, 0, true, scratch)

	n := k
	if len(cands) < n {
		n = len(cands)
	}
	out := make([]Result, n)
	for i := 0; i < n; i++ {
		out[i] = Result{ID: cands[i].id, Distance: cands[i].distance}
	}
	return out, nil
}
