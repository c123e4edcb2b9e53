package hnsw

import (
	"fmt"

	"github.com/RoaringBitmap/roaring"

	"github.com/vexdb/vexdb/pkg/distance"
	"github.com/vexdb/vexdb/pkg/vectorstore"
)

// State is the complete, codec-neutral dump of an index: everything a
// snapshot needs to reconstruct it without re-running the randomized
// level assignment. The snapshot package owns the wire format.
type State struct {
	Dimension      int
	Metric         distance.Metric
	Precision      vectorstore.Precision
	M              int
	EfConstruction int
	TopLayer       int
	EntryPoint     uint32
	Nodes          []NodeState // one per assigned id, in id order
	Deleted        *roaring.Bitmap
}

// NodeState is one node's stored level, vector and adjacency. A nil
// Vector marks an id burned by compaction.
type NodeState struct {
	Level     int
	Vector    []float32
	Neighbors [][]uint32 // Neighbors[layer], layers 0..Level
}

// State dumps the index under the read lock.
func (ix *Index) State() *State {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n := ix.graph.nodeCount()
	nodes := make([]NodeState, n)

	for id := 0; id < n; id++ {
		level := ix.graph.level(uint32(id))
		ns := NodeState{Level: level}

		if v, err := ix.store.Get(uint32(id)); err == nil {
			ns.Vector = v
		}

		ns.Neighbors = make([][]uint32, level+1)
		for l := 0; l <= level; l++ {
			src := ix.graph.neighbors(uint32(id), l)
			dst := make([]uint32, len(src))
			copy(dst, src)
			ns.Neighbors[l] = dst
		}
		nodes[id] = ns
	}

	return &State{
		Dimension:      ix.dim,
		Metric:         ix.metric,
		Precision:      ix.store.Precision(),
		M:              ix.m,
		EfConstruction: ix.efConstruction,
		TopLayer:       ix.topLayer,
		EntryPoint:     ix.entryPoint,
		Nodes:          nodes,
		Deleted:        ix.store.Deleted(),
	}
}

// FromState reconstructs an index from a dump, re-establishing and
// verifying the structural invariants instead of trusting the input:
// levels are restored as stored, adjacency caps are enforced, neighbor
// ids must be assigned and present at the layer that links to them, and
// the entry point must be a live node at the top layer.
func FromState(st *State) (*Index, error) {
	ix, err := New(Config{
		Dimension:      st.Dimension,
		Metric:         st.Metric,
		M:              st.M,
		EfConstruction: st.EfConstruction,
		Precision:      st.Precision,
	})
	if err != nil {
		return nil, err
	}

	vecs := make([][]float32, len(st.Nodes))
	for i, ns := range st.Nodes {
		if ns.Vector != nil && len(ns.Vector) != st.Dimension {
			return nil, fmt.Errorf("node %d: vector length %d, dimension %d",
				i, len(ns.Vector), st.Dimension)
		}
		vecs[i] = ns.Vector
	}
	store, err := vectorstore.Restore(st.Dimension, st.Precision, vecs, st.Deleted)
	if err != nil {
		return nil, err
	}
	ix.store = store

	for i, ns := range st.Nodes {
		id := uint32(i)
		if ns.Level < 0 {
			return nil, fmt.Errorf("node %d: negative level %d", i, ns.Level)
		}
		if len(ns.Neighbors) != ns.Level+1 {
			return nil, fmt.Errorf("node %d: %d adjacency layers for level %d",
				i, len(ns.Neighbors), ns.Level)
		}
		ix.graph.addNode(id, ns.Level)
		for l, nbrs := range ns.Neighbors {
			for _, nb := range nbrs {
				if int(nb) >= len(st.Nodes) {
					return nil, fmt.Errorf("node %d layer %d: neighbor %d out of range", i, l, nb)
				}
				// An edge at layer l must point to a node present at l.
				if st.Nodes[nb].Level < l {
					return nil, fmt.Errorf("node %d layer %d: neighbor %d only reaches level %d",
						i, l, nb, st.Nodes[nb].Level)
				}
			}
			cp := make([]uint32, len(nbrs))
			copy(cp, nbrs)
			if err := ix.graph.setNeighbors(id, l, cp); err != nil {
				return nil, err
			}
		}
	}

	ix.topLayer = st.TopLayer
	ix.entryPoint = st.EntryPoint

	if st.TopLayer >= 0 {
		if int(st.EntryPoint) >= len(st.Nodes) {
			return nil, fmt.Errorf("entry point %d out of range", st.EntryPoint)
		}
		if !ix.store.IsLive(st.EntryPoint) {
			return nil, fmt.Errorf("entry point %d is not live", st.EntryPoint)
		}
		if ix.graph.level(st.EntryPoint) != st.TopLayer {
			return nil, fmt.Errorf("entry point %d at level %d, top layer %d",
				st.EntryPoint, ix.graph.level(st.EntryPoint), st.TopLayer)
		}
	} else if len(st.Nodes) > 0 && ix.store.LiveCount() > 0 {
		return nil, fmt.Errorf("live nodes present but no top layer")
	}

	return ix, nil
}
