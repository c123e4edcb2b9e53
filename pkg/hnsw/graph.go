package hnsw

import (
	"errors"
	"fmt"
)

// ErrDegreeExceeded reports an adjacency list over its layer's cap. The
// insertion path prunes before writing, so seeing this error means a bug
// in the pruning logic, not a recoverable user condition.
var ErrDegreeExceeded = errors.New("adjacency list exceeds degree cap")

// graph is the layer store: per (node, layer) adjacency lists plus each
// node's maximum layer. Ids are dense (the vector store assigns them
// sequentially), so plain slices indexed by id serve as the arena.
//
// graph has no lock of its own; the owning Index serializes all access.
type graph struct {
	m  int // degree cap for layers > 0
	m0 int // degree cap for layer 0

	levels []int        // levels[id] = node's maximum layer
	adj    [][][]uint32 // adj[id][layer] = neighbor ids
}

func newGraph(m int) *graph {
	return &graph{m: m, m0: m * 2}
}

// degreeCap returns the maximum adjacency list length for a layer.
func (g *graph) degreeCap(layer int) int {
	if layer == 0 {
		return g.m0
	}
	return g.m
}

// addNode registers a node at the next id with empty adjacency lists for
// layers 0..level. Ids must arrive in assignment order.
func (g *graph) addNode(id uint32, level int) {
	if int(id) != len(g.levels) {
		panic(fmt.Sprintf("hnsw: node %d added out of order (have %d nodes)", id, len(g.levels)))
	}
	g.levels = append(g.levels, level)
	g.adj = append(g.adj, make([][]uint32, level+1))
}

// level returns the node's maximum layer.
func (g *graph) level(id uint32) int {
	return g.levels[id]
}

// neighbors returns the adjacency list for (id, layer), or nil if the
// node is absent at that layer. The returned slice is never mutated in
// place; setNeighbors replaces it wholesale, so readers holding the
// index's read lock always see a complete list.
func (g *graph) neighbors(id uint32, layer int) []uint32 {
	if int(id) >= len(g.adj) || layer >= len(g.adj[id]) {
		return nil
	}
	return g.adj[id][layer]
}

// setNeighbors replaces the adjacency list for (id, layer). Callers are
// responsible for pre-pruning to the layer's cap.
func (g *graph) setNeighbors(id uint32, layer int, ids []uint32) error {
	if layer > g.levels[id] {
		return fmt.Errorf("hnsw: node %d has no layer %d", id, layer)
	}
	if len(ids) > g.degreeCap(layer) {
		return fmt.Errorf("%w: %d neighbors at layer %d, cap %d",
			ErrDegreeExceeded, len(ids), layer, g.degreeCap(layer))
	}
	g.adj[id][layer] = ids
	return nil
}

// clear drops all adjacency lists of a node, keeping its level slot so
// ids stay dense. Used by compaction for tombstoned nodes.
func (g *graph) clear(id uint32) {
	g.adj[id] = make([][]uint32, 0)
}

// reset drops every adjacency list but keeps levels, so compaction can
// re-link the surviving nodes at their originally drawn layers.
func (g *graph) reset() {
	for id := range g.adj {
		g.adj[id] = make([][]uint32, g.levels[id]+1)
	}
}

func (g *graph) nodeCount() int {
	return len(g.levels)
}
