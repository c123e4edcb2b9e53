// Package hnsw implements a Hierarchical Navigable Small World index: a
// multi-layer proximity graph over fixed-dimension vectors supporting
// approximate k-nearest-neighbor search, tombstone deletion and
// background compaction.
//
// Concurrency model: one RWMutex per index. Writes (insert, delete,
// compact) take the write lock, searches take the read lock and observe
// the graph as of the last completed write. Adjacency lists are replaced,
// never mutated in place, so a reader can never see a partially written
// list.
package hnsw

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/vexdb/vexdb/pkg/distance"
	"github.com/vexdb/vexdb/pkg/vectorstore"
)

// maxLevelCap bounds the level draw against pathological RNG streaks.
const maxLevelCap = 32

// Config holds the construction parameters of an index. Dimension and
// Metric are fixed for the index's lifetime.
type Config struct {
	Dimension      int
	Metric         distance.Metric
	M              int   // max neighbors per node per layer (layer 0 uses 2*M)
	EfConstruction int   // candidate list size during insertion
	Seed           int64 // level RNG seed; 0 means time-based
	Precision      vectorstore.Precision
}

// DefaultConfig returns the recommended parameters for a given dimension.
func DefaultConfig(dim int) Config {
	return Config{
		Dimension:      dim,
		Metric:         distance.Euclidean,
		M:              16,
		EfConstruction: 200,
		Precision:      vectorstore.Float32,
	}
}

// Index is one HNSW index instance.
type Index struct {
	mu sync.RWMutex

	dim            int
	metric         distance.Metric
	distFn         distance.Func
	m              int
	efConstruction int
	ml             float64 // level multiplier, 1/ln(M)

	store *vectorstore.Store
	graph *graph

	entryPoint uint32
	topLayer   int // -1 while the index is empty

	rng *rand.Rand // guarded by mu; levels are drawn under the write lock
}

// New creates an empty index.
func New(cfg Config) (*Index, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.M < 2 {
		return nil, fmt.Errorf("M must be at least 2, got %d", cfg.M)
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = 200
	}
	if cfg.Metric == "" {
		cfg.Metric = distance.Euclidean
	}
	distFn, err := distance.For(cfg.Metric)
	if err != nil {
		return nil, err
	}
	store, err := vectorstore.New(cfg.Dimension, cfg.Precision)
	if err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Index{
		dim:            cfg.Dimension,
		metric:         cfg.Metric,
		distFn:         distFn,
		m:              cfg.M,
		efConstruction: cfg.EfConstruction,
		ml:             1.0 / math.Log(float64(cfg.M)),
		store:          store,
		graph:          newGraph(cfg.M),
		topLayer:       -1,
		rng:            rand.New(rand.NewSource(seed)),
	}, nil
}

// randomLevel draws a node's maximum layer from the exponential
// distribution floor(-ln(U) * mL). Caller holds the write lock.
func (ix *Index) randomLevel() int {
	u := ix.rng.Float64()
	for u == 0 {
		u = ix.rng.Float64()
	}
	level := int(math.Floor(-math.Log(u) * ix.ml))
	if level > maxLevelCap {
		level = maxLevelCap
	}
	return level
}

// Dimension returns the configured vector dimension.
func (ix *Index) Dimension() int { return ix.dim }

// Metric returns the configured distance metric.
func (ix *Index) Metric() distance.Metric { return ix.metric }

// M returns the configured degree cap for layers above 0.
func (ix *Index) M() int { return ix.m }

// EfConstruction returns the construction-time candidate list size.
func (ix *Index) EfConstruction() int { return ix.efConstruction }

// Len returns the number of live (non-tombstoned) vectors.
func (ix *Index) Len() int {
	return ix.store.LiveCount()
}

// TopLayer returns the current highest occupied layer, or -1 when empty.
func (ix *Index) TopLayer() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.topLayer
}

// EntryPoint returns the current entry point id; ok is false while the
// index is empty.
func (ix *Index) EntryPoint() (uint32, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.entryPoint, ix.topLayer >= 0
}

// Store exposes the underlying vector store for id-level reads.
func (ix *Index) Store() *vectorstore.Store { return ix.store }

// Stats describes the current shape of the index.
type Stats struct {
	Live           int
	Assigned       int
	TopLayer       int
	M              int
	EfConstruction int
	NodesPerLayer  map[int]int
}

// GetStats returns a consistent snapshot of index statistics.
func (ix *Index) GetStats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	perLayer := make(map[int]int)
	for id := 0; id < ix.graph.nodeCount(); id++ {
		if !ix.store.IsLive(uint32(id)) {
			continue
		}
		for l := 0; l <= ix.graph.level(uint32(id)); l++ {
			perLayer[l]++
		}
	}
	return Stats{
		Live:           ix.store.LiveCount(),
		Assigned:       ix.store.Count(),
		TopLayer:       ix.topLayer,
		M:              ix.m,
		EfConstruction: ix.efConstruction,
		NodesPerLayer:  perLayer,
	}
}

// newScratch returns a widening buffer for float16 stores, nil otherwise.
func (ix *Index) newScratch() []float32 {
	if ix.store.Precision() == vectorstore.Float16 {
		return make([]float32, ix.dim)
	}
	return nil
}

// Delete tombstones a vector. Graph edges stay in place so concurrent
// searches keep a connected graph to traverse; compaction reclaims the
// space later. Returns vectorstore.ErrNotFound for an unknown id.
func (ix *Index) Delete(id uint32) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.store.MarkDeleted(id); err != nil {
		return err
	}
	if ix.topLayer >= 0 && ix.entryPoint == id {
		ix.reassignEntryLocked()
	}
	return nil
}

// reassignEntryLocked moves the entry point to a live node at the highest
// occupied layer, or empties the index when nothing is left.
func (ix *Index) reassignEntryLocked() {
	bestLevel := -1
	var best uint32
	for id := 0; id < ix.graph.nodeCount(); id++ {
		if !ix.store.IsLive(uint32(id)) {
			continue
		}
		if l := ix.graph.level(uint32(id)); l > bestLevel {
			bestLevel = l
			best = uint32(id)
		}
	}
	if bestLevel < 0 {
		ix.topLayer = -1
		ix.entryPoint = 0
		return
	}
	ix.entryPoint = best
	ix.topLayer = bestLevel
}
