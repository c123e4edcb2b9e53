package db

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/btree"

	"github.com/vexdb/vexdb/pkg/distance"
	"github.com/vexdb/vexdb/pkg/hnsw"
	"github.com/vexdb/vexdb/pkg/observability"
	"github.com/vexdb/vexdb/pkg/search"
	"github.com/vexdb/vexdb/pkg/snapshot"
	"github.com/vexdb/vexdb/pkg/vectorstore"
)

// queryCacheSize bounds the per-collection result cache.
const queryCacheSize = 512

// Collection binds an index to per-vector metadata. The index has its
// own lock; the collection's lock keeps index and metadata mutations
// paired, so a search never joins metadata from a different vector.
type Collection struct {
	id        string
	name      string
	createdAt time.Time

	mu      sync.RWMutex
	index   *hnsw.Index
	meta    btree.Map[uint32, map[string]string]
	version uint64 // bumped on every mutation, tags cache entries

	cache      *search.Cache
	efSearch   int
	maxVectors int64 // 0 means unlimited
	logger     *observability.Logger
	metrics    *observability.Metrics
}

func newCollection(name string, p CollectionParams, efSearch int, logger *observability.Logger, metrics *observability.Metrics) (*Collection, error) {
	ix, err := hnsw.New(hnsw.Config{
		Dimension:      p.Dimension,
		Metric:         p.Metric,
		M:              p.M,
		EfConstruction: p.EfConstruction,
		Precision:      p.Precision,
	})
	if err != nil {
		return nil, err
	}
	return &Collection{
		id:         uuid.NewString(),
		name:       name,
		createdAt:  time.Now(),
		index:      ix,
		cache:      search.NewCache(queryCacheSize, 0),
		efSearch:   efSearch,
		maxVectors: p.MaxVectors,
		logger:     logger.WithField("collection", name),
		metrics:    metrics,
	}, nil
}

func restoredCollection(name string, ix *hnsw.Index, meta map[uint32]map[string]string, efSearch int, logger *observability.Logger, metrics *observability.Metrics) *Collection {
	col := &Collection{
		id:        uuid.NewString(),
		name:      name,
		createdAt: time.Now(),
		index:     ix,
		cache:     search.NewCache(queryCacheSize, 0),
		efSearch:  efSearch,
		logger:    logger.WithField("collection", name),
		metrics:   metrics,
	}
	for id, fields := range meta {
		col.meta.Set(id, fields)
	}
	col.updateGauges()
	return col
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// ID returns the collection's unique id.
func (c *Collection) ID() string { return c.id }

// Index exposes the underlying index, mainly for tests.
func (c *Collection) Index() *hnsw.Index { return c.index }

// SearchResult is one hit joined with its metadata.
type SearchResult struct {
	ID       uint32            `json:"id"`
	Distance float32           `json:"distance"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Insert adds a vector with optional metadata and returns its id.
func (c *Collection) Insert(vec []float32, metadata map[string]string) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxVectors > 0 && int64(c.index.Store().LiveCount()) >= c.maxVectors {
		return 0, fmt.Errorf("%w: limit %d", ErrQuotaExceeded, c.maxVectors)
	}
	id, err := c.index.Insert(vec)
	if err != nil {
		return 0, err
	}
	if len(metadata) > 0 {
		c.meta.Set(id, metadata)
	}
	c.version++
	if c.metrics != nil {
		c.metrics.RecordInsert(1)
	}
	c.updateGauges()
	return id, nil
}

// Search returns the k nearest live vectors, joined with metadata.
// ef <= 0 selects the configured default.
func (c *Collection) Search(query []float32, k, ef int) ([]SearchResult, error) {
	return c.SearchFiltered(query, k, ef, nil)
}

// SearchFiltered returns the k nearest live vectors whose metadata
// matches f. The graph is probed with a widened candidate set before
// the filter runs, so a highly selective filter can still return fewer
// than k hits. A nil filter matches everything; unfiltered queries are
// answered from the result cache while the collection is unchanged.
func (c *Collection) SearchFiltered(query []float32, k, ef int, f search.Filter) ([]SearchResult, error) {
	if ef <= 0 {
		ef = c.efSearch
	}
	fetch := k
	if f != nil {
		fetch = k * 4
		if fetch < k+16 {
			fetch = k + 16
		}
	}

	start := time.Now()
	c.mu.RLock()
	version := c.version
	var key search.Key
	if f == nil {
		key = search.QueryKey(query, k, ef)
		if cached, ok := c.cache.Get(key, version); ok {
			c.mu.RUnlock()
			results := append([]SearchResult(nil), cached.([]SearchResult)...)
			if c.metrics != nil {
				c.metrics.RecordSearch(time.Since(start), len(results))
			}
			return results, nil
		}
	}

	hits, err := c.index.Search(query, fetch, ef)
	if err != nil {
		c.mu.RUnlock()
		return nil, err
	}
	results := make([]SearchResult, 0, k)
	for _, h := range hits {
		fields, _ := c.meta.Get(h.ID)
		if f != nil && !f.Match(fields) {
			continue
		}
		results = append(results, SearchResult{ID: h.ID, Distance: h.Distance, Metadata: fields})
		if len(results) == k {
			break
		}
	}
	if f == nil {
		c.cache.Put(key, version, append([]SearchResult(nil), results...))
	}
	c.mu.RUnlock()

	if c.metrics != nil {
		c.metrics.RecordSearch(time.Since(start), len(results))
	}
	return results, nil
}

// Delete tombstones a vector and drops its metadata.
func (c *Collection) Delete(id uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.index.Delete(id); err != nil {
		return err
	}
	c.meta.Delete(id)
	c.version++
	if c.metrics != nil {
		c.metrics.RecordDelete(1)
	}
	c.updateGauges()
	return nil
}

// Get returns a vector and its metadata.
func (c *Collection) Get(id uint32) ([]float32, map[string]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	vec, err := c.index.Store().Get(id)
	if err != nil {
		return nil, nil, err
	}
	fields, _ := c.meta.Get(id)
	return vec, fields, nil
}

// Compact rebuilds the graph without tombstones.
func (c *Collection) Compact() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	err := c.index.Compact()
	if err != nil {
		return err
	}
	c.version++
	if c.metrics != nil {
		c.metrics.RecordCompaction(time.Since(start))
	}
	c.updateGauges()
	c.logger.Info("compaction finished", map[string]interface{}{
		"duration": time.Since(start),
		"live":     c.index.Store().LiveCount(),
	})
	return nil
}

// Snapshot writes the collection to w.
func (c *Collection) Snapshot(w io.Writer) error {
	c.mu.RLock()
	meta := make(map[uint32]map[string]string, c.meta.Len())
	c.meta.Scan(func(id uint32, fields map[string]string) bool {
		meta[id] = fields
		return true
	})
	err := snapshot.WriteWithMetadata(w, c.index, meta)
	c.mu.RUnlock()

	if err == nil && c.metrics != nil {
		c.metrics.SnapshotsWritten.Inc()
	}
	return err
}

// CollectionStats is a point-in-time view of one collection.
type CollectionStats struct {
	Name           string                `json:"name"`
	ID             string                `json:"id"`
	CreatedAt      time.Time             `json:"created_at"`
	Dimension      int                   `json:"dimension"`
	Metric         distance.Metric       `json:"metric"`
	Precision      vectorstore.Precision `json:"precision"`
	M              int                   `json:"m"`
	EfConstruction int                   `json:"ef_construction"`
	Size           int                   `json:"size"`
	Live           int                   `json:"live"`
	Deleted        int                   `json:"deleted"`
	TopLayer       int                   `json:"top_layer"`
	MaxVectors     int64                 `json:"max_vectors,omitempty"`
}

// Stats returns the collection's statistics.
func (c *Collection) Stats() CollectionStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	store := c.index.Store()
	return CollectionStats{
		Name:           c.name,
		ID:             c.id,
		CreatedAt:      c.createdAt,
		Dimension:      c.index.Dimension(),
		Metric:         c.index.Metric(),
		Precision:      store.Precision(),
		M:              c.index.M(),
		EfConstruction: c.index.EfConstruction(),
		Size:           store.Count(),
		Live:           store.LiveCount(),
		Deleted:        store.TombstoneCount(),
		TopLayer:       c.index.TopLayer(),
		MaxVectors:     c.maxVectors,
	}
}

func (c *Collection) updateGauges() {
	if c.metrics == nil {
		return
	}
	store := c.index.Store()
	c.metrics.UpdateIndex(c.name, store.Count(), store.LiveCount(), c.index.TopLayer())
}
