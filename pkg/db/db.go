// Package db is the engine facade: named collections, each wrapping an
// index plus per-vector metadata, with snapshot and compaction entry
// points for the server layer.
package db

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/vexdb/vexdb/pkg/distance"
	"github.com/vexdb/vexdb/pkg/observability"
	"github.com/vexdb/vexdb/pkg/snapshot"
	"github.com/vexdb/vexdb/pkg/vectorstore"
)

var (
	// ErrCollectionExists reports a create against a taken name.
	ErrCollectionExists = errors.New("collection already exists")
	// ErrCollectionNotFound reports an operation against an unknown name.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrQuotaExceeded reports an insert into a full collection.
	ErrQuotaExceeded = errors.New("collection quota exceeded")
)

// IndexDefaults are applied when a collection is created without
// explicit parameters.
type IndexDefaults struct {
	M              int
	EfConstruction int
	EfSearch       int
	Precision      vectorstore.Precision
}

// Options configures a DB.
type Options struct {
	Logger  *observability.Logger
	Metrics *observability.Metrics // nil disables metric recording
	Index   IndexDefaults
}

// DB owns the set of named collections.
type DB struct {
	mu          sync.RWMutex
	collections map[string]*Collection

	logger   *observability.Logger
	metrics  *observability.Metrics
	defaults IndexDefaults
}

// New creates an empty DB.
func New(opts Options) *DB {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewDefaultLogger()
	}
	defaults := opts.Index
	if defaults.EfSearch <= 0 {
		defaults.EfSearch = 50
	}
	if defaults.Precision == "" {
		defaults.Precision = vectorstore.Float32
	}

	return &DB{
		collections: make(map[string]*Collection),
		logger:      logger,
		metrics:     opts.Metrics,
		defaults:    defaults,
	}
}

// CollectionParams describe a collection at creation time. Zero values
// fall back to the DB's defaults.
type CollectionParams struct {
	Dimension      int
	Metric         distance.Metric
	M              int
	EfConstruction int
	Precision      vectorstore.Precision
	MaxVectors     int64 // 0 means unlimited
}

// CreateCollection creates a named collection.
func (db *DB) CreateCollection(name string, p CollectionParams) (*Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("collection name must not be empty")
	}
	if p.M == 0 {
		p.M = db.defaults.M
	}
	if p.EfConstruction == 0 {
		p.EfConstruction = db.defaults.EfConstruction
	}
	if p.Precision == "" {
		p.Precision = db.defaults.Precision
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.collections[name]; exists {
		return nil, fmt.Errorf("%w: %q", ErrCollectionExists, name)
	}

	col, err := newCollection(name, p, db.defaults.EfSearch, db.logger, db.metrics)
	if err != nil {
		return nil, err
	}
	db.collections[name] = col
	db.logger.Info("collection created", map[string]interface{}{
		"collection": name,
		"dimension":  p.Dimension,
		"metric":     string(col.index.Metric()),
	})
	return col, nil
}

// Collection returns the named collection.
func (db *DB) Collection(name string) (*Collection, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	col, exists := db.collections[name]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrCollectionNotFound, name)
	}
	return col, nil
}

// DropCollection removes the named collection and its metrics.
func (db *DB) DropCollection(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.collections[name]; !exists {
		return fmt.Errorf("%w: %q", ErrCollectionNotFound, name)
	}
	delete(db.collections, name)
	if db.metrics != nil {
		db.metrics.DropIndex(name)
	}
	db.logger.Info("collection dropped", map[string]interface{}{"collection": name})
	return nil
}

// List returns the collection names in sorted order.
func (db *DB) List() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	names := make([]string, 0, len(db.collections))
	for name := range db.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats returns per-collection statistics, sorted by name.
func (db *DB) Stats() []CollectionStats {
	names := db.List()
	stats := make([]CollectionStats, 0, len(names))
	for _, name := range names {
		col, err := db.Collection(name)
		if err != nil {
			continue
		}
		stats = append(stats, col.Stats())
	}
	return stats
}

// Snapshot writes the named collection to w.
func (db *DB) Snapshot(name string, w io.Writer) error {
	col, err := db.Collection(name)
	if err != nil {
		return err
	}
	return col.Snapshot(w)
}

// Restore reads a snapshot from r and installs it under name,
// replacing any existing collection with that name.
func (db *DB) Restore(name string, r io.Reader) (*Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("collection name must not be empty")
	}

	ix, meta, err := snapshot.ReadWithMetadata(r)
	if err != nil {
		return nil, err
	}

	col := restoredCollection(name, ix, meta, db.defaults.EfSearch, db.logger, db.metrics)

	db.mu.Lock()
	db.collections[name] = col
	db.mu.Unlock()

	if db.metrics != nil {
		db.metrics.SnapshotsRestored.Inc()
	}

	db.logger.Info("collection restored", map[string]interface{}{
		"collection": name,
		"vectors":    ix.Len(),
	})
	return col, nil
}

// Compact runs compaction on every collection whose deleted fraction
// reaches minFraction. It returns the number of collections compacted.
func (db *DB) Compact(minFraction float64) (int, error) {
	names := db.List()
	compacted := 0
	for _, name := range names {
		col, err := db.Collection(name)
		if err != nil {
			continue
		}
		st := col.Stats()
		if st.Size == 0 || float64(st.Deleted)/float64(st.Size) < minFraction {
			continue
		}
		if err := col.Compact(); err != nil {
			return compacted, fmt.Errorf("compacting %q: %w", name, err)
		}
		compacted++
	}
	return compacted, nil
}
