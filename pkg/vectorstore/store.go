// Package vectorstore owns the raw vector data behind an index: an arena
// of vectors addressed by stable uint32 ids, a tombstone bitmap for
// logical deletion, and an optional float16 storage precision.
package vectorstore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/x448/float16"

	"github.com/vexdb/vexdb/pkg/distance"
)

// ErrNotFound is returned for an id that was never assigned, or whose
// vector has been reclaimed by compaction.
var ErrNotFound = errors.New("vector not found")

// Precision selects how vectors are stored in memory. Distance is always
// computed in float32; float16 halves memory at a small accuracy cost.
type Precision string

const (
	Float32 Precision = "float32"
	Float16 Precision = "float16"
)

// ParsePrecision converts a string into a Precision.
func ParsePrecision(s string) (Precision, error) {
	switch Precision(s) {
	case Float32, Float16:
		return Precision(s), nil
	case "":
		return Float32, nil
	default:
		return "", fmt.Errorf("unknown precision %q", s)
	}
}

// Store is the arena of vectors for one index instance.
//
// Ids are assigned monotonically starting at 0 and are never reused, even
// after deletion or compaction. A deleted id stays in the tombstone bitmap
// forever; compaction only releases the vector memory behind it.
type Store struct {
	mu        sync.RWMutex
	dim       int
	precision Precision

	vecs   [][]float32 // indexed by id when precision == Float32
	packed [][]uint16  // indexed by id when precision == Float16

	deleted *roaring.Bitmap
	purged  int
	next    uint32
}

// New creates a store for vectors of the given dimension.
func New(dim int, precision Precision) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dim)
	}
	if precision == "" {
		precision = Float32
	}
	if precision != Float32 && precision != Float16 {
		return nil, fmt.Errorf("unknown precision %q", precision)
	}
	return &Store{
		dim:       dim,
		precision: precision,
		deleted:   roaring.New(),
	}, nil
}

// Dimension returns the configured vector dimension.
func (s *Store) Dimension() int { return s.dim }

// Precision returns the configured storage precision.
func (s *Store) Precision() Precision { return s.precision }

// Insert validates the vector's length, assigns the next unused id and
// appends a private copy of the vector. The store only ever grows.
func (s *Store) Insert(vec []float32) (uint32, error) {
	if len(vec) != s.dim {
		return 0, fmt.Errorf("%w: store dimension %d, vector length %d",
			distance.ErrDimensionMismatch, s.dim, len(vec))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++

	switch s.precision {
	case Float16:
		p := make([]uint16, len(vec))
		for i, v := range vec {
			p[i] = float16.Fromfloat32(v).Bits()
		}
		s.packed = append(s.packed, p)
	default:
		c := make([]float32, len(vec))
		copy(c, vec)
		s.vecs = append(s.vecs, c)
	}
	return id, nil
}

// Get returns a copy of the vector for id. Tombstoned vectors are still
// readable until compaction reclaims them.
func (s *Store) Get(id uint32) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id >= s.next {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if s.purgedLocked(id) {
		return nil, fmt.Errorf("%w: id %d was compacted", ErrNotFound, id)
	}

	out := make([]float32, s.dim)
	s.resolveLocked(id, out)
	return out, nil
}

// Resolve returns the float32 view of a stored vector without allocating
// on the float32 path. For float16 precision the vector is widened into
// scratch, which must be at least Dimension long. The caller must hold a
// consistency guarantee externally (the index's lock); vectors themselves
// are immutable once stored.
func (s *Store) Resolve(id uint32, scratch []float32) []float32 {
	if s.precision == Float32 {
		return s.vecs[id]
	}
	p := s.packed[id]
	for i, bits := range p {
		scratch[i] = float16.Frombits(bits).Float32()
	}
	return scratch[:len(p)]
}

// MarkDeleted tombstones an id. Idempotent; the vector data is retained
// so the graph can still traverse through the node.
func (s *Store) MarkDeleted(id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id >= s.next {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	s.deleted.Add(id)
	return nil
}

// IsLive reports whether id refers to an assigned, non-tombstoned vector.
func (s *Store) IsLive(id uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return id < s.next && !s.deleted.Contains(id)
}

// Purge releases the vector memory behind a tombstoned id. The id stays
// burned: Get reports NotFound and the id is never reassigned.
func (s *Store) Purge(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id >= s.next || !s.deleted.Contains(id) || s.purgedLocked(id) {
		return
	}
	switch s.precision {
	case Float16:
		s.packed[id] = nil
	default:
		s.vecs[id] = nil
	}
	s.purged++
}

// Count returns the number of ids ever assigned.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int(s.next)
}

// LiveCount returns the number of non-tombstoned vectors.
func (s *Store) LiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int(s.next) - int(s.deleted.GetCardinality())
}

// TombstoneCount returns the number of tombstoned ids whose vectors
// have not yet been reclaimed by compaction.
func (s *Store) TombstoneCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int(s.deleted.GetCardinality()) - s.purged
}

// Deleted returns a copy of the tombstone bitmap.
func (s *Store) Deleted() *roaring.Bitmap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deleted.Clone()
}

func (s *Store) purgedLocked(id uint32) bool {
	if s.precision == Float16 {
		return s.packed[id] == nil
	}
	return s.vecs[id] == nil
}

func (s *Store) resolveLocked(id uint32, dst []float32) {
	if s.precision == Float32 {
		copy(dst, s.vecs[id])
		return
	}
	for i, bits := range s.packed[id] {
		dst[i] = float16.Frombits(bits).Float32()
	}
}

// Restore rebuilds a store from snapshot state. Slots with a nil vector
// are burned ids (tombstoned and purged before the snapshot was taken).
func Restore(dim int, precision Precision, vecs [][]float32, deleted *roaring.Bitmap) (*Store, error) {
	s, err := New(dim, precision)
	if err != nil {
		return nil, err
	}
	for _, v := range vecs {
		if v == nil {
			switch precision {
			case Float16:
				s.packed = append(s.packed, nil)
			default:
				s.vecs = append(s.vecs, nil)
			}
			s.next++
			s.purged++
			continue
		}
		if _, err := s.Insert(v); err != nil {
			return nil, err
		}
	}
	if deleted != nil {
		s.deleted = deleted.Clone()
	}
	return s, nil
}
