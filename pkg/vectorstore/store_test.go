package vectorstore

import (
	"errors"
	"math"
	"testing"

	"github.com/vexdb/vexdb/pkg/distance"
)

func TestInsertAssignsMonotonicIDs(t *testing.T) {
	s, err := New(3, Float32)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		id, err := s.Insert([]float32{float32(i), 0, 0})
		if err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
		if id != uint32(i) {
			t.Errorf("expected id %d, got %d", i, id)
		}
	}

	if s.Count() != 5 {
		t.Errorf("Count = %d, want 5", s.Count())
	}
}

func TestInsertDimensionMismatch(t *testing.T) {
	s, _ := New(3, Float32)

	_, err := s.Insert([]float32{1, 2})
	if !errors.Is(err, distance.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	_, err = s.Insert([]float32{1, 2, 3, 4})
	if !errors.Is(err, distance.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s, _ := New(2, Float32)
	id, _ := s.Insert([]float32{1, 2})

	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	got[0] = 99

	again, _ := s.Get(id)
	if again[0] != 1 {
		t.Error("Get must return a copy, stored vector was mutated")
	}
}

func TestGetNotFound(t *testing.T) {
	s, _ := New(2, Float32)
	if _, err := s.Get(0); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unassigned id, got %v", err)
	}
}

func TestMarkDeletedIdempotent(t *testing.T) {
	s, _ := New(2, Float32)
	id, _ := s.Insert([]float32{1, 2})

	if err := s.MarkDeleted(id); err != nil {
		t.Fatalf("MarkDeleted failed: %v", err)
	}
	if err := s.MarkDeleted(id); err != nil {
		t.Fatalf("second MarkDeleted should be a no-op, got %v", err)
	}
	if s.IsLive(id) {
		t.Error("deleted id reported live")
	}

	// Tombstoned vectors stay readable until compaction.
	if _, err := s.Get(id); err != nil {
		t.Errorf("Get on tombstoned id should succeed, got %v", err)
	}
}

func TestMarkDeletedUnknown(t *testing.T) {
	s, _ := New(2, Float32)
	if err := s.MarkDeleted(7); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPurgeReclaimsVector(t *testing.T) {
	s, _ := New(2, Float32)
	id, _ := s.Insert([]float32{1, 2})

	// Purge of a live id is a no-op.
	s.Purge(id)
	if _, err := s.Get(id); err != nil {
		t.Fatalf("Purge must not touch live ids: %v", err)
	}

	s.MarkDeleted(id)
	s.Purge(id)
	if _, err := s.Get(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after purge, got %v", err)
	}

	// The id stays burned.
	next, _ := s.Insert([]float32{3, 4})
	if next != 1 {
		t.Errorf("purged id must not be reused, next insert got id %d", next)
	}
}

func TestLiveCount(t *testing.T) {
	s, _ := New(2, Float32)
	for i := 0; i < 4; i++ {
		s.Insert([]float32{float32(i), 0})
	}
	s.MarkDeleted(1)
	s.MarkDeleted(3)

	if got := s.LiveCount(); got != 2 {
		t.Errorf("LiveCount = %d, want 2", got)
	}
	if got := s.Count(); got != 4 {
		t.Errorf("Count = %d, want 4", got)
	}
}

func TestFloat16RoundTrip(t *testing.T) {
	s, err := New(4, Float16)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	in := []float32{0.5, -1.25, 3.0, 0.0625}
	id, err := s.Insert(in)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	out, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	// These values are exactly representable in half precision.
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("dim %d: got %f, want %f", i, out[i], in[i])
		}
	}

	// Resolve through scratch matches Get.
	scratch := make([]float32, 4)
	view := s.Resolve(id, scratch)
	for i := range in {
		if math.Abs(float64(view[i]-in[i])) > 1e-3 {
			t.Errorf("Resolve dim %d: got %f, want %f", i, view[i], in[i])
		}
	}
}

func TestResolveFloat32NoCopy(t *testing.T) {
	s, _ := New(2, Float32)
	id, _ := s.Insert([]float32{1, 2})

	v := s.Resolve(id, nil)
	if v[0] != 1 || v[1] != 2 {
		t.Errorf("Resolve = %v, want [1 2]", v)
	}
}

func TestRestore(t *testing.T) {
	s, _ := New(2, Float32)
	s.Insert([]float32{1, 0})
	s.Insert([]float32{0, 1})
	s.MarkDeleted(1)

	vecs := [][]float32{{1, 0}, {0, 1}}
	restored, err := Restore(2, Float32, vecs, s.Deleted())
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	if restored.Count() != 2 || restored.LiveCount() != 1 {
		t.Errorf("Count/LiveCount = %d/%d, want 2/1", restored.Count(), restored.LiveCount())
	}
	if restored.IsLive(1) {
		t.Error("tombstone lost through restore")
	}

	// Burned slot (nil vector) keeps the id allocated but unreadable.
	burned, err := Restore(2, Float32, [][]float32{{1, 0}, nil}, nil)
	if err != nil {
		t.Fatalf("Restore with burned slot failed: %v", err)
	}
	if burned.Count() != 2 {
		t.Errorf("Count = %d, want 2", burned.Count())
	}
	if _, err := burned.Get(1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for burned slot, got %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(0, Float32); err == nil {
		t.Error("expected error for zero dimension")
	}
	if _, err := New(3, "float8"); err == nil {
		t.Error("expected error for unknown precision")
	}
}

func TestTombstoneCount(t *testing.T) {
	s, _ := New(2, Float32)
	for i := 0; i < 4; i++ {
		s.Insert([]float32{float32(i), 0})
	}

	s.MarkDeleted(0)
	s.MarkDeleted(1)
	s.MarkDeleted(1) // idempotent
	if got := s.TombstoneCount(); got != 2 {
		t.Errorf("TombstoneCount = %d, want 2", got)
	}

	s.Purge(0)
	s.Purge(0) // purge is idempotent too
	if got := s.TombstoneCount(); got != 1 {
		t.Errorf("TombstoneCount after purge = %d, want 1", got)
	}
	if got := s.LiveCount(); got != 2 {
		t.Errorf("LiveCount = %d, want 2", got)
	}
}
