package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	t.Run("RecordSearch", func(t *testing.T) {
		m.RecordSearch(5*time.Millisecond, 10)
		m.RecordSearch(20*time.Millisecond, 3)

		if got := testutil.ToFloat64(m.SearchesTotal); got != 2 {
			t.Errorf("SearchesTotal = %v, want 2", got)
		}
	})

	t.Run("RecordInsertDelete", func(t *testing.T) {
		m.RecordInsert(5)
		m.RecordInsert(1)
		m.RecordDelete(2)

		if got := testutil.ToFloat64(m.VectorsInserted); got != 6 {
			t.Errorf("VectorsInserted = %v, want 6", got)
		}
		if got := testutil.ToFloat64(m.VectorsDeleted); got != 2 {
			t.Errorf("VectorsDeleted = %v, want 2", got)
		}
	})

	t.Run("RecordRequest", func(t *testing.T) {
		m.RecordRequest("/v1/vectors/search", "200", 10*time.Millisecond)
		m.RecordRequest("/v1/vectors/search", "400", time.Millisecond)

		if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/v1/vectors/search", "200")); got != 1 {
			t.Errorf("RequestsTotal{200} = %v, want 1", got)
		}
	})

	t.Run("UpdateIndex", func(t *testing.T) {
		m.UpdateIndex("docs", 100, 90, 3)

		if got := testutil.ToFloat64(m.IndexSize.WithLabelValues("docs")); got != 100 {
			t.Errorf("IndexSize = %v, want 100", got)
		}
		if got := testutil.ToFloat64(m.IndexLive.WithLabelValues("docs")); got != 90 {
			t.Errorf("IndexLive = %v, want 90", got)
		}
		if got := testutil.ToFloat64(m.IndexMaxLayer.WithLabelValues("docs")); got != 3 {
			t.Errorf("IndexMaxLayer = %v, want 3", got)
		}

		m.DropIndex("docs")
	})

	t.Run("RecordCompaction", func(t *testing.T) {
		m.RecordCompaction(50 * time.Millisecond)
		if got := testutil.ToFloat64(m.CompactionsTotal); got != 1 {
			t.Errorf("CompactionsTotal = %v, want 1", got)
		}
	})
}

func TestMetricsWithIsolatedRegistries(t *testing.T) {
	// Two instances must not collide when each has its own registry.
	a := NewMetricsWith(prometheus.NewRegistry())
	b := NewMetricsWith(prometheus.NewRegistry())

	a.RecordInsert(1)
	if got := testutil.ToFloat64(b.VectorsInserted); got != 0 {
		t.Errorf("registries shared state: %v", got)
	}
}
