package hnsw

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/vexdb/vexdb/pkg/distance"
)

// checkInvariants walks the whole graph and verifies that every
// neighbor listed at layer L is itself present at layer L (its level is
// at least L), that no adjacency list exceeds its cap (M, or 2*M at
// layer 0), and that the entry point is live and sits at the top layer.
func checkInvariants(t *testing.T, ix *Index) {
	t.Helper()
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	for id := 0; id < ix.graph.nodeCount(); id++ {
		level := ix.graph.level(uint32(id))
		for l := 0; l <= level; l++ {
			nbrs := ix.graph.neighbors(uint32(id), l)
			if len(nbrs) > ix.graph.degreeCap(l) {
				t.Fatalf("node %d layer %d: %d neighbors exceeds cap %d",
					id, l, len(nbrs), ix.graph.degreeCap(l))
			}
			for _, nb := range nbrs {
				if int(nb) >= ix.graph.nodeCount() {
					t.Fatalf("node %d layer %d: neighbor %d unassigned", id, l, nb)
				}
				if ix.graph.level(nb) < l {
					t.Fatalf("node %d layer %d: neighbor %d only reaches layer %d",
						id, l, nb, ix.graph.level(nb))
				}
			}
		}
	}

	if ix.topLayer >= 0 {
		if !ix.store.IsLive(ix.entryPoint) {
			t.Fatal("entry point is not live")
		}
		if ix.graph.level(ix.entryPoint) != ix.topLayer {
			t.Fatalf("entry point level %d != top layer %d",
				ix.graph.level(ix.entryPoint), ix.topLayer)
		}
	}
}

func TestInvariantsHoldAfterEveryInsert(t *testing.T) {
	ix := newTestIndex(t, 8)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		vec := make([]float32, 8)
		for j := range vec {
			vec[j] = rng.Float32()
		}
		if _, err := ix.Insert(vec); err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
		checkInvariants(t, ix)
	}
}

func TestInvariantsHoldThroughDeletes(t *testing.T) {
	ix := newTestIndex(t, 4)
	rng := rand.New(rand.NewSource(11))

	for i := 0; i < 100; i++ {
		vec := make([]float32, 4)
		for j := range vec {
			vec[j] = rng.Float32()
		}
		ix.Insert(vec)
	}
	for i := 0; i < 100; i += 3 {
		if err := ix.Delete(uint32(i)); err != nil {
			t.Fatalf("Delete %d failed: %v", i, err)
		}
	}
	checkInvariants(t, ix)

	// New insertions into a graph with tombstones must not link to them.
	for i := 0; i < 20; i++ {
		vec := make([]float32, 4)
		for j := range vec {
			vec[j] = rng.Float32()
		}
		id, err := ix.Insert(vec)
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		for l := 0; l <= ix.graph.level(id); l++ {
			for _, nb := range ix.graph.neighbors(id, l) {
				if !ix.Store().IsLive(nb) {
					t.Errorf("new node %d linked to tombstoned neighbor %d", id, nb)
				}
			}
		}
	}
	checkInvariants(t, ix)
}

// Every inserted vector must be reachable: searching for it with a
// generous ef finds it at distance ~0.
func TestInsertedVectorsAreReachable(t *testing.T) {
	ix := newTestIndex(t, 16)
	rng := rand.New(rand.NewSource(3))

	const n = 300
	vecs := make([][]float32, n)
	ids := make([]uint32, n)
	for i := 0; i < n; i++ {
		vec := make([]float32, 16)
		for j := range vec {
			vec[j] = rng.Float32()
		}
		vecs[i] = vec
		id, err := ix.Insert(vec)
		if err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
		ids[i] = id
	}

	found := 0
	for i := 0; i < n; i++ {
		res, err := ix.Search(vecs[i], 1, 200)
		if err != nil {
			t.Fatalf("Search %d failed: %v", i, err)
		}
		if len(res) == 1 && res[0].ID == ids[i] {
			found++
		}
	}
	recall := float64(found) / float64(n)
	if recall < 0.95 {
		t.Errorf("exact-vector recall = %.3f, want >= 0.95", recall)
	}
}

func TestConcurrentSearchDuringInsert(t *testing.T) {
	ix, err := New(Config{Dimension: 8, Metric: distance.Euclidean, M: 8, EfConstruction: 64, Seed: 1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 100; i++ {
		vec := make([]float32, 8)
		for j := range vec {
			vec[j] = rng.Float32()
		}
		ix.Insert(vec)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			for {
				select {
				case <-stop:
					return
				default:
				}
				q := make([]float32, 8)
				for j := range q {
					q[j] = r.Float32()
				}
				if _, err := ix.Search(q, 5, 20); err != nil {
					t.Errorf("concurrent search failed: %v", err)
					return
				}
			}
		}(int64(w))
	}

	for i := 0; i < 200; i++ {
		vec := make([]float32, 8)
		for j := range vec {
			vec[j] = rng.Float32()
		}
		if _, err := ix.Insert(vec); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	close(stop)
	wg.Wait()

	checkInvariants(t, ix)
}
