package hnsw

// Compact rewrites the graph without tombstoned nodes and reclaims their
// vector memory. Ids are never reused: a compacted id stays burned.
//
// The rebuild replays every surviving node at its originally drawn level,
// so the layer assignment survives compaction without re-running the
// randomized draw. Compact holds the write lock for its whole duration
// and is intended to run from a maintenance schedule, not inline with
// deletes.
func (ix *Index) Compact() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	n := ix.graph.nodeCount()
	if n == 0 {
		return nil
	}

	deadCount := ix.store.Count() - ix.store.LiveCount()
	if deadCount == 0 {
		return nil
	}

	// Snapshot the survivors before resetting adjacency.
	type survivor struct {
		id    uint32
		vec   []float32
		level int
	}
	live := make([]survivor, 0, ix.store.LiveCount())
	scratch := ix.newScratch()
	for id := 0; id < n; id++ {
		if !ix.store.IsLive(uint32(id)) {
			continue
		}
		src := ix.store.Resolve(uint32(id), scratch)
		vec := make([]float32, len(src))
		copy(vec, src)
		live = append(live, survivor{id: uint32(id), vec: vec, level: ix.graph.level(uint32(id))})
	}

	ix.graph.reset()
	ix.topLayer = -1
	ix.entryPoint = 0

	for _, s := range live {
		if err := ix.connectLocked(s.id, s.vec, s.level); err != nil {
			return err
		}
	}

	for id := 0; id < n; id++ {
		if ix.store.IsLive(uint32(id)) {
			continue
		}
		ix.graph.clear(uint32(id))
		ix.store.Purge(uint32(id))
	}
	return nil
}
