package benchmarks

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/vexdb/vexdb/pkg/distance"
	"github.com/vexdb/vexdb/pkg/hnsw"
	"github.com/vexdb/vexdb/pkg/vectorstore"
)

const (
	benchDim  = 128
	benchSize = 5000
)

func randomVectors(n, dim int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	vecs := make([][]float32, n)
	for i := range vecs {
		v := make([]float32, dim)
		for j := range v {
			v[j] = rng.Float32()
		}
		vecs[i] = v
	}
	return vecs
}

func buildIndex(b *testing.B, precision vectorstore.Precision, vecs [][]float32) *hnsw.Index {
	b.Helper()
	ix, err := hnsw.New(hnsw.Config{
		Dimension:      benchDim,
		Metric:         distance.Euclidean,
		M:              16,
		EfConstruction: 200,
		Seed:           1,
		Precision:      precision,
	})
	if err != nil {
		b.Fatal(err)
	}
	for _, v := range vecs {
		if _, err := ix.Insert(v); err != nil {
			b.Fatal(err)
		}
	}
	return ix
}

// BenchmarkInsert measures construction cost per vector.
func BenchmarkInsert(b *testing.B) {
	for _, precision := range []vectorstore.Precision{vectorstore.Float32, vectorstore.Float16} {
		b.Run(string(precision), func(b *testing.B) {
			vecs := randomVectors(b.N, benchDim, 1)
			ix, err := hnsw.New(hnsw.Config{
				Dimension:      benchDim,
				Metric:         distance.Euclidean,
				M:              16,
				EfConstruction: 200,
				Seed:           1,
				Precision:      precision,
			})
			if err != nil {
				b.Fatal(err)
			}
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := ix.Insert(vecs[i]); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkSearch compares query cost across storage precisions and
// beam widths on the same corpus.
func BenchmarkSearch(b *testing.B) {
	corpus := randomVectors(benchSize, benchDim, 2)
	queries := randomVectors(256, benchDim, 3)

	for _, precision := range []vectorstore.Precision{vectorstore.Float32, vectorstore.Float16} {
		ix := buildIndex(b, precision, corpus)
		for _, ef := range []int{50, 100, 200} {
			b.Run(fmt.Sprintf("%s/ef=%d", precision, ef), func(b *testing.B) {
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					if _, err := ix.Search(queries[i%len(queries)], 10, ef); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

// BenchmarkDistance isolates the metric kernels, the hottest code path.
func BenchmarkDistance(b *testing.B) {
	vecs := randomVectors(2, benchDim, 4)
	for _, metric := range []distance.Metric{distance.Euclidean, distance.DotProduct, distance.Cosine} {
		fn, err := distance.For(metric)
		if err != nil {
			b.Fatal(err)
		}
		b.Run(string(metric), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				fn(vecs[0], vecs[1])
			}
		})
	}
}
