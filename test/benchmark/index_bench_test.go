package benchmark

import (
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/vsm"
)

// BenchmarkIndexAdd measures per-document insert throughput into the
// inverted index.
func BenchmarkIndexAdd(b *testing.B) {
	docs := corpus(1000, 200)
	ix := index.New(10)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := ix.AddDocument(fmt.Sprintf("doc-%d", i), docs[i%len(docs)]); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkIndexMerge measures merging chunk indexes in order, as the
// parallel build does.
func BenchmarkIndexMerge(b *testing.B) {
	docs := corpus(2000, 100)
	for _, chunks := range []int{2, 8} {
		b.Run(fmt.Sprintf("chunks_%d", chunks), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				b.StopTimer()
				parts := make([]*index.InvertedIndex, chunks)
				per := len(docs) / chunks
				for c := range parts {
					parts[c] = index.New(10)
					for d := c * per; d < (c+1)*per; d++ {
						if err := parts[c].AddDocument(fmt.Sprintf("doc-%05d", d), docs[d]); err != nil {
							b.Fatal(err)
						}
					}
				}
				b.StartTimer()
				merged := index.New(10)
				for _, p := range parts {
					if err := merged.Merge(p); err != nil {
						b.Fatal(err)
					}
				}
			}
		})
	}
}

// BenchmarkIndexLookup measures single-term lookup latency over 10 000
// documents.
func BenchmarkIndexLookup(b *testing.B) {
	docs := corpus(10000, 50)
	ix := index.New(10)
	for i, terms := range docs {
		if err := ix.AddDocument(fmt.Sprintf("doc-%05d", i), terms); err != nil {
			b.Fatal(err)
		}
	}
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = ix.Lookup("cosine")
		}
	})
}

// BenchmarkFit measures vocabulary selection and IDF computation.
func BenchmarkFit(b *testing.B) {
	for _, n := range []int{100, 1000} {
		docs := corpus(n, 200)
		b.Run(fmt.Sprintf("docs_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := vsm.Fit(docs, vsm.DefaultConfig()); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkSnapshotRoundTrip measures writing and reading a 1 000 document
// snapshot.
func BenchmarkSnapshotRoundTrip(b *testing.B) {
	snap := buildSnapshot(b, corpus(1000, 200))
	dir := b.TempDir()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		path, err := snapshot.Write(dir, snap)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := snapshot.Read(path); err != nil {
			b.Fatal(err)
		}
	}
}
