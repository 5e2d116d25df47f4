// Package benchmark contains Go benchmarks for the tokenizer, inverted index,
// vector space model, snapshot format and ranker, measuring throughput and
// allocation behaviour.
package benchmark

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/vsm"
)

var words = strings.Fields(`search engine index ranking cosine similarity vector
	space model term frequency inverse document corpus snapshot query token
	crawler html extraction posting position vocabulary feature weight norm
	cache latency throughput batch sink worker merge chunk publish reload`)

// corpus returns n deterministic documents of about size terms each.
func corpus(n, size int) [][]string {
	rng := rand.New(rand.NewSource(42))
	docs := make([][]string, n)
	for i := range docs {
		terms := make([]string, size)
		for j := range terms {
			terms[j] = words[rng.Intn(len(words))]
		}
		docs[i] = terms
	}
	return docs
}

// buildSnapshot fits a unigram+bigram model over docs without stop words.
func buildSnapshot(b *testing.B, docs [][]string) *snapshot.Snapshot {
	b.Helper()
	ix := index.New(10)
	metas := make([]snapshot.DocMeta, len(docs))
	for i, terms := range docs {
		id := fmt.Sprintf("doc-%05d", i)
		if err := ix.AddDocument(id, terms); err != nil {
			b.Fatal(err)
		}
		metas[i] = snapshot.DocMeta{ID: id, URL: "https://example.com/" + id, Title: id, Length: len(terms)}
	}
	model, err := vsm.Fit(docs, vsm.Config{MaxFeatures: 5000, MinDF: 1, MaxDF: 0.95, NgramMin: 1, NgramMax: 2})
	if err != nil {
		b.Fatal(err)
	}
	return &snapshot.Snapshot{
		ID:        snapshot.NewID(),
		CreatedAt: time.Now(),
		Docs:      metas,
		Index:     ix,
		Model:     model,
		Matrix:    model.TransformCorpus(docs),
	}
}

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `Search engines turn crawled pages into an inverted index and a
        vector space model. Each document becomes a sparse TF-IDF vector; a query
        is analysed the same way and compared by cosine similarity. Results are
        the documents with the highest positive scores.`,
	"long": strings.Repeat(`Information retrieval systems normalise text into
        searchable terms, map each term to the documents containing it along with
        positional information, and weight terms by how rare they are across the
        corpus. Caching layers reduce latency for repeated queries while snapshot
        reloads keep the served index fresh. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = tokenizer.Tokenize(text)
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = tokenizer.Terms(text)
		}
	})
}

func BenchmarkNormalizeVaryingSize(b *testing.B) {
	base := "Document Ranking, TF-IDF & cosine similarity! "
	for _, size := range []int{10, 100, 1000, 10000} {
		text := strings.Repeat(base, size/len(base)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = tokenizer.Normalize(text)
			}
		})
	}
}
