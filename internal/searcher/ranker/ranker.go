// Package ranker scores the documents of a snapshot against a free-text
// query by cosine similarity of their TF-IDF vectors.
package ranker

import (
	"container/heap"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/snapshot"
	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
)

// Result is one ranked document. Rank starts at 1.
type Result struct {
	Rank  int     `json:"rank"`
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
	URL   string  `json:"url"`
	Title string  `json:"title"`
}

// Rank returns at most k documents of snap with a positive score for query,
// best first. Equal scores keep snapshot row order. An empty query, or one
// made only of stop words or unknown terms, yields an empty list.
func Rank(snap *snapshot.Snapshot, query string, k int) ([]Result, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", apperrors.ErrInvalidQueryParameter, k)
	}
	if snap == nil {
		return nil, apperrors.ErrIndexNotLoaded
	}

	q := snap.Model.TransformText(query)
	if q.IsZero() {
		return []Result{}, nil
	}

	h := make(candidateHeap, 0, min(k, len(snap.Matrix)))
	for row, vec := range snap.Matrix {
		score := clamp(vec.Dot(q))
		if score <= 0 {
			continue
		}
		c := candidate{row: row, score: score}
		if h.Len() < k {
			heap.Push(&h, c)
			continue
		}
		if worse(h[0], c) {
			h[0] = c
			heap.Fix(&h, 0)
		}
	}

	results := make([]Result, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		c := heap.Pop(&h).(candidate)
		doc := snap.Docs[c.row]
		results[i] = Result{
			Rank:  i + 1,
			DocID: doc.ID,
			Score: c.score,
			URL:   doc.URL,
			Title: doc.Title,
		}
	}
	return results, nil
}

// Scores returns the clamped cosine similarity of every row, in row order.
func Scores(snap *snapshot.Snapshot, query string) ([]float64, error) {
	if snap == nil {
		return nil, apperrors.ErrIndexNotLoaded
	}
	q := snap.Model.TransformText(query)
	scores := make([]float64, len(snap.Matrix))
	if q.IsZero() {
		return scores, nil
	}
	for row, vec := range snap.Matrix {
		scores[row] = clamp(vec.Dot(q))
	}
	return scores, nil
}

// clamp absorbs rounding that can push the dot product of two unit vectors
// slightly outside [0, 1].
func clamp(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}

type candidate struct {
	row   int
	score float64
}

// worse reports whether a ranks below b.
func worse(a, b candidate) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.row > b.row
}

// candidateHeap keeps the weakest candidate at the root so it can be
// replaced once k candidates are held.
type candidateHeap []candidate

func (h candidateHeap) Len() int           { return len(h) }
func (h candidateHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h candidateHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x any) {
	*h = append(*h, x.(candidate))
}

func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
