package ranker

import (
	"slices"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
)

// Explanation shows how a query is seen by a snapshot: which of its terms
// occur in the corpus and which model features carry its weight.
type Explanation struct {
	Query    string          `json:"query"`
	Terms    []TermStat      `json:"terms"`
	Features []FeatureWeight `json:"features"`
}

// TermStat is one distinct query term. DocFreq counts documents in the
// inverted index, which also holds terms the model dropped.
type TermStat struct {
	Term         string `json:"term"`
	DocFreq      int    `json:"doc_freq"`
	InVocabulary bool   `json:"in_vocabulary"`
}

// FeatureWeight is one non-zero entry of the query vector.
type FeatureWeight struct {
	Feature string  `json:"feature"`
	IDF     float64 `json:"idf"`
	Weight  float64 `json:"weight"`
}

// Explain reports the term statistics and query vector of query against
// snap. Features are ordered by descending weight.
func Explain(snap *snapshot.Snapshot, query string) (Explanation, error) {
	if snap == nil {
		return Explanation{}, apperrors.ErrIndexNotLoaded
	}
	exp := Explanation{Query: query, Terms: []TermStat{}, Features: []FeatureWeight{}}

	seen := make(map[string]struct{})
	for _, term := range tokenizer.Terms(query) {
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		_, inVocab := snap.Model.FeatureIndex(term)
		exp.Terms = append(exp.Terms, TermStat{
			Term:         term,
			DocFreq:      snap.Index.DocFreq(term),
			InVocabulary: inVocab,
		})
	}

	q := snap.Model.TransformText(query)
	if q.IsZero() {
		return exp, nil
	}
	vocab := snap.Model.Vocabulary()
	idf := snap.Model.IDF()
	for i, idx := range q.Indices {
		exp.Features = append(exp.Features, FeatureWeight{
			Feature: vocab[idx],
			IDF:     idf[idx],
			Weight:  q.Values[i],
		})
	}
	slices.SortStableFunc(exp.Features, func(a, b FeatureWeight) int {
		switch {
		case a.Weight > b.Weight:
			return -1
		case a.Weight < b.Weight:
			return 1
		}
		return 0
	})
	return exp, nil
}
