package ranker

import (
	"errors"
	"math"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
)

func TestExplain(t *testing.T) {
	snap := newSnapshot(t, unigrams, "A: cat dog cat", "B: dog bird")

	exp, err := Explain(snap, "Cat zebra cat dog")
	if err != nil {
		t.Fatal(err)
	}
	want := []TermStat{
		{Term: "cat", DocFreq: 1, InVocabulary: true},
		{Term: "zebra", DocFreq: 0, InVocabulary: false},
		{Term: "dog", DocFreq: 2, InVocabulary: true},
	}
	if len(exp.Terms) != len(want) {
		t.Fatalf("terms = %+v", exp.Terms)
	}
	for i := range want {
		if exp.Terms[i] != want[i] {
			t.Errorf("terms[%d] = %+v, want %+v", i, exp.Terms[i], want[i])
		}
	}

	if len(exp.Features) != 2 || exp.Features[0].Feature != "cat" || exp.Features[1].Feature != "dog" {
		t.Fatalf("features = %+v", exp.Features)
	}
	var sq float64
	for _, f := range exp.Features {
		sq += f.Weight * f.Weight
	}
	if math.Abs(sq-1) > 1e-9 {
		t.Errorf("query vector norm^2 = %v, want 1", sq)
	}
	if exp.Features[0].IDF <= exp.Features[1].IDF {
		t.Errorf("rarer term must carry the higher idf: %+v", exp.Features)
	}
}

func TestExplainUnknownQuery(t *testing.T) {
	snap := newSnapshot(t, unigrams, "A: cat", "B: dog")
	exp, err := Explain(snap, "!!!")
	if err != nil {
		t.Fatal(err)
	}
	if exp.Terms == nil || exp.Features == nil || len(exp.Terms) != 0 || len(exp.Features) != 0 {
		t.Errorf("explanation = %+v, want empty non-nil slices", exp)
	}
	if _, err := Explain(nil, "cat"); !errors.Is(err, apperrors.ErrIndexNotLoaded) {
		t.Errorf("nil snapshot err = %v", err)
	}
}
