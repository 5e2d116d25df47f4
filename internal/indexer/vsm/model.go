package vsm

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
)

// Model is a fitted TF-IDF vectorizer. It is immutable once Fit or Restore
// returns and may be shared by concurrent queries.
type Model struct {
	cfg      Config
	features []string
	vocab    map[string]int
	idf      []float64
	stop     map[string]struct{}
	docCount int
}

// State is the persisted form of a Model.
type State struct {
	Config   Config    `json:"config"`
	Features []string  `json:"features"`
	IDF      []float64 `json:"idf"`
	DocCount int       `json:"doc_count"`
}

// Fit learns the vocabulary and inverse document frequencies from the
// ordered term sequences of a corpus.
func Fit(docs [][]string, cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, apperrors.ErrEmptyCorpus
	}

	m := &Model{cfg: cfg, stop: stopSet(cfg.StopWords), docCount: len(docs)}

	df := make(map[string]int)
	total := make(map[string]int)
	for _, terms := range docs {
		seen := make(map[string]struct{})
		for _, gram := range m.analyze(terms) {
			total[gram]++
			if _, ok := seen[gram]; !ok {
				seen[gram] = struct{}{}
				df[gram]++
			}
		}
	}
	if len(df) == 0 {
		return nil, fmt.Errorf("%w: corpus contains only stop words", apperrors.ErrDegenerateVocabulary)
	}

	maxDocs := cfg.MaxDF * float64(len(docs))
	candidates := make([]string, 0, len(df))
	for gram, n := range df {
		if float64(n) > maxDocs || n < cfg.MinDF {
			continue
		}
		candidates = append(candidates, gram)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no terms remain after document-frequency pruning", apperrors.ErrDegenerateVocabulary)
	}

	if len(candidates) > cfg.MaxFeatures {
		sort.Slice(candidates, func(i, j int) bool {
			ci, cj := total[candidates[i]], total[candidates[j]]
			if ci != cj {
				return ci > cj
			}
			return candidates[i] < candidates[j]
		})
		candidates = candidates[:cfg.MaxFeatures]
	}
	sort.Strings(candidates)

	m.features = candidates
	m.vocab = make(map[string]int, len(candidates))
	m.idf = make([]float64, len(candidates))
	n := float64(len(docs))
	for i, gram := range candidates {
		m.vocab[gram] = i
		m.idf[i] = math.Log((1+n)/(1+float64(df[gram]))) + 1
	}
	return m, nil
}

// Transform maps a term sequence to its L2-normalised TF-IDF vector. Terms
// outside the vocabulary are ignored; a sequence with none yields the zero
// vector.
func (m *Model) Transform(terms []string) Vector {
	counts := make(map[int]int)
	for _, gram := range m.analyze(terms) {
		if idx, ok := m.vocab[gram]; ok {
			counts[idx]++
		}
	}
	v := Vector{
		Indices: make([]int, 0, len(counts)),
		Values:  make([]float64, 0, len(counts)),
	}
	for idx := range counts {
		v.Indices = append(v.Indices, idx)
	}
	sort.Ints(v.Indices)
	for _, idx := range v.Indices {
		v.Values = append(v.Values, float64(counts[idx])*m.idf[idx])
	}
	v.normalize()
	return v
}

// TransformText runs text through the tokenizer before Transform, so queries
// are analysed exactly like documents.
func (m *Model) TransformText(text string) Vector {
	return m.Transform(tokenizer.Terms(text))
}

// TransformCorpus returns one row per document, in input order.
func (m *Model) TransformCorpus(docs [][]string) Matrix {
	rows := make(Matrix, len(docs))
	for i, terms := range docs {
		rows[i] = m.Transform(terms)
	}
	return rows
}

// Vocabulary returns the features in index order.
func (m *Model) Vocabulary() []string {
	out := make([]string, len(m.features))
	copy(out, m.features)
	return out
}

func (m *Model) IDF() []float64 {
	out := make([]float64, len(m.idf))
	copy(out, m.idf)
	return out
}

func (m *Model) Size() int {
	return len(m.features)
}

func (m *Model) DocCount() int {
	return m.docCount
}

func (m *Model) Config() Config {
	return m.cfg
}

// FeatureIndex returns the index of a feature, if present.
func (m *Model) FeatureIndex(gram string) (int, bool) {
	idx, ok := m.vocab[gram]
	return idx, ok
}

func (m *Model) State() State {
	return State{
		Config:   m.cfg,
		Features: m.Vocabulary(),
		IDF:      m.IDF(),
		DocCount: m.docCount,
	}
}

// Restore rebuilds a model from persisted state. The persisted config and
// vocabulary are trusted as written; only structural consistency is checked.
func Restore(s State) (*Model, error) {
	if len(s.Features) != len(s.IDF) {
		return nil, fmt.Errorf("%w: %d features but %d idf values", apperrors.ErrSnapshotCorrupt, len(s.Features), len(s.IDF))
	}
	if len(s.Features) == 0 {
		return nil, fmt.Errorf("%w: empty vocabulary", apperrors.ErrSnapshotCorrupt)
	}
	m := &Model{
		cfg:      s.Config,
		features: make([]string, len(s.Features)),
		vocab:    make(map[string]int, len(s.Features)),
		idf:      make([]float64, len(s.IDF)),
		stop:     stopSet(s.Config.StopWords),
		docCount: s.DocCount,
	}
	copy(m.features, s.Features)
	copy(m.idf, s.IDF)
	for i, gram := range m.features {
		if i > 0 && m.features[i-1] >= gram {
			return nil, fmt.Errorf("%w: vocabulary not strictly ordered at %q", apperrors.ErrSnapshotCorrupt, gram)
		}
		if !(m.idf[i] > 0) {
			return nil, fmt.Errorf("%w: non-positive idf for %q", apperrors.ErrSnapshotCorrupt, gram)
		}
		m.vocab[gram] = i
	}
	return m, nil
}

// analyze drops stop words and emits the configured n-grams over the
// surviving tokens.
func (m *Model) analyze(terms []string) []string {
	kept := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, stop := m.stop[t]; !stop {
			kept = append(kept, t)
		}
	}
	grams := make([]string, 0, len(kept)*(m.cfg.NgramMax-m.cfg.NgramMin+1))
	for n := m.cfg.NgramMin; n <= m.cfg.NgramMax; n++ {
		if n == 1 {
			grams = append(grams, kept...)
			continue
		}
		for i := 0; i+n <= len(kept); i++ {
			grams = append(grams, strings.Join(kept[i:i+n], " "))
		}
	}
	return grams
}

func stopSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
