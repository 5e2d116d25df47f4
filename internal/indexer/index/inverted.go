package index

import (
	"fmt"
	"sort"

	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
)

// InvertedIndex maps each term to its document frequency and postings.
// It is append-only: documents are added once and never removed, and
// partial indexes built in parallel are combined with Merge at a single
// synchronisation point. It is not safe for concurrent mutation; once
// built it may be read concurrently.
type InvertedIndex struct {
	maxPositions int
	entries      map[string]*TermEntry
	docs         map[string]struct{}
	docOrder     []string
}

// New returns an empty index that keeps at most maxPositions positions per
// posting. A non-positive value selects DefaultMaxPositions.
func New(maxPositions int) *InvertedIndex {
	if maxPositions <= 0 {
		maxPositions = DefaultMaxPositions
	}
	return &InvertedIndex{
		maxPositions: maxPositions,
		entries:      make(map[string]*TermEntry),
		docs:         make(map[string]struct{}),
	}
}

// AddDocument indexes the ordered term sequence of one document. Postings
// are appended after any existing postings for the term. A document with no
// terms is recorded but contributes no postings.
func (ix *InvertedIndex) AddDocument(docID string, terms []string) error {
	if docID == "" {
		return fmt.Errorf("%w: empty document id", apperrors.ErrInvalidInput)
	}
	if _, dup := ix.docs[docID]; dup {
		return fmt.Errorf("%w: document %q already indexed", apperrors.ErrInvalidInput, docID)
	}
	ix.docs[docID] = struct{}{}
	ix.docOrder = append(ix.docOrder, docID)

	termData := make(map[string]*Posting)
	firstSeen := make([]string, 0)
	for pos, term := range terms {
		p, exists := termData[term]
		if !exists {
			p = &Posting{
				DocID:     docID,
				Positions: make([]int, 0, 4),
			}
			termData[term] = p
			firstSeen = append(firstSeen, term)
		}
		p.Frequency++
		if len(p.Positions) < ix.maxPositions {
			p.Positions = append(p.Positions, pos)
		}
	}

	// termData holds one posting per distinct term, so each term's document
	// frequency moves by exactly one for this document.
	for _, term := range firstSeen {
		entry := ix.entry(term)
		entry.Postings = append(entry.Postings, *termData[term])
		entry.DocFreq++
	}
	return nil
}

// Merge appends every posting of other after this index's postings for the
// same term and sums document frequencies. The two indexes must cover
// disjoint document sets.
func (ix *InvertedIndex) Merge(other *InvertedIndex) error {
	for _, docID := range other.docOrder {
		if _, dup := ix.docs[docID]; dup {
			return fmt.Errorf("%w: document %q present in both indexes", apperrors.ErrInvalidInput, docID)
		}
	}
	for _, docID := range other.docOrder {
		ix.docs[docID] = struct{}{}
		ix.docOrder = append(ix.docOrder, docID)
	}
	for term, src := range other.entries {
		dst := ix.entry(term)
		dst.Postings = append(dst.Postings, src.Postings...)
		dst.DocFreq += src.DocFreq
	}
	return nil
}

// Lookup returns the entry for term. The returned postings must not be
// modified.
func (ix *InvertedIndex) Lookup(term string) (TermEntry, bool) {
	entry, ok := ix.entries[term]
	if !ok {
		return TermEntry{}, false
	}
	return *entry, true
}

func (ix *InvertedIndex) DocFreq(term string) int {
	if entry, ok := ix.entries[term]; ok {
		return entry.DocFreq
	}
	return 0
}

// Entries returns every entry sorted by term.
func (ix *InvertedIndex) Entries() []TermEntry {
	terms := ix.Terms()
	entries := make([]TermEntry, 0, len(terms))
	for _, term := range terms {
		entries = append(entries, *ix.entries[term])
	}
	return entries
}

// Terms returns every indexed term in lexicographic order.
func (ix *InvertedIndex) Terms() []string {
	terms := make([]string, 0, len(ix.entries))
	for term := range ix.entries {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// DocIDs returns document ids in the order they were added.
func (ix *InvertedIndex) DocIDs() []string {
	out := make([]string, len(ix.docOrder))
	copy(out, ix.docOrder)
	return out
}

func (ix *InvertedIndex) DocCount() int {
	return len(ix.docOrder)
}

func (ix *InvertedIndex) TermCount() int {
	return len(ix.entries)
}

func (ix *InvertedIndex) MaxPositions() int {
	return ix.maxPositions
}

// Restore rebuilds an index from persisted entries, checking that every
// entry's document frequency matches its postings and refers to a known
// document.
func Restore(maxPositions int, docIDs []string, entries []TermEntry) (*InvertedIndex, error) {
	ix := New(maxPositions)
	for _, docID := range docIDs {
		if _, dup := ix.docs[docID]; dup {
			return nil, fmt.Errorf("%w: duplicate document %q", apperrors.ErrSnapshotCorrupt, docID)
		}
		ix.docs[docID] = struct{}{}
		ix.docOrder = append(ix.docOrder, docID)
	}
	for i := range entries {
		e := entries[i]
		if e.DocFreq != len(e.Postings) {
			return nil, fmt.Errorf("%w: term %q has df %d but %d postings",
				apperrors.ErrSnapshotCorrupt, e.Term, e.DocFreq, len(e.Postings))
		}
		for _, p := range e.Postings {
			if _, ok := ix.docs[p.DocID]; !ok {
				return nil, fmt.Errorf("%w: term %q references unknown document %q",
					apperrors.ErrSnapshotCorrupt, e.Term, p.DocID)
			}
		}
		ix.entries[e.Term] = &e
	}
	return ix, nil
}

func (ix *InvertedIndex) entry(term string) *TermEntry {
	entry, ok := ix.entries[term]
	if !ok {
		entry = &TermEntry{Term: term}
		ix.entries[term] = entry
	}
	return entry
}
