package index

import (
	"encoding/json"
	"io"
)

type sampleEntry struct {
	DocFreq  int         `json:"df"`
	Postings PostingList `json:"postings"`
}

// WriteSample writes the first n terms in lexicographic order as an indented
// JSON object keyed by term, for eyeballing an index.
func (ix *InvertedIndex) WriteSample(w io.Writer, n int) error {
	terms := ix.Terms()
	if n >= 0 && n < len(terms) {
		terms = terms[:n]
	}
	sample := make(map[string]sampleEntry, len(terms))
	for _, term := range terms {
		e := ix.entries[term]
		sample[term] = sampleEntry{DocFreq: e.DocFreq, Postings: e.Postings}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sample)
}
