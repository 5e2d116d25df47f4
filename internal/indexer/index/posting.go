package index

// DefaultMaxPositions bounds the positions stored per posting.
const DefaultMaxPositions = 10

// Posting records one document's occurrences of a term. Frequency is the
// uncapped occurrence count; Positions holds at most the first N positions.
type Posting struct {
	DocID     string `json:"doc_id"`
	Frequency int    `json:"tf"`
	Positions []int  `json:"positions"`
}

type PostingList []Posting

// TermEntry is one inverted-index row. DocFreq always equals len(Postings).
type TermEntry struct {
	Term     string      `json:"term"`
	DocFreq  int         `json:"df"`
	Postings PostingList `json:"postings"`
}

// Document is a crawled page after extraction and tokenisation.
type Document struct {
	ID     string
	URL    string
	Title  string
	Tokens []string
}

func (d Document) TokenCount() int {
	return len(d.Tokens)
}
