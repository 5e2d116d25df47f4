// Package proto defines the JSON message types docrank exchanges with the
// outside world: the index.complete event on Kafka and the searcher's HTTP
// response bodies.
package proto

// EventIndexComplete is the event type header value of IndexComplete.
const EventIndexComplete = "index.complete"

// IndexComplete is published by the indexer after a snapshot is durable and
// CURRENT points at it. Searchers reload on receipt.
type IndexComplete struct {
	SnapshotID    string  `json:"snapshot_id"`
	File          string  `json:"file"`
	Documents     int     `json:"documents"`
	UniqueTerms   int     `json:"unique_terms"`
	Features      int     `json:"features"`
	AvgDocLength  float64 `json:"avg_doc_length"`
	Warnings      int     `json:"warnings"`
	CreatedAtUnix int64   `json:"created_at"`
}

// SearchResponse is the body of GET /api/v1/search.
type SearchResponse struct {
	Query      string         `json:"query"`
	K          int            `json:"k"`
	SnapshotID string         `json:"snapshot_id"`
	Total      int            `json:"total"`
	Results    []SearchResult `json:"results"`
	LatencyMs  int64          `json:"latency_ms"`
	Cached     bool           `json:"cached,omitempty"`
}

// SearchResult is a single ranked document.
type SearchResult struct {
	Rank  int     `json:"rank"`
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
	URL   string  `json:"url"`
	Title string  `json:"title"`
}

// StatsResponse is the body of GET /api/v1/stats.
type StatsResponse struct {
	SnapshotID   string  `json:"snapshot_id"`
	CreatedAt    string  `json:"created_at"`
	Documents    int     `json:"documents"`
	UniqueTerms  int     `json:"unique_terms"`
	Features     int     `json:"features"`
	AvgDocLength float64 `json:"avg_doc_length"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
