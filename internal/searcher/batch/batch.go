// Package batch runs a list of queries through the searcher and flattens the
// ranked lists into (query_id, doc_id, rank, score) rows for tabular export.
package batch

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/logger"
)

// Query is one input line of a batch.
type Query struct {
	ID   string
	Text string
}

// Row is one ranked document for one query.
type Row struct {
	QueryID string  `json:"query_id"`
	DocID   string  `json:"doc_id"`
	Rank    int     `json:"rank"`
	Score   float64 `json:"score"`
}

// Searcher is satisfied by *ranker.Searcher.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]ranker.Result, error)
}

// Run ranks every query in order and returns their rows one query after the
// next. The first failing query aborts the batch.
func Run(ctx context.Context, s Searcher, queries []Query, k int) ([]Row, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", apperrors.ErrInvalidQueryParameter, k)
	}
	log := logger.WithComponent("batch")
	start := time.Now()
	rows := make([]Row, 0, len(queries)*min(k, 10))
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results, err := s.Search(ctx, q.Text, k)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.ID, err)
		}
		for _, r := range results {
			rows = append(rows, Row{
				QueryID: q.ID,
				DocID:   r.DocID,
				Rank:    r.Rank,
				Score:   r.Score,
			})
		}
	}
	log.Info("batch ranked",
		"queries", len(queries),
		"rows", len(rows),
		"k", k,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return rows, nil
}

// ReadQueries parses a CSV with a header naming query_id and query_text
// columns. Other columns are ignored.
func ReadQueries(r io.Reader) ([]Query, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: queries file is empty", apperrors.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %w", apperrors.ErrInvalidInput, err)
	}
	idCol, textCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case "query_id":
			idCol = i
		case "query_text":
			textCol = i
		}
	}
	if idCol < 0 || textCol < 0 {
		return nil, fmt.Errorf("%w: header must contain query_id and query_text, got %v", apperrors.ErrInvalidInput, header)
	}

	var queries []Query
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
		}
		line, _ := cr.FieldPos(0)
		if idCol >= len(rec) || textCol >= len(rec) {
			return nil, fmt.Errorf("%w: line %d has %d fields", apperrors.ErrInvalidInput, line, len(rec))
		}
		id := strings.TrimSpace(rec[idCol])
		if id == "" {
			return nil, fmt.Errorf("%w: line %d has an empty query_id", apperrors.ErrInvalidInput, line)
		}
		queries = append(queries, Query{ID: id, Text: rec[textCol]})
	}
	return queries, nil
}
