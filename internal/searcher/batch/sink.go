package batch

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/postgres"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	_ "modernc.org/sqlite"
)

// Columns is the header shared by every tabular sink.
var Columns = []string{"query_id", "doc_id", "rank", "score"}

// Sink receives the rows of one batch run.
type Sink interface {
	Name() string
	WriteRows(ctx context.Context, rows []Row) error
	Close() error
}

// Open returns the sink named by cfg.Sink writing to cfg.Output. The
// postgres sink ignores Output and connects with pg.
func Open(cfg config.BatchConfig, pg config.PostgresConfig) (Sink, error) {
	switch cfg.Sink {
	case "", "csv":
		if err := os.MkdirAll(filepath.Dir(cfg.Output), 0o755); err != nil {
			return nil, fmt.Errorf("creating output dir: %w", err)
		}
		f, err := os.Create(cfg.Output)
		if err != nil {
			return nil, fmt.Errorf("creating %s: %w", cfg.Output, err)
		}
		return &CSVSink{w: f, closer: f}, nil
	case "xlsx":
		return &XLSXSink{path: cfg.Output}, nil
	case "sqlite":
		sink, err := OpenSQLite(cfg.Output)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		db, err := postgres.Open(ctx, pg)
		if err != nil {
			return nil, err
		}
		return newSQLSink("postgres", db, dialectPostgres), nil
	}
	return nil, fmt.Errorf("%w: unknown batch sink %q", apperrors.ErrInvalidInput, cfg.Sink)
}

// Write sends rows to sink and counts them. It does not close the sink.
func Write(ctx context.Context, sink Sink, rows []Row, m *metrics.Metrics) error {
	if err := sink.WriteRows(ctx, rows); err != nil {
		return fmt.Errorf("writing %d rows to %s sink: %w", len(rows), sink.Name(), err)
	}
	if m != nil {
		m.BatchRowsTotal.WithLabelValues(sink.Name()).Add(float64(len(rows)))
	}
	slog.Default().Info("batch rows written", "component", "batch", "sink", sink.Name(), "rows", len(rows))
	return nil
}

func formatScore(s float64) string {
	return strconv.FormatFloat(s, 'g', -1, 64)
}

// CSVSink writes a header line followed by one line per row.
type CSVSink struct {
	w      io.Writer
	closer io.Closer
}

// NewCSVSink writes to w. Closing the sink does not close w.
func NewCSVSink(w io.Writer) *CSVSink {
	return &CSVSink{w: w}
}

func (s *CSVSink) Name() string { return "csv" }

func (s *CSVSink) WriteRows(_ context.Context, rows []Row) error {
	cw := csv.NewWriter(s.w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.QueryID, r.DocID, strconv.Itoa(r.Rank), formatScore(r.Score)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *CSVSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// XLSXSink writes a single "Results" sheet.
type XLSXSink struct {
	path string
}

func NewXLSXSink(path string) *XLSXSink {
	return &XLSXSink{path: path}
}

func (s *XLSXSink) Name() string { return "xlsx" }

const xlsxSheet = "Results"

func (s *XLSXSink) WriteRows(_ context.Context, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(xlsxSheet, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{r.QueryID, r.DocID, r.Rank, r.Score}
		if err := f.SetSheetRow(xlsxSheet, cell, &values); err != nil {
			return fmt.Errorf("writing row %d: %w", i+1, err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	if err := f.SaveAs(s.path); err != nil {
		return fmt.Errorf("saving %s: %w", s.path, err)
	}
	return nil
}

func (s *XLSXSink) Close() error { return nil }

type dialect int

const (
	dialectPostgres dialect = iota
	dialectSQLite
)

const createResultsTable = `
CREATE TABLE IF NOT EXISTS batch_results (
	run_id     TEXT NOT NULL,
	query_id   TEXT NOT NULL,
	doc_id     TEXT NOT NULL,
	rank       INTEGER NOT NULL,
	score      DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, query_id, rank)
)`

var resultColumns = []string{"run_id", "query_id", "doc_id", "rank", "score", "created_at"}

// SQLSink appends rows to the batch_results table, tagging each WriteRows
// call with a fresh run id.
type SQLSink struct {
	name    string
	db      *sql.DB
	dialect dialect
	lastRun string
}

func newSQLSink(name string, db *sql.DB, d dialect) *SQLSink {
	return &SQLSink{name: name, db: db, dialect: d}
}

// OpenSQLite opens (creating if needed) the SQLite database at path.
func OpenSQLite(path string) (*SQLSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open results db: %w", err)
	}
	db.SetMaxOpenConns(1)
	return newSQLSink("sqlite", db, dialectSQLite), nil
}

func (s *SQLSink) Name() string { return s.name }

// LastRunID is the run id of the most recent successful WriteRows.
func (s *SQLSink) LastRunID() string { return s.lastRun }

// WriteRows stores rows under a fresh run id. Postgres bulk-loads with COPY;
// SQLite goes through one prepared insert.
func (s *SQLSink) WriteRows(ctx context.Context, rows []Row) error {
	runID := uuid.NewString()
	now := time.Now().UTC()
	err := postgres.InTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, createResultsTable); err != nil {
			return fmt.Errorf("creating batch_results: %w", err)
		}
		if s.dialect == dialectPostgres {
			values := make([][]any, len(rows))
			for i, r := range rows {
				values[i] = []any{runID, r.QueryID, r.DocID, r.Rank, r.Score, now}
			}
			return postgres.CopyRows(ctx, tx, "batch_results", resultColumns, values)
		}
		stmt, err := tx.PrepareContext(ctx, "INSERT INTO batch_results (run_id, query_id, doc_id, rank, score, created_at) VALUES (?, ?, ?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()
		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, runID, r.QueryID, r.DocID, r.Rank, r.Score, now); err != nil {
				return fmt.Errorf("inserting %s/%s: %w", r.QueryID, r.DocID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.lastRun = runID
	return nil
}

func (s *SQLSink) Close() error {
	return s.db.Close()
}
