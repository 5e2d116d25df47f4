package batch

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
	"github.com/xuri/excelize/v2"
)

type stubSearcher map[string][]ranker.Result

func (s stubSearcher) Search(_ context.Context, query string, k int) ([]ranker.Result, error) {
	if query == "fail" {
		return nil, apperrors.ErrIndexNotLoaded
	}
	res := s[query]
	if len(res) > k {
		res = res[:k]
	}
	return res, nil
}

var searcher = stubSearcher{
	"cat": {
		{Rank: 1, DocID: "a", Score: 0.9},
		{Rank: 2, DocID: "b", Score: 0.25},
	},
	"dog": {
		{Rank: 1, DocID: "b", Score: 0.5},
	},
}

func TestRunFlattensInQueryOrder(t *testing.T) {
	rows, err := Run(context.Background(), searcher, []Query{
		{ID: "q2", Text: "dog"},
		{ID: "q1", Text: "cat"},
		{ID: "q3", Text: "nothing"},
	}, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []Row{
		{QueryID: "q2", DocID: "b", Rank: 1, Score: 0.5},
		{QueryID: "q1", DocID: "a", Rank: 1, Score: 0.9},
		{QueryID: "q1", DocID: "b", Rank: 2, Score: 0.25},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %+v", rows)
	}
}

func TestRunRespectsK(t *testing.T) {
	rows, err := Run(context.Background(), searcher, []Query{{ID: "q1", Text: "cat"}}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].DocID != "a" {
		t.Errorf("rows = %+v", rows)
	}
	if _, err := Run(context.Background(), searcher, nil, 0); !errors.Is(err, apperrors.ErrInvalidQueryParameter) {
		t.Errorf("expected ErrInvalidQueryParameter, got %v", err)
	}
}

func TestRunAbortsOnSearchError(t *testing.T) {
	_, err := Run(context.Background(), searcher, []Query{{ID: "q1", Text: "cat"}, {ID: "q9", Text: "fail"}}, 10)
	if !errors.Is(err, apperrors.ErrIndexNotLoaded) || !strings.Contains(err.Error(), "q9") {
		t.Errorf("err = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, searcher, []Query{{ID: "q1", Text: "cat"}}, 10); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestReadQueries(t *testing.T) {
	in := "\ufeffquery_text,query_id,notes\n\"cat, dog\",q1,x\nbird,q2,\n"
	queries, err := ReadQueries(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	want := []Query{{ID: "q1", Text: "cat, dog"}, {ID: "q2", Text: "bird"}}
	if !reflect.DeepEqual(queries, want) {
		t.Errorf("queries = %+v", queries)
	}
}

func TestReadQueriesRejectsBadInput(t *testing.T) {
	for name, in := range map[string]string{
		"empty":          "",
		"missing column": "query_id,text\nq1,cat\n",
		"empty id":       "query_id,query_text\n,cat\n",
		"short row":      "query_id,query_text\nq1\n",
	} {
		if _, err := ReadQueries(strings.NewReader(in)); !errors.Is(err, apperrors.ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
}

var rows = []Row{
	{QueryID: "q1", DocID: "a", Rank: 1, Score: 0.9},
	{QueryID: "q1", DocID: "b", Rank: 2, Score: 0.25},
}

func TestCSVSink(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(context.Background(), NewCSVSink(&buf), rows, nil); err != nil {
		t.Fatal(err)
	}
	want := "query_id,doc_id,rank,score\nq1,a,1,0.9\nq1,b,2,0.25\n"
	if buf.String() != want {
		t.Errorf("csv = %q", buf.String())
	}

	buf.Reset()
	if err := NewCSVSink(&buf).WriteRows(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "query_id,doc_id,rank,score\n" {
		t.Errorf("empty batch csv = %q", buf.String())
	}
}

func TestXLSXSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.xlsx")
	sink := NewXLSXSink(path)
	if err := sink.WriteRows(context.Background(), rows); err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, err := f.GetRows(xlsxSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || !reflect.DeepEqual(got[0], Columns) || got[1][0] != "q1" || got[2][1] != "b" || got[2][2] != "2" {
		t.Errorf("sheet rows = %v", got)
	}
}

func TestSQLiteSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	sink, err := Open(config.BatchConfig{Sink: "sqlite", Output: path}, config.PostgresConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()
	ctx := context.Background()
	if err := Write(ctx, sink, rows, nil); err != nil {
		t.Fatal(err)
	}
	if err := Write(ctx, sink, rows[:1], nil); err != nil {
		t.Fatal(err)
	}

	sqlSink := sink.(*SQLSink)
	var runs, total int
	if err := sqlSink.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT run_id), COUNT(*) FROM batch_results").Scan(&runs, &total); err != nil {
		t.Fatal(err)
	}
	if runs != 2 || total != 3 {
		t.Errorf("runs=%d rows=%d", runs, total)
	}
	var score float64
	err = sqlSink.db.QueryRowContext(ctx,
		"SELECT score FROM batch_results WHERE run_id = ? AND doc_id = ?", sqlSink.LastRunID(), "a",
	).Scan(&score)
	if err != nil {
		t.Fatal(err)
	}
	if score != 0.9 {
		t.Errorf("score = %v", score)
	}
}

func TestOpenUnknownSink(t *testing.T) {
	if _, err := Open(config.BatchConfig{Sink: "parquet"}, config.PostgresConfig{}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
