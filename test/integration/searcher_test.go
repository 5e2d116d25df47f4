// Package integration contains tests that verify the interaction between
// the indexer and searcher components: a real build on disk, hot reload
// through the snapshot watcher, and the HTTP API on top. External services
// (PostgreSQL, Redis) are exercised when reachable and skipped otherwise.
//
// Run with:
//
//	go test -v ./test/integration/...
package integration

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/vsm"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/searcher/batch"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/searcher/reload"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/proto"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docrank/pkg/redis"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type testEnv struct {
	htmlDir string
	dataDir string
	builder *indexer.Builder
	store   *snapshot.Store
	server  *httptest.Server
}

func writePages(t *testing.T, dir string, pages map[string]string) {
	t.Helper()
	for name, body := range pages {
		html := fmt.Sprintf("<!-- URL: https://example.com/%s -->\n<html><head><title>%s</title><style>p{}</style></head><body><p>%s</p></body></html>", name, name, body)
		if err := os.WriteFile(filepath.Join(dir, name+".html"), []byte(html), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// newEnv wires a searcher exactly like cmd/searcher does, minus Kafka, with
// qc as the optional result cache.
func newEnv(t *testing.T, qc *cache.QueryCache) *testEnv {
	t.Helper()
	env := &testEnv{htmlDir: t.TempDir(), dataDir: t.TempDir()}
	opts := indexer.Options{
		HTMLDir:      env.htmlDir,
		Workers:      3,
		DocTimeout:   5 * time.Second,
		MaxPositions: 10,
		Vectorizer:   vsm.Config{MaxFeatures: 500, MinDF: 1, MaxDF: 0.95, NgramMin: 1, NgramMax: 2},
	}
	env.builder = indexer.NewBuilder(opts, snapshot.NewStore(env.dataDir, 3))

	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	env.store = snapshot.NewStore(env.dataDir, 3)
	searcher := ranker.NewSearcher(env.store).WithMetrics(m)
	reloader := reload.New(env.store).WithMetrics(m)
	h := handler.New(searcher, env.store, 10, 50).WithMetrics(m)
	if qc != nil {
		searcher.WithCache(qc)
		reloader.WithInvalidator(qc)
		h.WithCache(qc)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	watcher := reload.NewWatcher(env.dataDir, 20*time.Millisecond, func() {
		_, _, _ = reloader.Reload(ctx, "watch")
	})
	if err := watcher.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(watcher.Stop)

	checker := health.NewChecker()
	checker.Register("snapshot", h.SnapshotCheck)
	env.server = httptest.NewServer(handler.NewRouter(h, checker, m, handler.RouterConfig{Timeout: 5 * time.Second}))
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) build(t *testing.T) indexer.Stats {
	t.Helper()
	stats, err := e.builder.Run(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return stats
}

func (e *testEnv) search(t *testing.T, q string) proto.SearchResponse {
	t.Helper()
	resp, err := http.Get(e.server.URL + "/api/v1/search?q=" + url.QueryEscape(q))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("search %q: status %d", q, resp.StatusCode)
	}
	var out proto.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

// waitForSnapshot polls /api/v1/stats until the watcher has published id.
func (e *testEnv) waitForSnapshot(t *testing.T, id string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if snap, err := e.store.Current(); err == nil && snap.ID == id {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("snapshot %s was not published by the watcher", id)
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestBuildThenServe(t *testing.T) {
	env := newEnv(t, nil)

	resp, err := http.Get(env.server.URL + "/api/v1/search?q=anything")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("search before first build = %d, want 503", resp.StatusCode)
	}

	writePages(t, env.htmlDir, map[string]string{
		"go":     "goroutines channels and the go scheduler",
		"python": "python generators and the global interpreter lock",
		"rust":   "rust ownership borrowing and lifetimes",
	})
	stats := env.build(t)
	if stats.Documents != 3 {
		t.Fatalf("stats = %+v", stats)
	}
	env.waitForSnapshot(t, stats.SnapshotID)

	got := env.search(t, "ownership and lifetimes")
	if got.SnapshotID != stats.SnapshotID || got.Total != 1 || got.Results[0].DocID != "rust" {
		t.Errorf("search = %+v", got)
	}
	if got.Results[0].URL != "https://example.com/rust" {
		t.Errorf("url = %q", got.Results[0].URL)
	}
}

func TestRebuildIsPickedUp(t *testing.T) {
	env := newEnv(t, nil)
	writePages(t, env.htmlDir, map[string]string{
		"a": "distributed consensus with raft",
		"b": "relational databases and indexes",
	})
	first := env.build(t)
	env.waitForSnapshot(t, first.SnapshotID)
	if got := env.search(t, "paxos"); got.Total != 0 {
		t.Fatalf("paxos before rebuild = %+v", got)
	}

	writePages(t, env.htmlDir, map[string]string{"c": "paxos and multi paxos"})
	second := env.build(t)
	env.waitForSnapshot(t, second.SnapshotID)

	got := env.search(t, "paxos")
	if got.SnapshotID != second.SnapshotID || got.Total != 1 || got.Results[0].DocID != "c" {
		t.Errorf("paxos after rebuild = %+v", got)
	}
}

func TestBatchEndpointMatchesLibrary(t *testing.T) {
	env := newEnv(t, nil)
	writePages(t, env.htmlDir, map[string]string{
		"x": "apples and oranges",
		"y": "oranges and lemons",
		"z": "lemons and limes",
	})
	stats := env.build(t)
	env.waitForSnapshot(t, stats.SnapshotID)

	body := "query_id,query_text\nq1,oranges\nq2,limes\n"
	resp, err := http.Post(env.server.URL+"/api/v1/batch?k=5", "text/csv", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("batch status = %d", resp.StatusCode)
	}
	queries, err := batch.ReadQueries(strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	want, err := batch.Run(context.Background(), ranker.NewSearcher(env.store), queries, 5)
	if err != nil {
		t.Fatal(err)
	}
	records, err := csv.NewReader(resp.Body).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != len(want)+1 {
		t.Fatalf("got %d records, want %d rows plus header", len(records), len(want))
	}
	for i, row := range want {
		rec := records[i+1]
		if rec[0] != row.QueryID || rec[1] != row.DocID || rec[2] != strconv.Itoa(row.Rank) {
			t.Errorf("row %d = %v, want %+v", i, rec, row)
		}
	}
}

func TestRedisCacheAcrossReload(t *testing.T) {
	addr := envOrDefault("TEST_REDIS_ADDR", "localhost:6379")
	client, err := pkgredis.NewClient(config.RedisConfig{Addr: addr, PoolSize: 2})
	if err != nil {
		t.Skipf("skipping: redis unavailable at %s: %v", addr, err)
	}
	t.Cleanup(func() { client.Close() })

	qc := cache.New(client, time.Minute, nil)
	env := newEnv(t, qc)
	writePages(t, env.htmlDir, map[string]string{
		"a": "kafka consumers and partitions",
		"b": "redis streams and consumer groups",
	})
	first := env.build(t)
	env.waitForSnapshot(t, first.SnapshotID)

	if got := env.search(t, "consumer groups"); got.Cached {
		t.Error("first query must not be served from cache")
	}
	if got := env.search(t, "consumer groups"); !got.Cached {
		t.Error("repeated query must be served from cache")
	}

	writePages(t, env.htmlDir, map[string]string{"c": "consumer groups in nats"})
	second := env.build(t)
	env.waitForSnapshot(t, second.SnapshotID)
	got := env.search(t, "consumer groups")
	if got.Cached || got.SnapshotID != second.SnapshotID {
		t.Errorf("results after reload = %+v, want fresh results from the new snapshot", got)
	}
	_ = qc.Invalidate(context.Background(), "")
}

func TestPostgresSink(t *testing.T) {
	pg := config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "docrank_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "docrank"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}
	sink, err := batch.Open(config.BatchConfig{Sink: "postgres"}, pg)
	if err != nil {
		t.Skipf("skipping: postgres unavailable: %v", err)
	}
	defer sink.Close()

	rows := []batch.Row{
		{QueryID: "q1", DocID: "a", Rank: 1, Score: 0.9},
		{QueryID: "q1", DocID: "b", Rank: 2, Score: 0.4},
	}
	if err := batch.Write(context.Background(), sink, rows, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	if id := sink.(*batch.SQLSink).LastRunID(); id == "" {
		t.Error("expected a run id after writing")
	}
}
