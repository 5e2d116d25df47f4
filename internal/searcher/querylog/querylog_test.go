package querylog

import (
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestStatsAggregates(t *testing.T) {
	a := New(100, 100, 2)
	a.Record(Entry{Query: "Cat!", Results: 2, Latency: 10 * time.Millisecond})
	a.Record(Entry{Query: "cat", Results: 2, Latency: 30 * time.Millisecond, CacheHit: true})
	a.Record(Entry{Query: "zebra", Results: 0, Latency: 20 * time.Millisecond})
	a.Record(Entry{Query: "dog", Results: 1, Latency: 40 * time.Millisecond})

	s := a.Stats()
	if s.TotalQueries != 4 || s.ZeroResultCount != 1 || s.CacheHits != 1 {
		t.Errorf("totals = %+v", s)
	}
	if s.AvgLatencyMs != 25 || s.P50LatencyMs != 30 || s.P99LatencyMs != 40 {
		t.Errorf("latency avg=%v p50=%v p99=%v", s.AvgLatencyMs, s.P50LatencyMs, s.P99LatencyMs)
	}
	wantTop := []QueryCount{{"cat", 2}, {"dog", 1}}
	if !reflect.DeepEqual(s.TopQueries, wantTop) {
		t.Errorf("top = %v, want %v", s.TopQueries, wantTop)
	}
	if !reflect.DeepEqual(s.ZeroResultQueries, []QueryCount{{"zebra", 1}}) {
		t.Errorf("zero-result queries = %v", s.ZeroResultQueries)
	}
}

func TestLatencyWindowWraps(t *testing.T) {
	a := New(2, 10, 10)
	for _, ms := range []int{100, 1, 2} {
		a.Record(Entry{Query: "q", Results: 1, Latency: time.Duration(ms) * time.Millisecond})
	}
	if s := a.Stats(); s.AvgLatencyMs != 1.5 {
		t.Errorf("avg = %v, want 1.5 once the oldest sample is overwritten", s.AvgLatencyMs)
	}
}

func TestQueryTableIsBounded(t *testing.T) {
	a := New(10, 2, 10)
	for _, q := range []string{"a", "b", "c", "a"} {
		a.Record(Entry{Query: q, Results: 1})
	}
	s := a.Stats()
	if len(s.TopQueries) != 2 || s.TopQueries[0] != (QueryCount{"a", 2}) {
		t.Errorf("top = %v", s.TopQueries)
	}
	if s.TotalQueries != 4 {
		t.Errorf("total = %d, untracked queries still count", s.TotalQueries)
	}
}

func TestResetAndRate(t *testing.T) {
	a := New(10, 10, 10)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return base }
	a.Reset()
	for i := 0; i < 6; i++ {
		a.Record(Entry{Query: "q", Results: 1})
	}
	a.now = func() time.Time { return base.Add(2 * time.Minute) }
	if s := a.Stats(); s.QueriesPerMinute != 3 {
		t.Errorf("qpm = %v, want 3", s.QueriesPerMinute)
	}
	a.Reset()
	if s := a.Stats(); s.TotalQueries != 0 || len(s.TopQueries) != 0 {
		t.Errorf("after reset = %+v", s)
	}
}

func TestConcurrentRecord(t *testing.T) {
	a := New(50, 100, 10)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				a.Record(Entry{Query: "q", Results: j % 2})
			}
		}()
	}
	wg.Wait()
	if s := a.Stats(); s.TotalQueries != 800 || s.ZeroResultCount != 400 {
		t.Errorf("stats = %+v", s)
	}
}
