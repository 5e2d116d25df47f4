package cache

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/searcher/ranker"
)

type memBackend struct {
	mu   sync.Mutex
	data map[string][]byte
	down bool
}

func newMemBackend() *memBackend {
	return &memBackend{data: make(map[string][]byte)}
}

func (b *memBackend) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return false, errors.New("connection refused")
	}
	raw, ok := b.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (b *memBackend) SetJSON(_ context.Context, key string, v any, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return errors.New("connection refused")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b.data[key] = raw
	return nil
}

func (b *memBackend) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var n int64
	for k := range b.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(b.data, k)
			n++
		}
	}
	return n, nil
}

func (b *memBackend) keys() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

var sample = []ranker.Result{{Rank: 1, DocID: "a", Score: 0.8, URL: "https://example.com/a", Title: "A"}}

func TestBuildKeyNormalisesQuery(t *testing.T) {
	if BuildKey("s1", "Cat, Dog!", 5) != BuildKey("s1", "cat dog", 5) {
		t.Error("punctuation and case should not change the key")
	}
	if BuildKey("s1", "cat", 5) == BuildKey("s1", "cat", 6) {
		t.Error("k must be part of the key")
	}
	if BuildKey("s1", "cat", 5) == BuildKey("s2", "cat", 5) {
		t.Error("snapshot id must be part of the key")
	}
}

func TestGetOrComputeCachesResults(t *testing.T) {
	c := New(newMemBackend(), time.Minute, nil)
	var calls atomic.Int32
	compute := func() ([]ranker.Result, error) {
		calls.Add(1)
		return sample, nil
	}
	got, cached, err := c.GetOrCompute(context.Background(), "s1", "cat", 5, compute)
	if err != nil || cached || len(got) != 1 {
		t.Fatalf("first call: %v %v %v", got, cached, err)
	}
	got, cached, err = c.GetOrCompute(context.Background(), "s1", "CAT", 5, compute)
	if err != nil || !cached || got[0].DocID != "a" || got[0].Score != 0.8 {
		t.Fatalf("second call: %v %v %v", got, cached, err)
	}
	if calls.Load() != 1 {
		t.Errorf("compute ran %d times", calls.Load())
	}
	if hits, misses := c.Stats(); hits != 1 || misses != 1 {
		t.Errorf("hits=%d misses=%d", hits, misses)
	}
}

func TestComputeErrorIsNotCached(t *testing.T) {
	backend := newMemBackend()
	c := New(backend, time.Minute, nil)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), "s1", "cat", 5, func() ([]ranker.Result, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if backend.keys() != 0 {
		t.Error("failed computation was cached")
	}
}

func TestBackendOutageFallsBackToCompute(t *testing.T) {
	backend := newMemBackend()
	backend.down = true
	c := New(backend, time.Minute, nil)
	for i := 0; i < 10; i++ {
		got, cached, err := c.GetOrCompute(context.Background(), "s1", "cat", 5, func() ([]ranker.Result, error) { return sample, nil })
		if err != nil || cached || len(got) != 1 {
			t.Fatalf("call %d: %v %v %v", i, got, cached, err)
		}
	}
}

func TestInvalidateBySnapshot(t *testing.T) {
	backend := newMemBackend()
	c := New(backend, time.Minute, nil)
	ctx := context.Background()
	c.Set(ctx, "old", "cat", 5, sample)
	c.Set(ctx, "old", "dog", 5, sample)
	c.Set(ctx, "new", "cat", 5, sample)

	if err := c.Invalidate(ctx, "old"); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get(ctx, "old", "cat", 5); ok {
		t.Error("old entry survived invalidation")
	}
	if _, ok := c.Get(ctx, "new", "cat", 5); !ok {
		t.Error("entry for another snapshot was dropped")
	}
	if err := c.Invalidate(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if backend.keys() != 0 {
		t.Errorf("%d keys left after full invalidation", backend.keys())
	}
}
