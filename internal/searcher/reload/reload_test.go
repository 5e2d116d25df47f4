package reload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/vsm"
	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/resilience"
)

// build indexes a small corpus into dataDir and returns the new snapshot id.
func build(t *testing.T, dataDir string, words ...string) string {
	t.Helper()
	htmlDir := t.TempDir()
	for i, w := range words {
		body := fmt.Sprintf("<!-- URL: https://example.com/%d --><html><title>T%d</title><body>%s</body></html>", i, i, w)
		if err := os.WriteFile(filepath.Join(htmlDir, fmt.Sprintf("d%d.html", i)), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}
	opts := indexer.Options{
		HTMLDir:    htmlDir,
		Workers:    2,
		DocTimeout: 5 * time.Second,
		Vectorizer: vsm.Config{MaxFeatures: 100, MinDF: 1, MaxDF: 1.0, NgramMin: 1, NgramMax: 1},
	}
	stats, err := indexer.NewBuilder(opts, snapshot.NewStore(dataDir, 3)).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return stats.SnapshotID
}

type recordingInvalidator struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return nil
}

func TestReloadWithoutSnapshot(t *testing.T) {
	r := New(snapshot.NewStore(t.TempDir(), 3))
	if _, _, err := r.Reload(context.Background(), "test"); !errors.Is(err, apperrors.ErrIndexNotLoaded) {
		t.Errorf("expected ErrIndexNotLoaded, got %v", err)
	}
}

func TestReloadPublishesAndInvalidates(t *testing.T) {
	dir := t.TempDir()
	first := build(t, dir, "alpha beta", "beta gamma")

	store := snapshot.NewStore(dir, 3)
	inv := &recordingInvalidator{}
	r := New(store).WithInvalidator(inv)

	snap, changed, err := r.Reload(context.Background(), "startup")
	if err != nil || !changed || snap.ID != first {
		t.Fatalf("first reload: %v %v %v", snap, changed, err)
	}
	if _, changed, _ := r.Reload(context.Background(), "again"); changed {
		t.Error("reloading the same snapshot reported a change")
	}
	if len(inv.ids) != 0 {
		t.Errorf("nothing should be invalidated yet: %v", inv.ids)
	}

	second := build(t, dir, "delta")
	snap, changed, err = r.Reload(context.Background(), "rebuild")
	if err != nil || !changed || snap.ID != second {
		t.Fatalf("second reload: %v %v %v", snap, changed, err)
	}
	cur, _ := store.Current()
	if cur.ID != second {
		t.Errorf("published %s, want %s", cur.ID, second)
	}
	if len(inv.ids) != 1 || inv.ids[0] != first {
		t.Errorf("invalidated %v, want [%s]", inv.ids, first)
	}
}

func TestReloadKeepsSnapshotOnCorruptPointer(t *testing.T) {
	dir := t.TempDir()
	first := build(t, dir, "alpha")
	store := snapshot.NewStore(dir, 3)
	r := New(store)
	if _, _, err := r.Reload(context.Background(), "startup"); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, snapshot.CurrentFile), []byte("snap-missing.dsnp\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := r.Reload(context.Background(), "broken"); err == nil {
		t.Fatal("expected an error for a dangling pointer")
	}
	cur, err := store.Current()
	if err != nil || cur.ID != first {
		t.Errorf("published snapshot changed after failed reload: %v %v", cur, err)
	}
}

func TestHandleMessage(t *testing.T) {
	dir := t.TempDir()
	id := build(t, dir, "alpha")
	store := snapshot.NewStore(dir, 3)
	handle := HandleMessage(New(store), fastRetry)
	ctx := context.Background()

	if err := handle(ctx, kafka.Message{Type: "something.else", Value: []byte("{}")}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Current(); err == nil {
		t.Fatal("unrelated event triggered a reload")
	}
	if err := handle(ctx, kafka.Message{Type: proto.EventIndexComplete, Value: []byte("not json")}); err != nil {
		t.Errorf("undecodable events should be dropped, got %v", err)
	}

	body, _ := json.Marshal(proto.IndexComplete{SnapshotID: id})
	if err := handle(ctx, kafka.Message{Type: proto.EventIndexComplete, Key: []byte(id), Value: body}); err != nil {
		t.Fatal(err)
	}
	cur, err := store.Current()
	if err != nil || cur.ID != id {
		t.Errorf("current = %v, %v", cur, err)
	}

	empty := HandleMessage(New(snapshot.NewStore(t.TempDir(), 3)), fastRetry)
	if err := empty(ctx, kafka.Message{Type: proto.EventIndexComplete, Value: body}); !errors.Is(err, apperrors.ErrIndexNotLoaded) {
		t.Errorf("expected ErrIndexNotLoaded once retries run out, got %v", err)
	}
}

var fastRetry = resilience.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

func TestHandleMessageRetriesUntilSnapshotLands(t *testing.T) {
	built := t.TempDir()
	id := build(t, built, "alpha")
	files, err := os.ReadDir(built)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	store := snapshot.NewStore(dir, 3)
	handle := HandleMessage(New(store), resilience.RetryConfig{
		MaxAttempts:  100,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
	})

	// The event arrives before the snapshot is visible in dir.
	go func() {
		time.Sleep(50 * time.Millisecond)
		for _, f := range files {
			if f.Name() == snapshot.CurrentFile {
				continue
			}
			data, err := os.ReadFile(filepath.Join(built, f.Name()))
			if err != nil {
				t.Error(err)
				return
			}
			if err := os.WriteFile(filepath.Join(dir, f.Name()), data, 0644); err != nil {
				t.Error(err)
				return
			}
		}
		data, err := os.ReadFile(filepath.Join(built, snapshot.CurrentFile))
		if err != nil {
			t.Error(err)
			return
		}
		if err := os.WriteFile(filepath.Join(dir, snapshot.CurrentFile), data, 0644); err != nil {
			t.Error(err)
		}
	}()

	body, _ := json.Marshal(proto.IndexComplete{SnapshotID: id})
	if err := handle(context.Background(), kafka.Message{Type: proto.EventIndexComplete, Value: body}); err != nil {
		t.Fatalf("handler error = %v, want the reload to succeed on a later attempt", err)
	}
	cur, err := store.Current()
	if err != nil || cur.ID != id {
		t.Errorf("current = %v, %v; want %s", cur, err, id)
	}
}

func TestWatcherDebouncesPointerChanges(t *testing.T) {
	dir := t.TempDir()
	fired := make(chan struct{}, 10)
	w := NewWatcher(dir, 50*time.Millisecond, func() { fired <- struct{}{} })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// unrelated files are ignored
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(filepath.Join(dir, snapshot.CurrentFile), []byte(fmt.Sprintf("snap-%d.dsnp\n", i)), 0644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never fired")
	}
	select {
	case <-fired:
		t.Error("burst of writes fired more than once")
	case <-time.After(200 * time.Millisecond):
	}
}
