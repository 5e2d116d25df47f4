package snapshot

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
)

const DefaultRetain = 3

// Store owns the snapshot directory and the in-memory handle of the
// published snapshot. Several stores may coexist, each over its own
// directory.
type Store struct {
	dir     string
	retain  int
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex
	logger  *slog.Logger
}

// NewStore returns a store over dir keeping the newest retain snapshot files.
func NewStore(dir string, retain int) *Store {
	if retain < 1 {
		retain = DefaultRetain
	}
	return &Store{
		dir:    dir,
		retain: retain,
		logger: slog.Default().With("component", "snapshot-store", "dir", dir),
	}
}

// NewID returns a fresh snapshot id.
func NewID() string {
	return uuid.NewString()
}

func (s *Store) Dir() string {
	return s.dir
}

// Save writes snap to disk and repoints CURRENT at it. CURRENT is only
// rewritten after the snapshot file is durable, so a failed save leaves the
// previous snapshot as the one to load.
func (s *Store) Save(snap *Snapshot) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := Write(s.dir, snap)
	if err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.dir, CurrentFile), []byte(filepath.Base(path)+"\n")); err != nil {
		return "", fmt.Errorf("updating %s pointer: %w", CurrentFile, err)
	}
	s.logger.Info("snapshot saved",
		"snapshot_id", snap.ID,
		"path", path,
		"docs", len(snap.Docs),
		"features", snap.Model.Size(),
	)
	if err := s.prune(filepath.Base(path)); err != nil {
		s.logger.Warn("pruning old snapshots failed", "error", err)
	}
	return path, nil
}

// CurrentName returns the file name CURRENT points at. It returns
// ErrIndexNotLoaded when nothing has been saved yet.
func (s *Store) CurrentName() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, CurrentFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: no %s pointer in %s", apperrors.ErrIndexNotLoaded, CurrentFile, s.dir)
		}
		return "", fmt.Errorf("reading %s pointer: %w", CurrentFile, err)
	}
	name := strings.TrimSpace(string(data))
	if name == "" || name != filepath.Base(name) || !strings.HasSuffix(name, FileExt) {
		return "", fmt.Errorf("%w: %s pointer holds %q", apperrors.ErrSnapshotCorrupt, CurrentFile, name)
	}
	return name, nil
}

// Load reads the snapshot CURRENT points at without publishing it.
func (s *Store) Load() (*Snapshot, error) {
	name, err := s.CurrentName()
	if err != nil {
		return nil, err
	}
	snap, err := Read(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}
	return snap, nil
}

// Publish makes snap the snapshot returned by Current. Readers holding the
// previous snapshot keep using it until they finish.
func (s *Store) Publish(snap *Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	prev := s.current.Swap(snap)
	attrs := []any{"snapshot_id", snap.ID, "docs", len(snap.Docs)}
	if prev != nil {
		attrs = append(attrs, "previous_id", prev.ID)
	}
	s.logger.Info("snapshot published", attrs...)
	return nil
}

// Current returns the published snapshot or ErrIndexNotLoaded.
func (s *Store) Current() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, apperrors.ErrIndexNotLoaded
	}
	return snap, nil
}

// Reload loads the snapshot CURRENT points at and publishes it. It is a
// no-op when that snapshot is already published. On error the published
// snapshot is left untouched.
func (s *Store) Reload() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, err := s.CurrentName()
	if err != nil {
		return nil, err
	}
	if cur := s.current.Load(); cur != nil && FileName(cur.ID) == name {
		return cur, nil
	}
	snap, err := Read(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}
	if err := s.Publish(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// List returns snapshot file names, newest first.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading snapshot directory: %w", err)
	}
	type file struct {
		name  string
		mtime int64
	}
	files := make([]file, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "snap-") || !strings.HasSuffix(name, FileExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, file{name: name, mtime: info.ModTime().UnixNano()})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].mtime != files[j].mtime {
			return files[i].mtime > files[j].mtime
		}
		return files[i].name > files[j].name
	})
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}
	return names, nil
}

// prune removes snapshot files beyond the retention count, never keep, and
// any .tmp file a killed save left behind. It runs under s.mu after CURRENT
// is rewritten, so no save of this store still owns a .tmp file.
func (s *Store) prune(keep string) error {
	if err := s.removeTemps(); err != nil {
		return err
	}
	names, err := s.List()
	if err != nil {
		return err
	}
	kept := 0
	for _, name := range names {
		if name == keep || kept < s.retain-1 {
			if name != keep {
				kept++
			}
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		s.logger.Debug("pruned snapshot", "file", name)
	}
	return nil
}

func (s *Store) removeTemps() error {
	temps, err := filepath.Glob(filepath.Join(s.dir, "*.tmp"))
	if err != nil {
		return err
	}
	for _, path := range temps {
		name := filepath.Base(path)
		if name != CurrentFile+".tmp" && !strings.HasPrefix(name, "snap-") {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		s.logger.Debug("removed stale temp file", "file", name)
	}
	return nil
}
