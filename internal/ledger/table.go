package ledger

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// table is the in-memory view shared by every backend. Callers hold mu.
type table struct {
	mu    sync.Mutex
	order []string
	rows  map[string]Entry
	lock  *flock.Flock
}

func newTable() *table {
	return &table{rows: make(map[string]Entry)}
}

// acquire takes the cross-process lock file next to path.
func (t *table) acquire(path string) error {
	t.lock = flock.New(path + ".lock")
	ok, err := t.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire ledger lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLocked, filepath.Base(path))
	}
	return nil
}

func (t *table) release() error {
	if t.lock == nil {
		return nil
	}
	return t.lock.Unlock()
}

// set stores e and reports whether id was new and whether its state changed.
func (t *table) set(e Entry) (added, changed bool) {
	prev, ok := t.rows[e.PanoramaID]
	if !ok {
		t.order = append(t.order, e.PanoramaID)
	}
	t.rows[e.PanoramaID] = e
	return !ok, ok && prev.Downloaded != e.Downloaded
}

func (t *table) lookup(id string) (bool, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.rows[id]
	return e.Downloaded, ok
}

func (t *table) downloadedSet() map[string]struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]struct{}, len(t.rows))
	for id, e := range t.rows {
		if e.Downloaded {
			out[id] = struct{}{}
		}
	}
	return out
}

func (t *table) entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entriesLocked()
}

func (t *table) entriesLocked() []Entry {
	out := make([]Entry, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.rows[id])
	}
	return out
}

func now() time.Time {
	return time.Now().UTC()
}
