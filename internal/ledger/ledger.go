// Package ledger records which panoramas have been downloaded so repeated
// runs skip completed work.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrLocked is returned when another process holds the ledger.
	ErrLocked = errors.New("ledger: locked by another process")

	// ErrCorrupt is returned when the ledger file cannot be parsed.
	ErrCorrupt = errors.New("ledger: corrupt ledger file")
)

// Entry is one ledger row.
type Entry struct {
	PanoramaID string
	Downloaded bool
	UpdatedAt  time.Time
}

// Ledger is a durable per-panorama download record. At most one entry exists
// per id. Implementations are safe for concurrent use within a process and
// hold an exclusive lock against other processes until closed.
type Ledger interface {
	// Mark records whether id was downloaded, replacing any earlier entry.
	Mark(ctx context.Context, id string, downloaded bool) error

	// Lookup returns the recorded state of id and whether it has an entry.
	Lookup(id string) (downloaded, ok bool)

	// Load returns the set of ids recorded as downloaded.
	Load(ctx context.Context) (map[string]struct{}, error)

	// Entries returns every entry in first-recorded order.
	Entries() []Entry

	// Path returns the ledger's location on disk.
	Path() string

	// Close flushes and releases the ledger.
	Close() error
}

// Backends.
const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
)

// Config configures the ledger.
type Config struct {
	Backend string `yaml:"backend"` // "csv" | "sqlite"; inferred from Path when empty
	Path    string `yaml:"path"`
}

// Open opens or creates the ledger described by cfg.
func Open(cfg Config) (Ledger, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("ledger path required")
	}

	backend := cfg.Backend
	if backend == "" {
		backend = inferBackend(cfg.Path)
	}

	switch backend {
	case BackendCSV:
		return OpenCSV(cfg.Path)
	case BackendSQLite:
		return OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown ledger backend: %s", backend)
	}
}

func inferBackend(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return BackendSQLite
	default:
		return BackendCSV
	}
}

// Contains reports whether l has an entry for id.
func Contains(l Ledger, id string) bool {
	_, ok := l.Lookup(id)
	return ok
}

// Downloaded reports whether l records id as downloaded.
func Downloaded(l Ledger, id string) bool {
	downloaded, ok := l.Lookup(id)
	return ok && downloaded
}
