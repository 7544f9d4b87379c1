package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger (
	panorama_id TEXT PRIMARY KEY,
	downloaded  INTEGER NOT NULL,
	updated_at  TEXT NOT NULL
)`

// SQLiteLedger keeps the ledger in a SQLite table, one upserted row per id.
type SQLiteLedger struct {
	*table
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates a SQLite ledger at path.
func OpenSQLite(path string) (*SQLiteLedger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory %s: %w", dir, err)
		}
	}

	l := &SQLiteLedger{table: newTable(), path: path}
	if err := l.acquire(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		l.release()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			l.release()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	l.db = db

	ctx := context.Background()
	if err := l.initSchema(ctx); err != nil {
		l.Close()
		return nil, err
	}
	if err := l.read(ctx); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLedger) initSchema(ctx context.Context) error {
	if err := l.execWithRetry(ctx, schema); err != nil {
		return fmt.Errorf("create ledger schema: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) read(ctx context.Context) error {
	rows, err := l.db.QueryContext(ctx,
		`SELECT panorama_id, downloaded, updated_at FROM ledger ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e          Entry
			downloaded int
			updatedAt  string
		)
		if err := rows.Scan(&e.PanoramaID, &downloaded, &updatedAt); err != nil {
			return fmt.Errorf("%w: scan row: %w", ErrCorrupt, err)
		}
		e.Downloaded = downloaded != 0
		e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		l.set(e)
	}
	return rows.Err()
}

// Mark upserts the outcome for id.
func (l *SQLiteLedger) Mark(ctx context.Context, id string, downloaded bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return fmt.Errorf("ledger closed")
	}

	e := Entry{PanoramaID: id, Downloaded: downloaded, UpdatedAt: now()}
	flag := 0
	if downloaded {
		flag = 1
	}
	err := l.execWithRetry(ctx, `
		INSERT INTO ledger (panorama_id, downloaded, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(panorama_id) DO UPDATE SET
			downloaded = excluded.downloaded,
			updated_at = excluded.updated_at`,
		id, flag, e.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert ledger row %s: %w", id, err)
	}
	l.set(e)
	return nil
}

func (l *SQLiteLedger) execWithRetry(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := l.db.ExecContext(ctx, query, args...)
		return err
	})
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// Lookup returns the recorded state of id.
func (l *SQLiteLedger) Lookup(id string) (bool, bool) {
	return l.lookup(id)
}

// Load returns the set of ids recorded as downloaded.
func (l *SQLiteLedger) Load(ctx context.Context) (map[string]struct{}, error) {
	return l.downloadedSet(), nil
}

// Entries returns every entry in first-recorded order.
func (l *SQLiteLedger) Entries() []Entry {
	return l.entries()
}

// Path returns the database path.
func (l *SQLiteLedger) Path() string {
	return l.path
}

// Close closes the database and releases the lock.
func (l *SQLiteLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var err error
	if l.db != nil {
		err = l.db.Close()
		l.db = nil
	}
	if unlockErr := l.release(); unlockErr != nil && err == nil {
		err = unlockErr
	}
	return err
}

var _ Ledger = (*SQLiteLedger)(nil)
