package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var csvHeader = []string{"panorama_id", "downloaded"}

// CSVLedger keeps the ledger as a two-column CSV table. New ids are appended
// and synced; changing an existing row rewrites the table atomically.
type CSVLedger struct {
	*table
	path string
	f    *os.File
}

// OpenCSV opens or creates a CSV ledger at path.
func OpenCSV(path string) (*CSVLedger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory %s: %w", dir, err)
		}
	}

	l := &CSVLedger{table: newTable(), path: path}
	if err := l.acquire(path); err != nil {
		return nil, err
	}

	if err := l.read(); err != nil {
		l.release()
		return nil, err
	}
	if err := l.openAppend(); err != nil {
		l.release()
		return nil, err
	}
	return l, nil
}

// read loads the table from disk. A file that is not in canonical form
// (legacy header, repeated ids, blank lines or a missing final newline) is
// rewritten so appends always start on a fresh row.
func (l *CSVLedger) read() error {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return l.rewrite()
	}
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return l.rewrite()
	}
	if err != nil {
		return fmt.Errorf("%w: read header: %w", ErrCorrupt, err)
	}
	if len(header) < 2 || !strings.EqualFold(strings.TrimSpace(header[0]), csvHeader[0]) {
		return fmt.Errorf("%w: unexpected header %v", ErrCorrupt, header)
	}

	ts := now()
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: line %d: %w", ErrCorrupt, line, err)
		}
		if len(rec) < 2 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		downloaded, err := parseFlag(rec[1])
		if err != nil {
			return fmt.Errorf("%w: line %d: %w", ErrCorrupt, line, err)
		}
		// Older ledgers may repeat an id; the last row wins.
		l.set(Entry{PanoramaID: strings.TrimSpace(rec[0]), Downloaded: downloaded, UpdatedAt: ts})
	}

	canonical, err := l.encode()
	if err != nil {
		return err
	}
	if !bytes.Equal(data, canonical) {
		return l.rewrite()
	}
	return nil
}

func parseFlag(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true":
		return true, nil
	case "0", "false", "":
		return false, nil
	default:
		return false, fmt.Errorf("invalid downloaded flag %q", s)
	}
}

func formatFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (l *CSVLedger) openAppend() error {
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger for append: %w", err)
	}
	l.f = f
	return nil
}

// encode renders the table in canonical form: the header, then one row per
// id in first-recorded order.
func (l *CSVLedger) encode() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write(csvHeader)
	for _, e := range l.entriesLocked() {
		w.Write([]string{e.PanoramaID, formatFlag(e.Downloaded)})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode ledger: %w", err)
	}
	return buf.Bytes(), nil
}

// rewrite replaces the ledger file with the current table via temp file +
// rename.
func (l *CSVLedger) rewrite() error {
	data, err := l.encode()
	if err != nil {
		return err
	}

	tempPath := l.path + ".tmp"
	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create ledger temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("write ledger temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("sync ledger temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("close ledger temp file: %w", err)
	}

	if err := os.Rename(tempPath, l.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename ledger file: %w", err)
	}
	return nil
}

// Mark records the outcome for id.
func (l *CSVLedger) Mark(ctx context.Context, id string, downloaded bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return fmt.Errorf("ledger closed")
	}

	prev, existed := l.rows[id]
	added, changed := l.set(Entry{PanoramaID: id, Downloaded: downloaded, UpdatedAt: now()})
	switch {
	case added:
		if err := l.append(id, downloaded); err != nil {
			l.undo(id, prev, existed)
			return err
		}
	case changed:
		if err := l.f.Close(); err != nil {
			return fmt.Errorf("close ledger: %w", err)
		}
		l.f = nil
		if err := l.rewrite(); err != nil {
			l.undo(id, prev, existed)
			l.openAppend()
			return err
		}
		if err := l.openAppend(); err != nil {
			return err
		}
	}
	return nil
}

func (l *CSVLedger) append(id string, downloaded bool) error {
	w := csv.NewWriter(l.f)
	w.Write([]string{id, formatFlag(downloaded)})
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("append ledger row: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("sync ledger: %w", err)
	}
	return nil
}

func (l *CSVLedger) undo(id string, prev Entry, existed bool) {
	if existed {
		l.rows[id] = prev
		return
	}
	delete(l.rows, id)
	l.order = l.order[:len(l.order)-1]
}

// Lookup returns the recorded state of id.
func (l *CSVLedger) Lookup(id string) (bool, bool) {
	return l.lookup(id)
}

// Load returns the set of ids recorded as downloaded.
func (l *CSVLedger) Load(ctx context.Context) (map[string]struct{}, error) {
	return l.downloadedSet(), nil
}

// Entries returns every entry in first-recorded order.
func (l *CSVLedger) Entries() []Entry {
	return l.entries()
}

// Path returns the ledger file path.
func (l *CSVLedger) Path() string {
	return l.path
}

// Close closes the ledger file and releases the lock.
func (l *CSVLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var err error
	if l.f != nil {
		err = l.f.Close()
		l.f = nil
	}
	if unlockErr := l.release(); unlockErr != nil && err == nil {
		err = unlockErr
	}
	return err
}

var _ Ledger = (*CSVLedger)(nil)
