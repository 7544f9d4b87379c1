package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func openers() map[string]func(path string) (Ledger, error) {
	return map[string]func(string) (Ledger, error){
		"csv":    func(p string) (Ledger, error) { return OpenCSV(p + ".csv") },
		"sqlite": func(p string) (Ledger, error) { return OpenSQLite(p + ".db") },
	}
}

func TestLedgerMarkAndReload(t *testing.T) {
	for name, open := range openers() {
		t.Run(name, func(t *testing.T) {
			base := filepath.Join(t.TempDir(), "ledger")
			ctx := context.Background()

			l, err := open(base)
			if err != nil {
				t.Fatalf("open failed: %v", err)
			}

			if err := l.Mark(ctx, "abc123", true); err != nil {
				t.Fatalf("Mark failed: %v", err)
			}
			if err := l.Mark(ctx, "def456", false); err != nil {
				t.Fatalf("Mark failed: %v", err)
			}

			if !Downloaded(l, "abc123") {
				t.Error("abc123 should be downloaded")
			}
			if Downloaded(l, "def456") || !Contains(l, "def456") {
				t.Error("def456 should be recorded as failed")
			}
			if Contains(l, "ghi789") {
				t.Error("ghi789 should have no entry")
			}

			if err := l.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			reopened, err := open(base)
			if err != nil {
				t.Fatalf("reopen failed: %v", err)
			}
			defer reopened.Close()

			set, err := reopened.Load(ctx)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if _, ok := set["abc123"]; !ok || len(set) != 1 {
				t.Errorf("Load = %v, want {abc123}", set)
			}

			entries := reopened.Entries()
			if len(entries) != 2 || entries[0].PanoramaID != "abc123" || entries[1].PanoramaID != "def456" {
				t.Errorf("unexpected entries %+v", entries)
			}
		})
	}
}

func TestLedgerSingleRowPerID(t *testing.T) {
	for name, open := range openers() {
		t.Run(name, func(t *testing.T) {
			base := filepath.Join(t.TempDir(), "ledger")
			ctx := context.Background()

			l, err := open(base)
			if err != nil {
				t.Fatalf("open failed: %v", err)
			}

			// failure, retry success, then a redundant success
			for _, downloaded := range []bool{false, true, true} {
				if err := l.Mark(ctx, "abc123", downloaded); err != nil {
					t.Fatalf("Mark failed: %v", err)
				}
			}
			if err := l.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			reopened, err := open(base)
			if err != nil {
				t.Fatalf("reopen failed: %v", err)
			}
			defer reopened.Close()

			entries := reopened.Entries()
			if len(entries) != 1 {
				t.Fatalf("expected 1 entry, got %d: %+v", len(entries), entries)
			}
			if !entries[0].Downloaded {
				t.Error("entry should reflect the latest outcome")
			}
		})
	}
}

func TestLedgerExclusiveLock(t *testing.T) {
	for name, open := range openers() {
		t.Run(name, func(t *testing.T) {
			base := filepath.Join(t.TempDir(), "ledger")

			first, err := open(base)
			if err != nil {
				t.Fatalf("open failed: %v", err)
			}

			if _, err := open(base); !errors.Is(err, ErrLocked) {
				t.Errorf("expected ErrLocked, got %v", err)
			}

			if err := first.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			second, err := open(base)
			if err != nil {
				t.Fatalf("open after close failed: %v", err)
			}
			second.Close()
		})
	}
}

func TestCSVLedgerFileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pano-downloaded.csv")
	ctx := context.Background()

	l, err := OpenCSV(path)
	if err != nil {
		t.Fatalf("OpenCSV failed: %v", err)
	}
	l.Mark(ctx, "abc123", false)
	l.Mark(ctx, "def456", true)
	l.Mark(ctx, "abc123", true)
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	want := "panorama_id,downloaded\nabc123,1\ndef456,1\n"
	if string(data) != want {
		t.Errorf("ledger file = %q, want %q", data, want)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should not remain after rewrite")
	}
}

func TestCSVLedgerReadsLegacyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pano-downloaded.csv")
	legacy := "Panorama_ID, Downloaded\nabc123,0\nabc123,1\ndef456,0\n\n"
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	l, err := OpenCSV(path)
	if err != nil {
		t.Fatalf("OpenCSV failed: %v", err)
	}
	defer l.Close()

	if !Downloaded(l, "abc123") {
		t.Error("last row should win for duplicated ids")
	}
	if len(l.Entries()) != 2 {
		t.Errorf("expected 2 entries, got %d", len(l.Entries()))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	want := "panorama_id,downloaded\nabc123,1\ndef456,0\n"
	if string(data) != want {
		t.Errorf("legacy file not normalized at open: %q, want %q", data, want)
	}
}

func TestCSVLedgerAppendsAfterUnterminatedRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pano-downloaded.csv")
	if err := os.WriteFile(path, []byte("panorama_id,downloaded\nabc123,1"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	l, err := OpenCSV(path)
	if err != nil {
		t.Fatalf("OpenCSV failed: %v", err)
	}
	if err := l.Mark(context.Background(), "def456", true); err != nil {
		t.Fatalf("Mark failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	want := "panorama_id,downloaded\nabc123,1\ndef456,1\n"
	if string(data) != want {
		t.Errorf("ledger file = %q, want %q", data, want)
	}

	l, err = OpenCSV(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer l.Close()
	if !Downloaded(l, "abc123") || !Downloaded(l, "def456") {
		t.Errorf("unexpected entries after reopen: %+v", l.Entries())
	}
}

func TestCSVLedgerLeavesCanonicalFileUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pano-downloaded.csv")
	body := "panorama_id,downloaded\nabc123,1\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	before, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}

	l, err := OpenCSV(path)
	if err != nil {
		t.Fatalf("OpenCSV failed: %v", err)
	}
	defer l.Close()

	after, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if !os.SameFile(before, after) {
		t.Error("canonical ledger should not be rewritten at open")
	}
}

func TestCSVLedgerRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pano-downloaded.csv")
	if err := os.WriteFile(path, []byte("panorama_id,downloaded\nabc123,maybe\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	_, err := OpenCSV(path)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}

	// A failed open must not keep the lock
	if err := os.WriteFile(path, []byte("panorama_id,downloaded\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	l, err := OpenCSV(path)
	if err != nil {
		t.Fatalf("OpenCSV after fix failed: %v", err)
	}
	l.Close()
}

func TestOpenInfersBackend(t *testing.T) {
	dir := t.TempDir()

	l, err := Open(Config{Path: filepath.Join(dir, "ledger.db")})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, ok := l.(*SQLiteLedger); !ok {
		t.Errorf("expected sqlite ledger for .db, got %T", l)
	}
	l.Close()

	l, err = Open(Config{Path: filepath.Join(dir, "ledger.csv")})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, ok := l.(*CSVLedger); !ok {
		t.Errorf("expected csv ledger, got %T", l)
	}
	l.Close()

	if _, err := Open(Config{}); err == nil || !strings.Contains(err.Error(), "path") {
		t.Errorf("expected missing path error, got %v", err)
	}
}
