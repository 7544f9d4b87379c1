package depth

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/withObsrvr/obsrvr-pano-scraper/internal/storage"
)

// fakeDecoder writes a shell script that copies the XML to the output, and
// fails for files named bad*.xml.
func fakeDecoder(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script decoder requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "decode_depthmap")
	script := `#!/bin/sh
case "$(basename "$1")" in
  bad*) echo "bad depth data" >&2; exit 3 ;;
esac
cp "$1" "$2"
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestRunStore(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	ctx := context.Background()

	for _, id := range []string{"abc123", "bad001", "def456"} {
		if err := store.Write(ctx, storage.DescriptorKey(id), []byte("<panorama/>")); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	// Already decoded
	if err := store.Write(ctx, storage.DepthKey("def456"), []byte("existing")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	r := NewRunner(fakeDecoder(t), 10*time.Second)
	sum, err := r.RunStore(ctx, store)
	if err != nil {
		t.Fatalf("RunStore failed: %v", err)
	}
	if sum != (Summary{Generated: 1, Skipped: 1, Failed: 1}) {
		t.Errorf("unexpected summary %+v", sum)
	}

	info, err := os.Stat(store.LocalPath(storage.DepthKey("abc123")))
	if err != nil {
		t.Fatalf("depth file missing: %v", err)
	}
	if info.Mode().Perm() != storage.FileMode {
		t.Errorf("depth file mode = %v", info.Mode().Perm())
	}

	if _, err := os.Stat(store.LocalPath(storage.DepthKey("bad001"))); !os.IsNotExist(err) {
		t.Error("failed decode must not leave an output file")
	}

	existing, _ := store.Read(ctx, storage.DepthKey("def456"))
	if string(existing) != "existing" {
		t.Error("existing depth file must not be regenerated")
	}
}

func TestDecodeMissingBinary(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner(filepath.Join(dir, "does-not-exist"), time.Second)

	err := r.Decode(context.Background(), filepath.Join(dir, "a.xml"), filepath.Join(dir, "a.depth.txt"))
	if err == nil {
		t.Fatal("expected error for missing decoder")
	}
}
