package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/withObsrvr/obsrvr-pano-scraper/internal/acquirer"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/testutil"
)

type cliTestEnv struct {
	srv        *testutil.TileServer
	baseDir    string
	configPath string
	worklist   string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	srv := testutil.NewTileServer(t)

	configPath := filepath.Join(base, "config.yaml")
	config := fmt.Sprintf(`provider:
  tile_url: %q
  metadata_url: %q
storage:
  backend: local
  local_dir: %q
ledger:
  path: %q
fetch:
  retry_attempts: 2
  retry_backoff: 1ms
  retry_max_backoff: 5ms
resolver:
  default_width: 1024
  default_height: 512
output:
  manifest: false
logging:
  level: error
depth:
  binary: ""
worklist:
  shuffle: false
`, srv.BaseURL(), srv.URL+"/meta?panoid=", filepath.Join(base, "panos"), filepath.Join(base, "ledger.csv"))
	if err := os.WriteFile(configPath, []byte(config), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	worklist := filepath.Join(base, "worklist.csv")
	body := "pano_id,width,height\nabc123,1024,1024\ndef456,1024,512\n"
	if err := os.WriteFile(worklist, []byte(body), 0o644); err != nil {
		t.Fatalf("write worklist: %v", err)
	}

	return &cliTestEnv{srv: srv, baseDir: base, configPath: configPath, worklist: worklist}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestImagesCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	env.srv.SetBlankZoom(5)

	out, err := env.run(t, "images", "--worklist", env.worklist, "--workers", "2")
	if err != nil {
		t.Fatalf("images failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "fallback_success") || !strings.Contains(out, "Panoramas (2/2") {
		t.Errorf("unexpected summary output:\n%s", out)
	}
	for _, p := range []string{"ab/abc123.jpg", "de/def456.jpg"} {
		if _, err := os.Stat(filepath.Join(env.baseDir, "panos", p)); err != nil {
			t.Errorf("expected output %s: %v", p, err)
		}
	}

	out, err = env.run(t, "ledger", "status")
	if err != nil {
		t.Fatalf("ledger status failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Ledger status") || !strings.Contains(out, "downloaded") {
		t.Errorf("unexpected status output:\n%s", out)
	}
}

func TestImagesCommandRequiresWorklist(t *testing.T) {
	env := setupCLITestEnv(t)

	_, err := env.run(t, "images")
	if err == nil || !strings.Contains(err.Error(), "no work list") {
		t.Fatalf("expected missing work list error, got %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out.String(), "pano-scraper "+Version) {
		t.Errorf("unexpected version output %q", out.String())
	}
}

func TestRenderSummary(t *testing.T) {
	out := renderSummary(acquirer.Summary{Total: 4, Success: 2, FallbackSuccess: 1, Failure: 1})
	for _, want := range []string{"success", "fallback_success", "failure", "skipped", "Panoramas (4/4"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestLedgerStatusVerbose(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.MkdirAll(filepath.Join(env.baseDir, "panos", "zz"), 0o775); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(env.baseDir, "panos", "zz", "zz9999.jpg"), []byte("jpeg"), 0o664); err != nil {
		t.Fatalf("write image: %v", err)
	}

	out, err := env.run(t, "ledger", "status", "--verbose")
	if err != nil {
		t.Fatalf("ledger status failed: %v\n%s", err, out)
	}
	// A buffer is never a terminal, so the state is printed without escapes
	if !strings.Contains(out, "unrecorded_image\tzz9999\n") {
		t.Errorf("expected plain unrecorded line:\n%s", out)
	}
}

func TestPrintStateLineColorized(t *testing.T) {
	var buf bytes.Buffer
	printStateLine(&buf, true, acquirer.StateMissing, "ab1234")
	if !strings.Contains(buf.String(), "\x1b[") || !strings.HasSuffix(buf.String(), "\tab1234\n") {
		t.Errorf("unexpected colorized line %q", buf.String())
	}
}
