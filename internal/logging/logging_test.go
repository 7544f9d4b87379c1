package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewHandlerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, Config{Format: "json", Level: "warn"}))

	logger.Info("dropped")
	logger.Warn("kept", "panorama_id", "abc123")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, `"panorama_id":"abc123"`) {
		t.Errorf("expected JSON attribute, got %s", out)
	}
}

func TestSetupLogFile(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	path := filepath.Join(t.TempDir(), "scraper.log")
	closer, err := Setup(Config{Format: "text", Level: "info", File: path})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	ctx := WithCorrelationID(context.Background(), "run-7")
	PanoramaLogger(ctx, "abc123").Info("downloaded")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(data), "correlation_id=run-7") || !strings.Contains(string(data), "panorama_id=abc123") {
		t.Errorf("unexpected log file contents %q", data)
	}
}

func TestCorrelationID(t *testing.T) {
	if CorrelationID(context.Background()) != "" {
		t.Error("empty context should carry no correlation id")
	}
	id := GenerateCorrelationID()
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("correlation id %q is not a uuid: %v", id, err)
	}
	if GenerateCorrelationID() == id {
		t.Error("correlation ids should be unique")
	}
	if got := CorrelationID(WithCorrelationID(context.Background(), id)); got != id {
		t.Errorf("CorrelationID = %q, want %q", got, id)
	}
}

func TestWorkerLoggerCarriesRunAndWorker(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	slog.SetDefault(slog.New(NewHandler(&buf, Config{Format: "json", Level: "debug"})))

	ctx := WithCorrelationID(context.Background(), "run-9")
	WorkerLogger(ctx, 3).Debug("worker started")

	out := buf.String()
	if !strings.Contains(out, `"correlation_id":"run-9"`) || !strings.Contains(out, `"worker_id":3`) {
		t.Errorf("unexpected worker log line %q", out)
	}
}
