package manifest

import (
	"strings"
	"testing"
	"time"
)

func TestEncodeDecode(t *testing.T) {
	finished := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	c := NewCollector("run-1")
	c.Add(Record{
		PanoramaID: "abc123",
		Outcome:    "fallback_success",
		Zoom:       3,
		Width:      1024,
		Height:     1024,
		Tiles:      4,
		Key:        "ab/abc123.jpg",
		Bytes:      2048,
		Checksum:   ComputeChecksum([]byte("jpeg")),
		FinishedAt: finished,
	})
	c.Add(Record{PanoramaID: "def456", Outcome: "failure", Error: "no usable zoom", FinishedAt: finished})

	data, err := Encode(c.Records())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	records, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	first := records[0]
	if first.RunID != "run-1" || first.PanoramaID != "abc123" || first.Zoom != 3 || first.Tiles != 4 {
		t.Errorf("unexpected first record %+v", first)
	}
	if !first.FinishedAt.Equal(finished) {
		t.Errorf("finished_at = %v, want %v", first.FinishedAt, finished)
	}
	if records[1].Error != "no usable zoom" {
		t.Errorf("unexpected second record %+v", records[1])
	}
}

func TestKeyAndChecksum(t *testing.T) {
	if got := Key("0193"); got != "_manifests/run-0193.parquet" {
		t.Errorf("Key = %s", got)
	}

	sum := ComputeChecksum([]byte("hello"))
	if !strings.HasPrefix(sum, "sha256:") || len(sum) != len("sha256:")+64 {
		t.Errorf("unexpected checksum %s", sum)
	}
	if sum != ComputeChecksum([]byte("hello")) {
		t.Error("checksum should be deterministic")
	}
}
