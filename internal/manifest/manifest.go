// Package manifest records the per-panorama results of one acquisition run
// as a parquet table stored next to the images.
package manifest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
)

// Prefix is the storage prefix under which run manifests are kept.
const Prefix = "_manifests/"

// SchemaVersion returns the version of the schema.
// Increment this when making breaking changes.
const SchemaVersion = "1.0.0"

// Record is one panorama's row in a run manifest.
type Record struct {
	RunID      string `parquet:"run_id"`
	PanoramaID string `parquet:"panorama_id"`
	Outcome    string `parquet:"outcome"`

	// Resolution
	Zoom         int32 `parquet:"zoom"`
	NativeWidth  int32 `parquet:"native_width"`
	NativeHeight int32 `parquet:"native_height"`
	Width        int32 `parquet:"width"`
	Height       int32 `parquet:"height"`
	Tiles        int32 `parquet:"tiles"`

	// Output
	Key      string `parquet:"key"`
	Bytes    int64  `parquet:"bytes"`
	Checksum string `parquet:"checksum"` // sha256 of the written image

	Error      string    `parquet:"error"`
	DurationMS int64     `parquet:"duration_ms"`
	FinishedAt time.Time `parquet:"finished_at,timestamp(millisecond)"`
}

// Key returns the storage key of a run's manifest.
func Key(runID string) string {
	return fmt.Sprintf("%srun-%s.parquet", Prefix, runID)
}

// Encode writes records as a zstd-compressed parquet file.
func Encode(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[Record](&buf, parquet.Compression(&parquet.Zstd))
	if _, err := w.Write(records); err != nil {
		return nil, fmt.Errorf("write manifest rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close manifest writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reads records back from an encoded manifest.
func Decode(data []byte) ([]Record, error) {
	records, err := parquet.Read[Record](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return records, nil
}

// ComputeChecksum computes a SHA256 checksum for the given data.
func ComputeChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// Collector accumulates records during a run.
type Collector struct {
	mu      sync.Mutex
	runID   string
	records []Record
}

// NewCollector creates a collector for runID.
func NewCollector(runID string) *Collector {
	return &Collector{runID: runID}
}

// Add appends r, stamping it with the run id.
func (c *Collector) Add(r Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r.RunID = c.runID
	c.records = append(c.records, r)
}

// Len returns the number of collected records.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Records returns a copy of the collected records.
func (c *Collector) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Record(nil), c.records...)
}
