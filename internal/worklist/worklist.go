// Package worklist loads the panoramas a run should acquire.
package worklist

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/withObsrvr/obsrvr-pano-scraper/internal/panorama"
)

// ErrNoIDColumn is returned when a CSV work list has no id column.
var ErrNoIDColumn = errors.New("worklist: no panorama id column")

// Column aliases accepted in CSV headers and JSON objects.
var (
	idColumns     = []string{"pano_id", "panorama_id", "gsv_panorama_id", "panoid", "id"}
	widthColumns  = []string{"width", "image_width"}
	heightColumns = []string{"height", "image_height"}
	zoomColumns   = []string{"zoom", "num_zoom_levels"}
)

// LoadFile reads a CSV or JSON work list. A trailing .zst extension marks a
// zstd-compressed file.
func LoadFile(path string) ([]panorama.Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open work list: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	name := strings.ToLower(path)
	if strings.HasSuffix(name, ".zst") {
		dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer dec.Close()
		r = dec
		name = strings.TrimSuffix(name, ".zst")
	}

	switch filepath.Ext(name) {
	case ".json":
		return ReadJSON(r)
	case ".csv", ".txt", "":
		return ReadCSV(r)
	default:
		return nil, fmt.Errorf("unsupported work list format: %s", filepath.Ext(name))
	}
}

// ReadCSV parses a header-driven CSV work list. A file whose first row is
// not a known header is read as one panorama id per line.
func ReadCSV(r io.Reader) ([]panorama.Spec, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read work list header: %w", err)
	}

	cols := indexColumns(header)
	var specs []panorama.Spec
	if cols.id < 0 {
		if len(header) > 1 {
			return nil, ErrNoIDColumn
		}
		// Bare id list without a header.
		cols = columns{id: 0, width: -1, height: -1, zoom: -1}
		if spec, ok := cols.spec(header); ok {
			specs = append(specs, spec)
		}
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read work list line %d: %w", line, err)
		}
		if spec, ok := cols.spec(rec); ok {
			specs = append(specs, spec)
		}
	}
	return specs, nil
}

type columns struct {
	id, width, height, zoom int
}

func indexColumns(header []string) columns {
	find := func(names []string) int {
		for i, h := range header {
			h = strings.ToLower(strings.TrimSpace(h))
			for _, n := range names {
				if h == n {
					return i
				}
			}
		}
		return -1
	}
	return columns{
		id:     find(idColumns),
		width:  find(widthColumns),
		height: find(heightColumns),
		zoom:   find(zoomColumns),
	}
}

func (c columns) spec(rec []string) (panorama.Spec, bool) {
	field := func(i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	id := field(c.id)
	if id == "" {
		return panorama.Spec{}, false
	}
	width, _ := strconv.Atoi(field(c.width))
	height, _ := strconv.Atoi(field(c.height))
	zoom, _ := strconv.Atoi(field(c.zoom))
	return newSpec(id, width, height, zoom), true
}

// jsonEntry accepts both the flag-panos export and plain id/width/height
// objects.
type jsonEntry struct {
	PanoID        string `json:"pano_id"`
	PanoramaID    string `json:"panorama_id"`
	GSVPanoramaID string `json:"gsv_panorama_id"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	ImageWidth    int    `json:"image_width"`
	ImageHeight   int    `json:"image_height"`
	Zoom          int    `json:"zoom"`
}

func (e jsonEntry) spec() (panorama.Spec, bool) {
	id := strings.TrimSpace(firstNonEmpty(e.GSVPanoramaID, e.PanoID, e.PanoramaID))
	if id == "" {
		return panorama.Spec{}, false
	}
	width := max(e.Width, e.ImageWidth)
	height := max(e.Height, e.ImageHeight)
	return newSpec(id, width, height, e.Zoom), true
}

// ReadJSON parses a JSON array work list. Elements may be objects or bare id
// strings.
func ReadJSON(r io.Reader) ([]panorama.Spec, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode work list: %w", err)
	}

	specs := make([]panorama.Spec, 0, len(raw))
	for i, msg := range raw {
		msg = bytes.TrimSpace(msg)
		if len(msg) > 0 && msg[0] == '"' {
			var id string
			if err := json.Unmarshal(msg, &id); err != nil {
				return nil, fmt.Errorf("decode work list element %d: %w", i, err)
			}
			if id = strings.TrimSpace(id); id != "" {
				specs = append(specs, newSpec(id, 0, 0, 0))
			}
			continue
		}

		var e jsonEntry
		if err := json.Unmarshal(msg, &e); err != nil {
			return nil, fmt.Errorf("decode work list element %d: %w", i, err)
		}
		if spec, ok := e.spec(); ok {
			specs = append(specs, spec)
		}
	}
	return specs, nil
}

func newSpec(id string, width, height, zoom int) panorama.Spec {
	spec := panorama.Spec{ID: panorama.ID(id), Width: width, Height: height}
	if zoom > 0 {
		spec.Descriptor = &panorama.Descriptor{Zoom: zoom, Width: width, Height: height}
	}
	return spec
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Dedupe drops repeated ids, keeping the first occurrence.
func Dedupe(specs []panorama.Spec) []panorama.Spec {
	seen := make(map[panorama.ID]struct{}, len(specs))
	out := specs[:0:0]
	for _, s := range specs {
		if _, ok := seen[s.ID]; ok {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Shuffle randomizes the order of specs in place.
func Shuffle(specs []panorama.Spec, rng *rand.Rand) {
	shuffle := rand.Shuffle
	if rng != nil {
		shuffle = rng.Shuffle
	}
	shuffle(len(specs), func(i, j int) {
		specs[i], specs[j] = specs[j], specs[i]
	})
}

// Source produces a work list.
type Source interface {
	Load(ctx context.Context) ([]panorama.Spec, error)
}

// FileSource loads a work list from disk.
type FileSource struct {
	Path string
}

// Load reads the file.
func (s FileSource) Load(ctx context.Context) ([]panorama.Spec, error) {
	return LoadFile(s.Path)
}
