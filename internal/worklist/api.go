package worklist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/withObsrvr/obsrvr-pano-scraper/internal/panorama"
)

// LabelsPath is the labels API endpoint listing every labeled panorama.
const LabelsPath = "/adminapi/labels/panoid"

// Getter fetches a URL, retrying transient failures.
type Getter interface {
	FetchAs(ctx context.Context, url string, accept ...string) ([]byte, error)
}

// APISource loads panorama ids from a labeling server's labels API.
type APISource struct {
	// Host is the server's host name or base URL.
	Host   string
	Client Getter
}

type labelCollection struct {
	Features []struct {
		Properties struct {
			PanoramaID string `json:"gsv_panorama_id"`
		} `json:"properties"`
	} `json:"features"`
}

// URL returns the labels endpoint for the configured host.
func (s APISource) URL() string {
	base := strings.TrimSuffix(s.Host, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	return base + LabelsPath
}

// Load fetches the label collection and returns each labeled panorama once,
// in first-seen order. Labels with an empty panorama id are skipped.
func (s APISource) Load(ctx context.Context) ([]panorama.Spec, error) {
	endpoint := s.URL()
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("parse labels url: %w", err)
	}

	body, err := s.Client.FetchAs(ctx, endpoint, "application/json", "text/json", "text/plain")
	if err != nil {
		return nil, fmt.Errorf("fetch labels: %w", err)
	}

	var labels labelCollection
	if err := json.Unmarshal(body, &labels); err != nil {
		return nil, fmt.Errorf("decode labels: %w", err)
	}

	var (
		specs []panorama.Spec
		empty int
	)
	for _, f := range labels.Features {
		id := strings.TrimSpace(f.Properties.PanoramaID)
		if id == "" {
			empty++
			continue
		}
		specs = append(specs, panorama.Spec{ID: panorama.ID(id)})
	}
	if empty > 0 {
		slog.Warn("labels without panorama id skipped", "component", "worklist", "count", empty)
	}
	return Dedupe(specs), nil
}
