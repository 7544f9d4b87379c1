package metaxml

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/withObsrvr/obsrvr-pano-scraper/internal/panorama"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/storage"
)

// DefaultURL is the metadata endpoint; the panorama id is appended.
const DefaultURL = "https://maps.google.com/cbk?output=xml&cb_client=maps_sv&hl=en&dm=1&pm=1&ph=1&renderer=cubic,spherical&v=4&panoid="

// Getter fetches a URL, retrying transient failures.
type Getter interface {
	FetchAs(ctx context.Context, url string, accept ...string) ([]byte, error)
}

// Downloader saves each panorama's metadata XML next to its image.
type Downloader struct {
	Client  Getter
	Store   storage.Store
	BaseURL string
	Workers int

	log *slog.Logger
}

// Summary counts metadata download outcomes.
type Summary struct {
	Downloaded int
	Skipped    int
	Failed     int
}

// NewDownloader creates a metadata downloader.
func NewDownloader(client Getter, store storage.Store, baseURL string, workers int) *Downloader {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if workers <= 0 {
		workers = 1
	}
	return &Downloader{
		Client:  client,
		Store:   store,
		BaseURL: baseURL,
		Workers: workers,
		log:     slog.With("component", "metadata_downloader"),
	}
}

// Download fetches the metadata of id unless it is already stored. It
// reports whether a new document was written.
func (d *Downloader) Download(ctx context.Context, id panorama.ID) (bool, error) {
	key := storage.DescriptorKey(string(id))
	exists, err := d.Store.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", key, err)
	}
	if exists {
		return false, nil
	}

	data, err := d.Client.FetchAs(ctx, d.BaseURL+url.QueryEscape(string(id)), "text/xml", "application/xml")
	if err != nil {
		return false, fmt.Errorf("fetch metadata: %w", err)
	}
	if _, err := Parse(data); err != nil {
		return false, err
	}

	if err := d.Store.Write(ctx, key, data); err != nil {
		return false, fmt.Errorf("write %s: %w", key, err)
	}
	return true, nil
}

// DownloadAll downloads metadata for every spec. Individual failures are
// logged and counted; only context cancellation aborts the batch.
func (d *Downloader) DownloadAll(ctx context.Context, specs []panorama.Spec) (Summary, error) {
	var (
		mu  sync.Mutex
		sum Summary
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.Workers)

	for _, spec := range specs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			written, err := d.Download(gctx, spec.ID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
				return err
			case err != nil:
				sum.Failed++
				d.log.Warn("metadata download failed", "panorama_id", spec.ID, "error", err)
			case written:
				sum.Downloaded++
			default:
				sum.Skipped++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return sum, err
	}
	if err := ctx.Err(); err != nil {
		return sum, err
	}

	d.log.Info("metadata download complete",
		"downloaded", sum.Downloaded,
		"skipped", sum.Skipped,
		"failed", sum.Failed,
	)
	return sum, nil
}
