package tile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/withObsrvr/obsrvr-pano-scraper/internal/metrics"
)

// ContentTypeJPEG is the content type every tile response must declare.
const ContentTypeJPEG = "image/jpeg"

// Options configures the tile fetcher.
type Options struct {
	// BaseURL is the tile endpoint including its fixed query parameters.
	BaseURL string

	// Timeout for individual requests.
	// Default: 30s
	Timeout time.Duration

	// RetryAttempts is the maximum number of attempts per request,
	// including the first one.
	// Default: 5
	RetryAttempts int

	// RetryBackoff is the initial backoff duration.
	// Default: 500ms
	RetryBackoff time.Duration

	// RetryMaxBackoff is the maximum backoff duration.
	// Default: 30s
	RetryMaxBackoff time.Duration

	// MaxInFlight bounds concurrent tile requests within one grid fetch.
	// Default: 16
	MaxInFlight int

	// ProxyURL routes every request through a forward proxy when set.
	ProxyURL string

	// Headers is the pool of header sets rotated between attempts.
	Headers []map[string]string
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:         30 * time.Second,
		RetryAttempts:   5,
		RetryBackoff:    500 * time.Millisecond,
		RetryMaxBackoff: 30 * time.Second,
		MaxInFlight:     16,
	}
}

// Fetcher retrieves tile bytes over HTTP with retries.
type Fetcher struct {
	client  *http.Client
	opts    Options
	headers *HeaderPool
	log     *slog.Logger
}

// NewFetcher creates a fetcher with the given options.
func NewFetcher(opts Options) (*Fetcher, error) {
	defaults := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = defaults.RetryAttempts
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaults.RetryBackoff
	}
	if opts.RetryMaxBackoff < opts.RetryBackoff {
		opts.RetryMaxBackoff = max(defaults.RetryMaxBackoff, opts.RetryBackoff)
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = defaults.MaxInFlight
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: opts.MaxInFlight,
		MaxIdleConns:        opts.MaxInFlight * 2,
		IdleConnTimeout:     90 * time.Second,
	}
	if opts.ProxyURL != "" {
		proxy, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	return &Fetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		opts:    opts,
		headers: NewHeaderPool(opts.Headers),
		log:     slog.With("component", "tile_fetcher"),
	}, nil
}

// Options returns the effective options after defaults were applied.
func (f *Fetcher) Options() Options {
	return f.opts
}

// Fetch downloads a JPEG tile from url.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f.FetchAs(ctx, url, ContentTypeJPEG)
}

// FetchTile downloads the tile at c for a panorama.
func (f *Fetcher) FetchTile(ctx context.Context, panoID string, c Coordinate) ([]byte, error) {
	data, err := f.Fetch(ctx, URL(f.opts.BaseURL, panoID, c))
	if err != nil {
		return nil, fmt.Errorf("fetch tile %s: %w", c, err)
	}
	return data, nil
}

// FetchAs downloads url, retrying transient failures with exponential
// backoff. The response content type must start with one of accept; an empty
// accept list disables the check.
func (f *Fetcher) FetchAs(ctx context.Context, url string, accept ...string) ([]byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.opts.RetryBackoff
	policy.MaxInterval = f.opts.RetryMaxBackoff
	policy.MaxElapsedTime = 0

	var (
		data      []byte
		attempts  int
		permanent bool
	)
	op := func() error {
		attempts++
		body, err := f.attempt(ctx, url, accept)
		if err != nil {
			var perm *backoff.PermanentError
			permanent = errors.As(err, &perm)
			return err
		}
		data = body
		return nil
	}
	notify := func(err error, wait time.Duration) {
		f.log.Debug("retrying request", "url", url, "attempt", attempts, "wait", wait, "error", err)
		if m := metrics.Get(); m != nil {
			m.IncRetryAttempts("tile_fetch")
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(f.opts.RetryAttempts-1)), ctx)
	err := backoff.RetryNotify(op, b, notify)
	if err == nil {
		return data, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if permanent {
		return nil, err
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, err)
}

// attempt performs a single request.
func (f *Fetcher) attempt(ctx context.Context, url string, accept []string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	f.headers.Apply(req)

	if m := metrics.Get(); m != nil {
		m.AddInFlightTiles(1)
		defer m.AddInFlightTiles(-1)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp.StatusCode, http.StatusText(resp.StatusCode)); err != nil {
		io.Copy(io.Discard, resp.Body)
		return nil, err
	}

	if ct := resp.Header.Get("Content-Type"); !acceptable(ct, accept) {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %q", ErrContentMismatch, ct)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func acceptable(contentType string, accept []string) bool {
	if len(accept) == 0 {
		return true
	}
	ct := strings.ToLower(strings.TrimSpace(contentType))
	for _, prefix := range accept {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}
