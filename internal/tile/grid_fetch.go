package tile

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/withObsrvr/obsrvr-pano-scraper/internal/metrics"
)

// Result is the outcome of fetching one tile.
type Result struct {
	Coordinate Coordinate
	Data       []byte
	Err        error
}

// FetchGrid downloads every tile of grid at zoom concurrently, bounded by
// MaxInFlight. Tiles already present in have are reused instead of being
// requested again. Results are returned in row-major order regardless of the
// order in which fetches complete. The first tile to fail cancels the
// remaining requests and its error is returned.
func (f *Fetcher) FetchGrid(ctx context.Context, panoID string, zoom int, grid Grid, have map[Coordinate][]byte) ([]Result, error) {
	coords := grid.Coordinates(zoom)
	results := make([]Result, len(coords))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.opts.MaxInFlight)

	for i, c := range coords {
		results[i].Coordinate = c
		if data, ok := have[c]; ok {
			results[i].Data = data
			continue
		}

		g.Go(func() error {
			data, err := f.FetchTile(gctx, panoID, c)
			if err != nil {
				results[i].Err = err
				if m := metrics.Get(); m != nil {
					m.IncTileFailures(failureReason(err))
				}
				return err
			}
			results[i].Data = data
			if m := metrics.Get(); m != nil {
				m.IncTilesFetched()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrContentMismatch):
		return "content_mismatch"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrServerError):
		return "server_error"
	case errors.Is(err, ErrRetriesExhausted):
		return "retries_exhausted"
	default:
		return "other"
	}
}
