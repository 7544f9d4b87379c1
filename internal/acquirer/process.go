package acquirer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/withObsrvr/obsrvr-pano-scraper/internal/logging"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/manifest"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/metaxml"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/metrics"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/panorama"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/storage"
)

// Result is the terminal state of one panorama.
type Result struct {
	Spec    panorama.Spec
	Outcome panorama.Outcome

	// Reconcile is set on skipped panoramas whose image exists in storage
	// but which the ledger does not record as downloaded.
	Reconcile bool

	// Set once the zoom level has been resolved.
	Resolution *panorama.Resolution

	Key      string
	Bytes    int
	Checksum string

	Err        error
	Duration   time.Duration
	FinishedAt time.Time
}

func (r Result) record() manifest.Record {
	rec := manifest.Record{
		PanoramaID: string(r.Spec.ID),
		Outcome:    r.Outcome.String(),
		Key:        r.Key,
		Bytes:      int64(r.Bytes),
		Checksum:   r.Checksum,
		DurationMS: r.Duration.Milliseconds(),
		FinishedAt: r.FinishedAt,
	}
	if res := r.Resolution; res != nil {
		rec.Zoom = int32(res.Zoom)
		rec.NativeWidth = int32(res.Native.Width)
		rec.NativeHeight = int32(res.Native.Height)
		rec.Width = int32(res.Target.Width)
		rec.Height = int32(res.Target.Height)
		rec.Tiles = int32(res.Grid.Count())
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}

// process runs one panorama through its state machine:
// skip check → resolve → fetch → assemble → store. It never panics and never
// returns a non-terminal state; the ledger is written by the caller.
func (a *Acquirer) process(ctx context.Context, workerID int, spec panorama.Spec) (res Result) {
	start := time.Now()
	res = Result{Spec: spec, Key: storage.PanoramaKey(string(spec.ID))}
	log := logging.PanoramaLogger(ctx, string(spec.ID)).With("worker_id", workerID)

	if m := metrics.Get(); m != nil {
		m.AddInFlightPanoramas(1)
		defer m.AddInFlightPanoramas(-1)
	}

	defer func() {
		if rec := recover(); rec != nil {
			res.Outcome = panorama.OutcomeFailure
			res.Err = fmt.Errorf("%w: %v", ErrPanic, rec)
			res.Key = ""
			log.Error("recovered from panic", "panic", rec, "stack", string(debug.Stack()))
		}
		res.Duration = time.Since(start)
		res.FinishedAt = time.Now().UTC()
	}()

	if err := ValidateSpec(spec); err != nil {
		return a.fail(log, res, err)
	}

	skip, reconcile, err := a.shouldSkip(ctx, log, spec.ID, res.Key)
	if err != nil {
		return a.fail(log, res, err)
	}
	if skip {
		res.Outcome = panorama.OutcomeSkipped
		res.Reconcile = reconcile
		res.Key = ""
		log.Debug("skipping panorama", "reconcile", reconcile)
		return res
	}

	if a.opts.PanoramaTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.PanoramaTimeout)
		defer cancel()
	}

	if spec.Descriptor == nil {
		d, err := a.storedDescriptor(ctx, log, spec.ID)
		if err != nil {
			return a.fail(log, res, err)
		}
		spec.Descriptor = d
	}

	// Resolving
	resolution, err := a.resolver.Resolve(ctx, spec)
	if err != nil {
		return a.fail(log, res, fmt.Errorf("resolve: %w", err))
	}
	res.Resolution = &resolution
	log.Debug("resolved zoom",
		"zoom", resolution.Zoom,
		"tiles", resolution.Grid.Count(),
		"degraded", resolution.Degraded,
	)

	// Fetching
	tiles, err := a.fetcher.FetchGrid(ctx, string(spec.ID), resolution.Zoom, resolution.Grid, resolution.Probes)
	if err != nil {
		return a.fail(log, res, fmt.Errorf("fetch tiles: %w", err))
	}

	// Assembling
	data, err := a.assembler.Assemble(resolution, tiles)
	if err != nil {
		return a.fail(log, res, fmt.Errorf("assemble: %w", err))
	}

	if v := ValidateImage(data, resolution.Target); !v.Passed {
		return a.fail(log, res, fmt.Errorf("%w: %v", ErrInvalidImage, v.Errors))
	}

	if err := a.store.Write(ctx, res.Key, data); err != nil {
		a.countStorageError()
		return a.fail(log, res, fmt.Errorf("write %s: %w", res.Key, err))
	}

	res.Outcome = resolution.Outcome()
	res.Bytes = len(data)
	res.Checksum = manifest.ComputeChecksum(data)
	log.Info("downloaded panorama",
		"outcome", res.Outcome,
		"zoom", resolution.Zoom,
		"width", resolution.Target.Width,
		"height", resolution.Target.Height,
		"bytes", res.Bytes,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res
}

// storedDescriptor returns the descriptor of the panorama's downloaded
// metadata. Metadata without data_properties or with an out-of-range
// descriptor is ignored so the zoom levels are probed instead.
func (a *Acquirer) storedDescriptor(ctx context.Context, log *slog.Logger, id panorama.ID) (*panorama.Descriptor, error) {
	md, err := metaxml.Load(ctx, a.store, id)
	switch {
	case errors.Is(err, metaxml.ErrNoDataProperties):
		log.Warn("stored metadata has no data_properties, probing zoom levels")
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("load metadata: %w", err)
	case md == nil:
		return nil, nil
	}

	d := md.Descriptor()
	if err := ValidateDescriptor(*d); err != nil {
		log.Warn("ignoring stored metadata, probing zoom levels", "error", err)
		return nil, nil
	}
	return d, nil
}

// shouldSkip reconciles the ledger with storage. A panorama is skipped when
// the ledger records it as downloaded, when it failed before and failures are
// not retried, or when its image already exists; in the last case the ledger
// must be reconciled.
func (a *Acquirer) shouldSkip(ctx context.Context, log *slog.Logger, id panorama.ID, key string) (skip, reconcile bool, err error) {
	downloaded, known := a.ledger.Lookup(string(id))

	switch {
	case known && downloaded && !a.opts.VerifyOutputs:
		return true, false, nil
	case known && !downloaded && !a.opts.RetryFailed:
		return true, false, nil
	}

	exists, err := a.store.Exists(ctx, key)
	if err != nil {
		a.countStorageError()
		return false, false, fmt.Errorf("check %s: %w", key, err)
	}

	switch {
	case exists:
		return true, !(known && downloaded), nil
	case known && downloaded:
		log.Warn("ledger records panorama as downloaded but image is missing, acquiring again")
	}
	return false, false, nil
}

func (a *Acquirer) fail(log *slog.Logger, res Result, err error) Result {
	res.Outcome = panorama.OutcomeFailure
	res.Err = err
	res.Key = ""

	switch {
	case errors.Is(err, context.Canceled):
		log.Debug("panorama cancelled", "error", err)
	case errors.Is(err, panorama.ErrNoUsableZoom):
		log.Warn("no usable zoom level", "error", err)
	default:
		log.Error("failed to acquire panorama", "error", err)
	}
	return res
}
