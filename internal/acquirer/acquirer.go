// Package acquirer drives panorama acquisition: for every panorama of a work
// list it resolves the usable zoom level, fetches the tiles, assembles and
// stores the image and records the outcome in the download ledger.
package acquirer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/withObsrvr/obsrvr-pano-scraper/internal/config"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/ledger"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/logging"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/manifest"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/metrics"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/panorama"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/storage"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/tile"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/worklist"
)

// Common errors.
var (
	ErrInvalidSpec = errors.New("acquirer: invalid panorama spec")
	ErrPanic       = errors.New("acquirer: panic while processing panorama")
)

// Fetcher retrieves single tiles and whole tile grids.
type Fetcher interface {
	panorama.TileSource
	FetchGrid(ctx context.Context, panoID string, zoom int, grid tile.Grid, have map[tile.Coordinate][]byte) ([]tile.Result, error)
}

// Options tunes a run.
type Options struct {
	// Workers is the number of panoramas processed concurrently.
	Workers int

	// PanoramaTimeout bounds the processing of one panorama. Zero disables it.
	PanoramaTimeout time.Duration

	// ProgressEvery logs a counters snapshot after every n completed
	// panoramas.
	ProgressEvery int

	Quality        int
	BlankTolerance uint8
	DefaultSize    panorama.Size

	// RetryFailed re-attempts panoramas the ledger records as failed.
	RetryFailed bool

	// VerifyOutputs re-acquires panoramas the ledger records as downloaded
	// when their image is missing from storage.
	VerifyOutputs bool

	// Manifest writes a parquet record of the run under manifest.Prefix.
	Manifest bool

	// RunID identifies the run in logs and the manifest. Generated when empty.
	RunID string
}

// OptionsFromConfig derives run options from the scraper configuration.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Workers:         cfg.Perf.Workers,
		PanoramaTimeout: cfg.Perf.PanoramaTimeout,
		ProgressEvery:   cfg.Perf.ProgressEvery,
		Quality:         cfg.Output.Quality,
		BlankTolerance:  uint8(cfg.Resolver.BlankTolerance),
		DefaultSize:     panorama.Size{Width: cfg.Resolver.DefaultWidth, Height: cfg.Resolver.DefaultHeight},
		RetryFailed:     cfg.Output.RetryFailed,
		VerifyOutputs:   cfg.Output.VerifyOutputs,
		Manifest:        cfg.Output.Manifest,
	}
}

// Acquirer orchestrates panorama acquisition.
type Acquirer struct {
	opts      Options
	fetcher   Fetcher
	store     storage.Store
	ledger    ledger.Ledger
	resolver  *panorama.Resolver
	assembler *panorama.Assembler
	log       *slog.Logger
}

// New creates an acquirer writing images to store and outcomes to led.
func New(opts Options, fetcher Fetcher, store storage.Store, led ledger.Ledger) *Acquirer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.ProgressEvery < 1 {
		opts.ProgressEvery = 1
	}

	resolver := panorama.NewResolver(fetcher)
	resolver.BlankTolerance = opts.BlankTolerance
	if opts.DefaultSize.Known() {
		resolver.DefaultSize = opts.DefaultSize
	}

	return &Acquirer{
		opts:      opts,
		fetcher:   fetcher,
		store:     store,
		ledger:    led,
		resolver:  resolver,
		assembler: panorama.NewAssembler(opts.Quality),
		log:       logging.Component("acquirer"),
	}
}

// Run acquires every panorama in specs. Failures of individual panoramas are
// counted in the summary and never abort the run; the returned error is
// non-nil only when ctx is cancelled before the work list is exhausted.
func (a *Acquirer) Run(ctx context.Context, specs []panorama.Spec) (Summary, error) {
	runID := a.opts.RunID
	if runID == "" {
		runID = logging.GenerateCorrelationID()
	}
	ctx = logging.WithCorrelationID(ctx, runID)

	unique := worklist.Dedupe(specs)
	if dropped := len(specs) - len(unique); dropped > 0 {
		a.log.Info("dropped duplicate panorama ids", "duplicates", dropped)
	}

	a.log.Info("starting acquisition",
		"run_id", runID,
		"panoramas", len(unique),
		"workers", a.opts.Workers,
		"store", a.store.URI(""),
		"ledger", a.ledger.Path(),
	)

	var records *manifest.Collector
	if a.opts.Manifest {
		records = manifest.NewCollector(runID)
	}

	p := newPipeline(a, len(unique), records)
	sum, err := p.run(ctx, unique)

	if records != nil && records.Len() > 0 {
		a.writeManifest(context.WithoutCancel(ctx), runID, records)
	}

	a.log.Info("acquisition complete", sum.attrs()...)
	return sum, err
}

func (a *Acquirer) writeManifest(ctx context.Context, runID string, records *manifest.Collector) {
	data, err := manifest.Encode(records.Records())
	if err != nil {
		a.log.Error("failed to encode run manifest", "error", err)
		return
	}
	key := manifest.Key(runID)
	if err := a.store.Write(ctx, key, data); err != nil {
		a.countStorageError()
		a.log.Error("failed to write run manifest", "key", key, "error", err)
		return
	}
	a.log.Info("wrote run manifest", "uri", a.store.URI(key), "records", records.Len())
}

func (a *Acquirer) countStorageError() {
	if m := metrics.Get(); m != nil {
		m.IncStorageErrors(a.store.Backend())
	}
}
