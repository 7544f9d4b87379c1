package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/withObsrvr/obsrvr-pano-scraper/internal/config"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/ledger"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/logging"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/metrics"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/panorama"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/storage"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/tile"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/worklist"
)

var errNoWorklist = errors.New("no work list: set worklist.path, pass --worklist or configure provider.labels_host")

type commandContext struct {
	configFlag *string

	cfg       config.Config
	logCloser io.Closer
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// setup loads the configuration and installs logging and metrics.
func (c *commandContext) setup() error {
	var path string
	if c.configFlag != nil {
		path = strings.TrimSpace(*c.configFlag)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	c.cfg = cfg

	closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		return err
	}
	c.logCloser = closer

	if cfg.Metrics.Enabled {
		metrics.Init(cfg.Metrics.Namespace)
		go func() {
			slog.Info("metrics server listening", "address", cfg.Metrics.Address)
			if err := metrics.StartServer(cfg.Metrics.Address); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
	}
	return nil
}

func (c *commandContext) close() error {
	if c.logCloser == nil {
		return nil
	}
	return c.logCloser.Close()
}

func (c *commandContext) openStore() (storage.Store, error) {
	store, err := storage.New(c.cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return store, nil
}

func (c *commandContext) openLedger() (ledger.Ledger, error) {
	if dir := filepath.Dir(c.cfg.Ledger.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o775); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}
	led, err := ledger.Open(c.cfg.Ledger)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return led, nil
}

func (c *commandContext) newFetcher() (*tile.Fetcher, error) {
	f := c.cfg.Fetch
	return tile.NewFetcher(tile.Options{
		BaseURL:         c.cfg.Provider.TileURL,
		Timeout:         f.Timeout,
		RetryAttempts:   f.RetryAttempts,
		RetryBackoff:    f.RetryBackoff,
		RetryMaxBackoff: f.RetryMaxBackoff,
		MaxInFlight:     f.MaxInFlightTiles,
		ProxyURL:        f.ProxyURL,
		Headers:         f.Headers,
	})
}

// loadWorklist reads the work list from a file, or from the labels API when
// no file is configured.
func (c *commandContext) loadWorklist(ctx context.Context, client worklist.Getter, path string) ([]panorama.Spec, error) {
	if path == "" {
		path = c.cfg.Worklist.Path
	}

	var src worklist.Source
	switch {
	case path != "":
		src = worklist.FileSource{Path: path}
	case c.cfg.Provider.LabelsHost != "":
		src = worklist.APISource{Host: c.cfg.Provider.LabelsHost, Client: client}
	default:
		return nil, errNoWorklist
	}

	specs, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load work list: %w", err)
	}
	specs = worklist.Dedupe(specs)
	if c.cfg.Worklist.Shuffle {
		worklist.Shuffle(specs, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
	}
	slog.Info("loaded work list", "panoramas", len(specs))
	return specs, nil
}
