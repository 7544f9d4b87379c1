package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/obsrvr-pano-scraper/internal/acquirer"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/depth"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/ledger"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/metaxml"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/panorama"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/storage"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/tile"
)

// runEnv holds the resources a command opened.
type runEnv struct {
	fetcher *tile.Fetcher
	store   storage.Store
	ledger  ledger.Ledger
}

func (e *runEnv) close() {
	if e.ledger != nil {
		if err := e.ledger.Close(); err != nil {
			slog.Error("failed to close ledger", "error", err)
		}
	}
	if e.store != nil {
		e.store.Close()
	}
}

func (c *commandContext) withEnv(withLedger bool, fn func(*runEnv) error) error {
	env := &runEnv{}
	defer env.close()

	var err error
	if env.fetcher, err = c.newFetcher(); err != nil {
		return err
	}
	if env.store, err = c.openStore(); err != nil {
		return err
	}
	if withLedger {
		if env.ledger, err = c.openLedger(); err != nil {
			return err
		}
	}
	return fn(env)
}

type worklistFlags struct {
	path    string
	workers int
}

func (f *worklistFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.path, "worklist", "w", "", "Work list file (CSV or JSON, optionally .zst)")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Panoramas processed concurrently (overrides perf.workers)")
}

func (f *worklistFlags) apply(c *commandContext) {
	if f.workers > 0 {
		c.cfg.Perf.Workers = f.workers
	}
}

func newDownloadCommand(cc *commandContext) *cobra.Command {
	var flags worklistFlags
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download metadata, images and depth maps for the work list",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.apply(cc)
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			return cc.withEnv(true, func(env *runEnv) error {
				specs, err := cc.loadWorklist(ctx, env.fetcher, flags.path)
				if err != nil {
					return err
				}

				if _, err := cc.runMetadata(ctx, out, env, specs); err != nil {
					return err
				}
				if _, err := cc.runImages(ctx, out, env, specs); err != nil {
					return err
				}

				if _, ok := env.store.(storage.LocalPather); !ok {
					slog.Warn("skipping depth maps, storage is not local", "backend", env.store.Backend())
					return nil
				}
				_, err = cc.runDepth(ctx, out, env.store)
				return err
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newImagesCommand(cc *commandContext) *cobra.Command {
	var flags worklistFlags
	cmd := &cobra.Command{
		Use:   "images",
		Short: "Download and assemble panorama images for the work list",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.apply(cc)
			ctx := cmd.Context()

			return cc.withEnv(true, func(env *runEnv) error {
				specs, err := cc.loadWorklist(ctx, env.fetcher, flags.path)
				if err != nil {
					return err
				}
				_, err = cc.runImages(ctx, cmd.OutOrStdout(), env, specs)
				return err
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newMetadataCommand(cc *commandContext) *cobra.Command {
	var flags worklistFlags
	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Download metadata XML for the work list",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.apply(cc)
			ctx := cmd.Context()

			return cc.withEnv(false, func(env *runEnv) error {
				specs, err := cc.loadWorklist(ctx, env.fetcher, flags.path)
				if err != nil {
					return err
				}
				_, err = cc.runMetadata(ctx, cmd.OutOrStdout(), env, specs)
				return err
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newDepthCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "depth",
		Short: "Generate depth maps for every stored metadata XML",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cc.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			_, err = cc.runDepth(cmd.Context(), cmd.OutOrStdout(), store)
			return err
		},
	}
}

func (c *commandContext) runImages(ctx context.Context, out io.Writer, env *runEnv, specs []panorama.Spec) (acquirer.Summary, error) {
	a := acquirer.New(acquirer.OptionsFromConfig(c.cfg), env.fetcher, env.store, env.ledger)
	sum, err := a.Run(ctx, specs)
	fmt.Fprintln(out, renderSummary(sum))
	if err != nil {
		return sum, fmt.Errorf("download images: %w", err)
	}
	return sum, nil
}

func (c *commandContext) runMetadata(ctx context.Context, out io.Writer, env *runEnv, specs []panorama.Spec) (metaxml.Summary, error) {
	d := metaxml.NewDownloader(env.fetcher, env.store, c.cfg.Provider.MetadataURL, c.cfg.Fetch.MaxInFlightTiles)
	sum, err := d.DownloadAll(ctx, specs)
	fmt.Fprintln(out, renderCounts("Metadata", []countRow{
		{"downloaded", sum.Downloaded},
		{"skipped", sum.Skipped},
		{"failed", sum.Failed},
	}))
	if err != nil {
		return sum, fmt.Errorf("download metadata: %w", err)
	}
	return sum, nil
}

func (c *commandContext) runDepth(ctx context.Context, out io.Writer, store storage.Store) (depth.Summary, error) {
	r := depth.NewRunner(c.cfg.Depth.Binary, c.cfg.Depth.Timeout)
	sum, err := r.RunStore(ctx, store)
	if err != nil {
		return sum, fmt.Errorf("generate depth maps: %w", err)
	}
	fmt.Fprintln(out, renderCounts("Depth maps", []countRow{
		{"generated", sum.Generated},
		{"skipped", sum.Skipped},
		{"failed", sum.Failed},
	}))
	return sum, nil
}
