// Package depth turns stored metadata XML into depth map text files by
// invoking an external decoder binary.
package depth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/withObsrvr/obsrvr-pano-scraper/internal/storage"
)

// ErrDecoderFailed is returned when the decoder exits non-zero.
var ErrDecoderFailed = errors.New("depth: decoder failed")

// Summary counts depth generation outcomes.
type Summary struct {
	Generated int
	Skipped   int
	Failed    int
}

// Runner walks a storage root for metadata XML files and decodes each one
// whose depth file does not exist yet.
type Runner struct {
	// Binary is the decoder executable, called as `Binary <xml> <output>`.
	Binary string

	// Timeout bounds a single decoder invocation.
	Timeout time.Duration

	log *slog.Logger
}

// NewRunner creates a depth runner.
func NewRunner(binary string, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Runner{
		Binary:  binary,
		Timeout: timeout,
		log:     slog.With("component", "depth"),
	}
}

// Run generates depth files for every metadata XML below root.
func (r *Runner) Run(ctx context.Context, root string) (Summary, error) {
	var sum Summary

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), storage.DescriptorExt) {
			return nil
		}

		id := strings.TrimSuffix(d.Name(), storage.DescriptorExt)
		out := filepath.Join(filepath.Dir(path), id+storage.DepthExt)
		if _, err := os.Stat(out); err == nil {
			sum.Skipped++
			return nil
		}

		if err := r.Decode(ctx, path, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			sum.Failed++
			r.log.Warn("could not create depth file", "panorama_id", id, "error", err)
			return nil
		}
		sum.Generated++
		r.log.Debug("generated depth file", "panorama_id", id)
		return nil
	})
	if err != nil {
		return sum, fmt.Errorf("walk %s: %w", root, err)
	}

	r.log.Info("depth generation complete",
		"generated", sum.Generated,
		"skipped", sum.Skipped,
		"failed", sum.Failed,
	)
	return sum, nil
}

// RunStore runs over a store that keeps its objects on the local
// filesystem. The decoder is an external process and needs real paths.
func (r *Runner) RunStore(ctx context.Context, store storage.Store) (Summary, error) {
	lp, ok := store.(storage.LocalPather)
	if !ok {
		return Summary{}, fmt.Errorf("depth generation requires local storage, got %s", store.Backend())
	}
	return r.Run(ctx, lp.LocalPath(""))
}

// Decode runs the decoder for one XML file. A failed run leaves no output.
func (r *Runner) Decode(ctx context.Context, xmlPath, outPath string) error {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Binary, xmlPath, outPath)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(outPath)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%w: exit code %d: %s", ErrDecoderFailed, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return fmt.Errorf("run decoder: %w", err)
	}

	if err := os.Chmod(outPath, storage.FileMode); err != nil {
		return fmt.Errorf("chmod %s: %w", outPath, err)
	}
	return nil
}
