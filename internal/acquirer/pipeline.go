package acquirer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/withObsrvr/obsrvr-pano-scraper/internal/logging"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/manifest"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/metrics"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/panorama"
)

// task is one panorama handed to a worker.
type task struct {
	Index int
	Spec  panorama.Spec
}

// pipeline implements the dispatcher → workers → collector flow.
// Workers process panoramas in parallel; the collector alone writes the
// ledger, so ledger updates never interleave.
type pipeline struct {
	acq     *Acquirer
	total   int
	records *manifest.Collector
	log     *slog.Logger

	tasks   chan task
	results chan Result
	wg      sync.WaitGroup
}

func newPipeline(a *Acquirer, total int, records *manifest.Collector) *pipeline {
	return &pipeline{
		acq:     a,
		total:   total,
		records: records,
		log:     slog.With("component", "pipeline"),
		tasks:   make(chan task, a.opts.Workers),
		results: make(chan Result, a.opts.Workers),
	}
}

func (p *pipeline) run(ctx context.Context, specs []panorama.Spec) (Summary, error) {
	start := time.Now()

	for i := 0; i < p.acq.opts.Workers; i++ {
		p.wg.Add(1)
		go p.workerLoop(ctx, i)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- p.dispatcherLoop(ctx, specs)
	}()

	go func() {
		p.wg.Wait()
		close(p.results)
	}()

	sum := p.collectorLoop(ctx)
	sum.Elapsed = time.Since(start)

	if err := <-errChan; err != nil {
		return sum, err
	}
	if sum.Completed() < sum.Total {
		return sum, ctx.Err()
	}
	return sum, nil
}

// dispatcherLoop feeds specs to the workers in work-list order.
func (p *pipeline) dispatcherLoop(ctx context.Context, specs []panorama.Spec) error {
	defer close(p.tasks)

	for i, spec := range specs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p.tasks <- task{Index: i, Spec: spec}:
		}
	}
	return nil
}

func (p *pipeline) workerLoop(ctx context.Context, workerID int) {
	defer p.wg.Done()

	log := logging.WorkerLogger(ctx, workerID)
	log.Debug("worker started")

	processed := 0
	defer func() { log.Debug("worker stopped", "processed", processed) }()

	for t := range p.tasks {
		if ctx.Err() != nil {
			return
		}
		p.results <- p.acq.process(ctx, workerID, t.Spec)
		processed++
	}
}

// collectorLoop records every result as it arrives and returns the totals.
// It drains results until the workers have exited.
func (p *pipeline) collectorLoop(ctx context.Context) Summary {
	sum := Summary{Total: p.total}

	for r := range p.results {
		if r.Outcome == panorama.OutcomeFailure && ctx.Err() != nil {
			// Interrupted by shutdown: not a verdict on the panorama.
			p.log.Info("panorama interrupted", "panorama_id", r.Spec.ID)
			continue
		}

		if err := p.commit(ctx, r); err != nil {
			sum.LedgerErrors++
			if m := metrics.Get(); m != nil {
				m.IncLedgerErrors()
			}
			p.log.Error("failed to update ledger", "panorama_id", r.Spec.ID, "error", err)
		}
		sum.add(r)
		p.observe(r)

		if sum.Completed()%p.acq.opts.ProgressEvery == 0 || sum.Completed() == sum.Total {
			p.log.Info("progress", sum.attrs()...)
		}
	}
	return sum
}

// commit writes the ledger entry of a finished panorama. Skipped panoramas
// are only written when the ledger must be reconciled with storage.
func (p *pipeline) commit(ctx context.Context, r Result) error {
	id := string(r.Spec.ID)
	ctx = context.WithoutCancel(ctx)

	switch {
	case r.Outcome == panorama.OutcomeSkipped && !r.Reconcile:
		return nil
	case r.Outcome == panorama.OutcomeSkipped:
		return p.acq.ledger.Mark(ctx, id, true)
	default:
		if err := p.acq.ledger.Mark(ctx, id, r.Outcome.Downloaded()); err != nil {
			return fmt.Errorf("mark %s %s: %w", id, r.Outcome, err)
		}
		return nil
	}
}

func (p *pipeline) observe(r Result) {
	if m := metrics.Get(); m != nil {
		m.IncPanorama(r.Outcome.String())
		if r.Outcome != panorama.OutcomeSkipped {
			m.ObservePanoramaDuration(r.Outcome.String(), r.Duration.Seconds())
		}
		if r.Bytes > 0 {
			m.ObservePanoramaBytes(float64(r.Bytes))
		}
	}
	if p.records != nil {
		p.records.Add(r.record())
	}
}
