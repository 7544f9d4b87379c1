package acquirer

import (
	"fmt"
	"time"

	"github.com/withObsrvr/obsrvr-pano-scraper/internal/panorama"
)

// Summary aggregates the outcomes of a run.
type Summary struct {
	Total           int
	Success         int
	FallbackSuccess int
	Failure         int
	Skipped         int

	// Reconciled counts skipped panoramas whose image existed without a
	// ledger entry; the ledger was updated to match.
	Reconciled int

	// LedgerErrors counts outcomes that could not be recorded.
	LedgerErrors int

	Elapsed time.Duration
}

// Completed returns the number of panoramas with a terminal outcome.
func (s Summary) Completed() int {
	return s.Success + s.FallbackSuccess + s.Failure + s.Skipped
}

// Count returns the number of panoramas that ended with outcome o.
func (s Summary) Count(o panorama.Outcome) int {
	switch o {
	case panorama.OutcomeSuccess:
		return s.Success
	case panorama.OutcomeFallbackSuccess:
		return s.FallbackSuccess
	case panorama.OutcomeFailure:
		return s.Failure
	default:
		return s.Skipped
	}
}

func (s *Summary) add(r Result) {
	switch r.Outcome {
	case panorama.OutcomeSuccess:
		s.Success++
	case panorama.OutcomeFallbackSuccess:
		s.FallbackSuccess++
	case panorama.OutcomeFailure:
		s.Failure++
	default:
		s.Skipped++
		if r.Reconcile {
			s.Reconciled++
		}
	}
}

func (s Summary) attrs() []any {
	attrs := []any{
		"success", s.Success,
		"fallback_success", s.FallbackSuccess,
		"failure", s.Failure,
		"skipped", s.Skipped,
		"completed", fmt.Sprintf("%d/%d", s.Completed(), s.Total),
	}
	if s.Reconciled > 0 {
		attrs = append(attrs, "reconciled", s.Reconciled)
	}
	if s.LedgerErrors > 0 {
		attrs = append(attrs, "ledger_errors", s.LedgerErrors)
	}
	if s.Elapsed > 0 {
		attrs = append(attrs, "elapsed", s.Elapsed.Round(time.Millisecond).String())
	}
	return attrs
}
