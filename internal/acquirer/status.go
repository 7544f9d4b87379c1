package acquirer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/withObsrvr/obsrvr-pano-scraper/internal/ledger"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/panorama"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/storage"
)

// State classifies a panorama by combining its ledger entry with the
// presence of its image in storage.
type State int

const (
	StatePending     State = iota // no ledger entry, no image
	StateDownloaded               // ledger downloaded, image present
	StateFailed                   // ledger failed, no image
	StateMissing                  // ledger downloaded, image absent
	StateUnrecorded               // image present, ledger not downloaded
)

func (s State) String() string {
	switch s {
	case StateDownloaded:
		return "downloaded"
	case StateFailed:
		return "failed"
	case StateMissing:
		return "missing_image"
	case StateUnrecorded:
		return "unrecorded_image"
	default:
		return "pending"
	}
}

// States lists every state in report order.
var States = []State{StateDownloaded, StateUnrecorded, StateMissing, StateFailed, StatePending}

// StatusReport summarizes how the ledger and storage agree.
type StatusReport struct {
	Counts map[State]int

	// IDs holds the panorama ids whose ledger entry and storage disagree.
	IDs map[State][]string
}

// Total returns the number of panoramas in the report.
func (r StatusReport) Total() int {
	n := 0
	for _, c := range r.Counts {
		n += c
	}
	return n
}

// Status reports the state of every panorama in specs, or of every panorama
// known to the ledger or storage when specs is empty.
func Status(ctx context.Context, store storage.Store, led ledger.Ledger, specs []panorama.Spec) (StatusReport, error) {
	images, err := storedImages(ctx, store)
	if err != nil {
		return StatusReport{}, err
	}

	var ids []string
	if len(specs) > 0 {
		for _, s := range specs {
			ids = append(ids, string(s.ID))
		}
	} else {
		seen := make(map[string]struct{})
		for _, e := range led.Entries() {
			seen[e.PanoramaID] = struct{}{}
		}
		for id := range images {
			seen[id] = struct{}{}
		}
		for id := range seen {
			ids = append(ids, id)
		}
		sort.Strings(ids)
	}

	report := StatusReport{
		Counts: make(map[State]int),
		IDs:    make(map[State][]string),
	}
	for _, id := range ids {
		_, present := images[id]
		st := classify(led, id, present)
		report.Counts[st]++
		if st == StateMissing || st == StateUnrecorded {
			report.IDs[st] = append(report.IDs[st], id)
		}
	}
	return report, nil
}

func classify(led ledger.Ledger, id string, present bool) State {
	downloaded, known := led.Lookup(id)
	switch {
	case downloaded && present:
		return StateDownloaded
	case downloaded:
		return StateMissing
	case present:
		return StateUnrecorded
	case known:
		return StateFailed
	default:
		return StatePending
	}
}

// storedImages lists the panorama ids that have an image in storage.
func storedImages(ctx context.Context, store storage.Store) (map[string]struct{}, error) {
	keys, err := store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	out := make(map[string]struct{})
	for _, k := range keys {
		if !strings.HasSuffix(k, storage.ImageExt) {
			continue
		}
		name := k[strings.LastIndex(k, "/")+1:]
		out[strings.TrimSuffix(name, storage.ImageExt)] = struct{}{}
	}
	return out, nil
}
