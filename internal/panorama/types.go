// Package panorama resolves the usable zoom level of a street-level
// panorama and assembles its tiles into a single equirectangular image.
package panorama

import (
	"errors"
	"strings"
)

// Common errors.
var (
	ErrNoUsableZoom = errors.New("panorama: no usable zoom level")
	ErrMissingTile  = errors.New("panorama: missing tile")
	ErrInvalidID    = errors.New("panorama: invalid id")
)

// ID identifies a panorama at the imagery provider.
type ID string

// Shard returns the directory shard for the id: its first two characters.
func (id ID) Shard() string {
	if len(id) < 2 {
		return string(id)
	}
	return string(id[:2])
}

// Validate checks that the id can be used as a path component.
func (id ID) Validate() error {
	s := string(id)
	switch {
	case len(s) < 2:
		return ErrInvalidID
	case strings.ContainsAny(s, `/\`), strings.TrimSpace(s) != s:
		return ErrInvalidID
	case s == "..", strings.HasPrefix(s, "."):
		return ErrInvalidID
	}
	return nil
}

// Descriptor carries the zoom level and dimensions declared by a panorama's
// projection metadata.
type Descriptor struct {
	Zoom   int
	Width  int
	Height int
}

// Spec describes one panorama to acquire. Zero Width or Height means the
// dimensions are unknown.
type Spec struct {
	ID         ID
	Width      int
	Height     int
	Descriptor *Descriptor
}

// Size is a pixel extent.
type Size struct {
	Width  int
	Height int
}

// Known reports whether both dimensions are set.
func (s Size) Known() bool {
	return s.Width > 0 && s.Height > 0
}

// Outcome is the terminal state of one panorama in a run.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeSuccess
	OutcomeFallbackSuccess
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeSuccess:
		return "success"
	case OutcomeFallbackSuccess:
		return "fallback_success"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Downloaded reports whether the outcome leaves a panorama image on storage.
func (o Outcome) Downloaded() bool {
	return o == OutcomeSuccess || o == OutcomeFallbackSuccess || o == OutcomeSkipped
}
