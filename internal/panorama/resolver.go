package panorama

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/withObsrvr/obsrvr-pano-scraper/internal/tile"
)

// Zoom tiers and their canonical dimensions.
const (
	MaxZoom      = 5
	FallbackZoom = 3

	// DefaultWidth and DefaultHeight are the zoom-5 dimensions of a modern
	// panorama, used when the work list does not carry dimensions.
	DefaultWidth  = 13312
	DefaultHeight = 6656

	// FallbackWidth and FallbackHeight are the canonical zoom-3 dimensions
	// (6.5 x 3.25 tiles).
	FallbackWidth  = 3328
	FallbackHeight = 1664
)

// TileSource fetches a single tile of a panorama.
type TileSource interface {
	FetchTile(ctx context.Context, panoID string, c tile.Coordinate) ([]byte, error)
}

// Resolution is the zoom level and geometry chosen for one panorama.
type Resolution struct {
	Zoom int
	Grid tile.Grid

	// Native is the image extent at Zoom, cropped from the tile canvas.
	Native Size

	// Target is the extent of the written image.
	Target Size

	// Degraded is set when the fallback zoom was used and Native must be
	// upscaled to Target.
	Degraded bool

	// Probes holds tiles fetched while resolving that belong to the chosen
	// grid, so they need not be requested again.
	Probes map[tile.Coordinate][]byte
}

// Outcome returns the outcome an assembled panorama at this resolution gets.
func (r Resolution) Outcome() Outcome {
	if r.Degraded {
		return OutcomeFallbackSuccess
	}
	return OutcomeSuccess
}

// Resolver decides which zoom level of a panorama is actually served.
type Resolver struct {
	Source TileSource

	// BlankTolerance is the highest luminance a placeholder tile may reach.
	BlankTolerance uint8

	// DefaultSize is used when a spec carries no dimensions.
	DefaultSize Size

	log *slog.Logger
}

// NewResolver creates a resolver with default tolerance and dimensions.
func NewResolver(src TileSource) *Resolver {
	return &Resolver{
		Source:         src,
		BlankTolerance: DefaultBlankTolerance,
		DefaultSize:    Size{Width: DefaultWidth, Height: DefaultHeight},
		log:            slog.With("component", "zoom_resolver"),
	}
}

// Resolve probes the provider to find the zoom level to download spec at.
//
// Without a descriptor, tile (0,0) is probed at zoom 5 and then zoom 3. With
// a descriptor its zoom is trusted; tile (0,0) and the far-edge tile of the
// first row are probed to confirm the declared width.
func (r *Resolver) Resolve(ctx context.Context, spec Spec) (Resolution, error) {
	target := r.target(spec)
	if d := spec.Descriptor; d != nil && d.Zoom > 0 {
		return r.resolveDescriptor(ctx, spec.ID, *d, target)
	}

	origin := tile.Coordinate{Zoom: MaxZoom}
	data, blank, err := r.probe(ctx, spec.ID, origin)
	if err != nil {
		return Resolution{}, err
	}
	if !blank {
		return r.resolution(MaxZoom, target, target, false, origin, data), nil
	}

	r.logger().Debug("zoom 5 probe blank, trying fallback zoom", "panorama_id", spec.ID)

	origin = tile.Coordinate{Zoom: FallbackZoom}
	data, blank, err = r.probe(ctx, spec.ID, origin)
	if err != nil {
		return Resolution{}, err
	}
	if blank {
		return Resolution{}, fmt.Errorf("%w: zoom %d and %d probes blank", ErrNoUsableZoom, MaxZoom, FallbackZoom)
	}

	native := Size{
		Width:  min(FallbackWidth, target.Width),
		Height: min(FallbackHeight, target.Height),
	}
	return r.resolution(FallbackZoom, native, target, true, origin, data), nil
}

func (r *Resolver) resolveDescriptor(ctx context.Context, id ID, d Descriptor, fallback Size) (Resolution, error) {
	declared := Size{Width: d.Width, Height: d.Height}
	if !declared.Known() {
		declared = fallback
	}

	origin := tile.Coordinate{Zoom: d.Zoom}
	data, blank, err := r.probe(ctx, id, origin)
	if err != nil {
		return Resolution{}, err
	}
	if blank {
		return Resolution{}, fmt.Errorf("%w: declared zoom %d probe blank", ErrNoUsableZoom, d.Zoom)
	}
	res := r.resolution(d.Zoom, declared, declared, false, origin, data)

	grid := res.Grid
	if grid.Cols <= 1 {
		return res, nil
	}

	edge := tile.Coordinate{Zoom: d.Zoom, Column: grid.Cols - 1}
	edgeData, blank, err := r.probe(ctx, id, edge)
	if err != nil {
		return Resolution{}, err
	}
	if !blank {
		res.Probes[edge] = edgeData
		return res, nil
	}

	// Older captures declare the wide canvas but only serve the legacy one.
	legacy := Size{Width: DefaultWidth, Height: DefaultHeight}
	if declared.Width <= legacy.Width {
		return Resolution{}, fmt.Errorf("%w: far edge tile %s blank", ErrNoUsableZoom, edge)
	}

	legacyGrid := tile.GridFor(legacy.Width, legacy.Height)
	edge = tile.Coordinate{Zoom: d.Zoom, Column: legacyGrid.Cols - 1}
	edgeData, blank, err = r.probe(ctx, id, edge)
	if err != nil {
		return Resolution{}, err
	}
	if blank {
		return Resolution{}, fmt.Errorf("%w: legacy far edge tile %s blank", ErrNoUsableZoom, edge)
	}

	r.logger().Info("declared width not served, using legacy dimensions",
		"panorama_id", id,
		"declared_width", declared.Width,
		"width", legacy.Width,
	)
	res = r.resolution(d.Zoom, legacy, legacy, false, origin, data)
	res.Probes[edge] = edgeData
	return res, nil
}

func (r *Resolver) resolution(zoom int, native, target Size, degraded bool, probe tile.Coordinate, data []byte) Resolution {
	res := Resolution{
		Zoom:     zoom,
		Grid:     tile.GridFor(native.Width, native.Height),
		Native:   native,
		Target:   target,
		Degraded: degraded,
		Probes:   make(map[tile.Coordinate][]byte),
	}
	if res.Grid.Contains(probe) {
		res.Probes[probe] = data
	}
	return res
}

func (r *Resolver) probe(ctx context.Context, id ID, c tile.Coordinate) ([]byte, bool, error) {
	data, err := r.Source.FetchTile(ctx, string(id), c)
	if err != nil {
		return nil, false, fmt.Errorf("probe %s: %w", c, err)
	}
	blank, err := IsBlank(data, r.BlankTolerance)
	if err != nil {
		return nil, false, fmt.Errorf("probe %s: %w", c, err)
	}
	return data, blank, nil
}

func (r *Resolver) target(spec Spec) Size {
	s := Size{Width: spec.Width, Height: spec.Height}
	if s.Known() {
		return s
	}
	if r.DefaultSize.Known() {
		return r.DefaultSize
	}
	return Size{Width: DefaultWidth, Height: DefaultHeight}
}

func (r *Resolver) logger() *slog.Logger {
	if r.log == nil {
		return slog.Default()
	}
	return r.log
}
