package panorama

import (
	"bytes"
	"errors"
	"image/color"
	"testing"

	"github.com/withObsrvr/obsrvr-pano-scraper/internal/testutil"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/tile"
)

func gridTiles(t *testing.T, grid tile.Grid, zoom int) []tile.Result {
	t.Helper()
	var out []tile.Result
	for _, c := range grid.Coordinates(zoom) {
		out = append(out, tile.Result{
			Coordinate: c,
			Data:       testutil.GradientJPEG(t, tile.Size, tile.Size, uint8(c.Column*40+c.Row*80)),
		})
	}
	return out
}

func TestAssembleNative(t *testing.T) {
	res := Resolution{
		Zoom:   MaxZoom,
		Grid:   tile.Grid{Cols: 3, Rows: 2},
		Native: Size{Width: 1300, Height: 700},
		Target: Size{Width: 1300, Height: 700},
	}

	data, err := NewAssembler(90).Assemble(res, gridTiles(t, res.Grid, res.Zoom))
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	img := testutil.DecodeJPEG(t, data)
	if b := img.Bounds(); b.Dx() != 1300 || b.Dy() != 700 {
		t.Errorf("expected 1300x700 output, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestAssembleUpscalesDegraded(t *testing.T) {
	res := Resolution{
		Zoom:     FallbackZoom,
		Grid:     tile.Grid{Cols: 2, Rows: 1},
		Native:   Size{Width: 1024, Height: 512},
		Target:   Size{Width: 2048, Height: 1024},
		Degraded: true,
	}

	data, err := NewAssembler(0).Assemble(res, gridTiles(t, res.Grid, res.Zoom))
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	img := testutil.DecodeJPEG(t, data)
	if b := img.Bounds(); b.Dx() != 2048 || b.Dy() != 1024 {
		t.Errorf("expected upscaled 2048x1024 output, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestAssembleDeterministic(t *testing.T) {
	res := Resolution{
		Zoom:   MaxZoom,
		Grid:   tile.Grid{Cols: 2, Rows: 2},
		Native: Size{Width: 1024, Height: 1024},
		Target: Size{Width: 1024, Height: 1024},
	}
	tiles := gridTiles(t, res.Grid, res.Zoom)

	// Completion order of fetches must not matter.
	reversed := make([]tile.Result, len(tiles))
	for i, r := range tiles {
		reversed[len(tiles)-1-i] = r
	}

	a := NewAssembler(90)
	first, err := a.Assemble(res, tiles)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	second, err := a.Assemble(res, reversed)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("assembling the same tiles should produce identical bytes")
	}
}

func TestAssembleMissingTile(t *testing.T) {
	grid := tile.Grid{Cols: 2, Rows: 2}
	res := Resolution{Zoom: MaxZoom, Grid: grid, Native: Size{1024, 1024}, Target: Size{1024, 1024}}

	tests := []struct {
		name  string
		tiles func([]tile.Result) []tile.Result
	}{
		{"absent", func(r []tile.Result) []tile.Result { return r[:3] }},
		{"errored", func(r []tile.Result) []tile.Result {
			r[2].Data = nil
			r[2].Err = tile.ErrRetriesExhausted
			return r
		}},
		{"empty", func(r []tile.Result) []tile.Result {
			r[1].Data = nil
			return r
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAssembler(90).Assemble(res, tt.tiles(gridTiles(t, grid, MaxZoom)))
			if !errors.Is(err, ErrMissingTile) {
				t.Errorf("expected ErrMissingTile, got %v", err)
			}
		})
	}
}

func TestStitchResizesOddTiles(t *testing.T) {
	grid := tile.Grid{Cols: 1, Rows: 1}
	tiles := []tile.Result{{
		Coordinate: tile.Coordinate{Zoom: MaxZoom},
		Data:       testutil.SolidJPEG(t, 256, 256, color.White),
	}}

	canvas, err := NewAssembler(90).Stitch(grid, MaxZoom, tiles)
	if err != nil {
		t.Fatalf("Stitch failed: %v", err)
	}
	if b := canvas.Bounds(); b.Dx() != tile.Size || b.Dy() != tile.Size {
		t.Fatalf("unexpected canvas %v", b)
	}

	r, g, b, _ := canvas.At(tile.Size-1, tile.Size-1).RGBA()
	if r>>8 < 240 || g>>8 < 240 || b>>8 < 240 {
		t.Errorf("resized tile should cover the whole cell, corner is (%d,%d,%d)", r>>8, g>>8, b>>8)
	}
}
