// Package tile fetches the 512x512 JPEG tiles that make up a panorama.
package tile

import (
	"fmt"
	"net/url"
)

// Size is the edge length of every tile in pixels.
const Size = 512

// Coordinate addresses one tile within a zoom level's grid.
type Coordinate struct {
	Zoom   int
	Column int
	Row    int
}

func (c Coordinate) String() string {
	return fmt.Sprintf("z%d/x%d/y%d", c.Zoom, c.Column, c.Row)
}

// Grid is the tile layout of an image at one zoom level.
type Grid struct {
	Cols int
	Rows int
}

// GridFor returns the grid covering a width x height image.
func GridFor(width, height int) Grid {
	return Grid{
		Cols: ceilDiv(width, Size),
		Rows: ceilDiv(height, Size),
	}
}

// Count returns the number of tiles in the grid.
func (g Grid) Count() int {
	return g.Cols * g.Rows
}

// PixelWidth returns the canvas width needed to hold every tile.
func (g Grid) PixelWidth() int { return g.Cols * Size }

// PixelHeight returns the canvas height needed to hold every tile.
func (g Grid) PixelHeight() int { return g.Rows * Size }

// Contains reports whether c lies inside the grid.
func (g Grid) Contains(c Coordinate) bool {
	return c.Column >= 0 && c.Column < g.Cols && c.Row >= 0 && c.Row < g.Rows
}

// Coordinates enumerates every tile of the grid at zoom, row-major.
func (g Grid) Coordinates(zoom int) []Coordinate {
	out := make([]Coordinate, 0, g.Count())
	for y := 0; y < g.Rows; y++ {
		for x := 0; x < g.Cols; x++ {
			out = append(out, Coordinate{Zoom: zoom, Column: x, Row: y})
		}
	}
	return out
}

// URL builds the tile endpoint URL for one coordinate of a panorama.
// baseURL already carries the provider's fixed query parameters.
func URL(baseURL, panoID string, c Coordinate) string {
	return fmt.Sprintf("%s&zoom=%d&x=%d&y=%d&panoid=%s",
		baseURL, c.Zoom, c.Column, c.Row, url.QueryEscape(panoID))
}

func ceilDiv(n, d int) int {
	if n <= 0 {
		return 0
	}
	return (n + d - 1) / d
}
