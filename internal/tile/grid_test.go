package tile

import (
	"strings"
	"testing"
)

func TestGridFor(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		want          Grid
	}{
		{"default zoom 5", 13312, 6656, Grid{Cols: 26, Rows: 13}},
		{"degraded zoom 3", 3328, 1664, Grid{Cols: 7, Rows: 4}},
		{"exact multiple", 1024, 1024, Grid{Cols: 2, Rows: 2}},
		{"partial tile", 1025, 513, Grid{Cols: 3, Rows: 2}},
		{"single pixel", 1, 1, Grid{Cols: 1, Rows: 1}},
		{"unknown", 0, 0, Grid{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GridFor(tt.width, tt.height)
			if got != tt.want {
				t.Errorf("GridFor(%d, %d) = %+v, want %+v", tt.width, tt.height, got, tt.want)
			}
		})
	}
}

func TestGridCoordinatesRowMajor(t *testing.T) {
	g := Grid{Cols: 3, Rows: 2}
	coords := g.Coordinates(5)

	if len(coords) != g.Count() {
		t.Fatalf("expected %d coordinates, got %d", g.Count(), len(coords))
	}

	want := []Coordinate{
		{5, 0, 0}, {5, 1, 0}, {5, 2, 0},
		{5, 0, 1}, {5, 1, 1}, {5, 2, 1},
	}
	for i, c := range coords {
		if c != want[i] {
			t.Errorf("coords[%d] = %v, want %v", i, c, want[i])
		}
		if !g.Contains(c) {
			t.Errorf("grid should contain %v", c)
		}
	}

	if g.Contains(Coordinate{Zoom: 5, Column: 3, Row: 0}) {
		t.Error("grid should not contain column 3")
	}
	if g.PixelWidth() != 1536 || g.PixelHeight() != 1024 {
		t.Errorf("unexpected pixel size %dx%d", g.PixelWidth(), g.PixelHeight())
	}
}

func TestURL(t *testing.T) {
	got := URL("https://example.test/cbk?output=tile", "abc 123", Coordinate{Zoom: 3, Column: 1, Row: 2})

	for _, part := range []string{"&zoom=3", "&x=1", "&y=2", "&panoid=abc+123"} {
		if !strings.Contains(got, part) {
			t.Errorf("URL %q missing %q", got, part)
		}
	}
	if !strings.HasPrefix(got, "https://example.test/cbk?output=tile&") {
		t.Errorf("URL %q should keep the base query", got)
	}
}
