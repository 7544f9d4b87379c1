package panorama

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	"github.com/withObsrvr/obsrvr-pano-scraper/internal/tile"
)

// DefaultQuality is the JPEG quality of assembled panoramas.
const DefaultQuality = 90

// Assembler stitches a grid of tiles into one encoded panorama.
type Assembler struct {
	Quality int
}

// NewAssembler creates an assembler writing JPEGs at quality.
func NewAssembler(quality int) *Assembler {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Assembler{Quality: quality}
}

// Assemble pastes every tile of res.Grid onto a canvas, crops it to
// res.Native, upscales it to res.Target when degraded and encodes it as JPEG.
// tiles must hold exactly one successful result per grid coordinate; any gap
// or tile error fails the whole panorama.
func (a *Assembler) Assemble(res Resolution, tiles []tile.Result) ([]byte, error) {
	canvas, err := a.Stitch(res.Grid, res.Zoom, tiles)
	if err != nil {
		return nil, err
	}

	var out image.Image = canvas.SubImage(image.Rect(0, 0,
		min(res.Native.Width, canvas.Bounds().Dx()),
		min(res.Native.Height, canvas.Bounds().Dy()),
	))

	if res.Degraded && res.Target.Known() && res.Target != res.Native {
		scaled := image.NewRGBA(image.Rect(0, 0, res.Target.Width, res.Target.Height))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), out, out.Bounds(), draw.Src, nil)
		out = scaled
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: a.quality()}); err != nil {
		return nil, fmt.Errorf("encode panorama: %w", err)
	}
	return buf.Bytes(), nil
}

// Stitch decodes tiles onto a canvas of grid.Cols*512 x grid.Rows*512.
func (a *Assembler) Stitch(grid tile.Grid, zoom int, tiles []tile.Result) (*image.RGBA, error) {
	if grid.Count() == 0 {
		return nil, fmt.Errorf("%w: empty grid", ErrMissingTile)
	}

	byCoord := make(map[tile.Coordinate][]byte, len(tiles))
	for _, t := range tiles {
		if t.Err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMissingTile, t.Coordinate, t.Err)
		}
		byCoord[t.Coordinate] = t.Data
	}

	canvas := image.NewRGBA(image.Rect(0, 0, grid.PixelWidth(), grid.PixelHeight()))
	for _, c := range grid.Coordinates(zoom) {
		data, ok := byCoord[c]
		if !ok || len(data) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrMissingTile, c)
		}

		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode tile %s: %w", c, err)
		}

		dst := image.Rect(c.Column*tile.Size, c.Row*tile.Size, (c.Column+1)*tile.Size, (c.Row+1)*tile.Size)
		if b := img.Bounds(); b.Dx() == tile.Size && b.Dy() == tile.Size {
			draw.Draw(canvas, dst, img, b.Min, draw.Src)
		} else {
			draw.ApproxBiLinear.Scale(canvas, dst, img, b, draw.Src, nil)
		}
	}
	return canvas, nil
}

func (a *Assembler) quality() int {
	if a.Quality <= 0 || a.Quality > 100 {
		return DefaultQuality
	}
	return a.Quality
}
