package panorama

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
)

// DefaultBlankTolerance is the highest luminance a placeholder tile may reach.
// Placeholders are solid black; JPEG rounding can lift a few pixels just
// above zero.
const DefaultBlankTolerance = 4

// LuminanceExtrema returns the minimum and maximum grayscale luminance of img.
func LuminanceExtrema(img image.Image) (lo, hi uint8) {
	b := img.Bounds()
	if b.Empty() {
		return 0, 0
	}
	lo, hi = 255, 0

	switch src := img.(type) {
	case *image.YCbCr:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := src.Y[src.YOffset(b.Min.X, y):src.YOffset(b.Max.X-1, y)+1]
			for _, v := range row {
				lo, hi = min(lo, v), max(hi, v)
			}
		}
	case *image.Gray:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := src.PixOffset(b.Min.X, y)
			for _, v := range src.Pix[off : off+b.Dx()] {
				lo, hi = min(lo, v), max(hi, v)
			}
		}
	default:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				v := color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
				lo, hi = min(lo, v), max(hi, v)
			}
		}
	}
	return lo, hi
}

// IsBlank reports whether data decodes to a placeholder tile: every pixel's
// luminance is at most tolerance.
func IsBlank(data []byte, tolerance uint8) (bool, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return false, fmt.Errorf("decode probe tile: %w", err)
	}
	_, hi := LuminanceExtrema(img)
	return hi <= tolerance, nil
}
