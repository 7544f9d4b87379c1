// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

// SolidJPEG encodes a w x h image filled with c.
func SolidJPEG(t testing.TB, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return encode(t, img)
}

// BlankJPEG encodes an all-black placeholder tile of the given size.
func BlankJPEG(t testing.TB, w, h int) []byte {
	return SolidJPEG(t, w, h, color.Black)
}

// Gray returns an opaque gray of luminance y.
func Gray(y uint8) color.Color {
	return color.Gray{Y: y}
}

// GradientJPEG encodes a w x h image whose content depends on seed, so tiles
// built with different seeds are distinguishable after decoding.
func GradientJPEG(t testing.TB, w, h int, seed uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x) + seed,
				G: uint8(y) + seed,
				B: 128 + seed,
				A: 0xff,
			})
		}
	}
	return encode(t, img)
}

// DecodeJPEG decodes data and fails the test on error.
func DecodeJPEG(t testing.TB, data []byte) image.Image {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode jpeg: %v", err)
	}
	return img
}

func encode(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}
