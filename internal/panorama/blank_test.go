package panorama

import (
	"image"
	"image/color"
	"testing"

	"github.com/withObsrvr/obsrvr-pano-scraper/internal/testutil"
)

func TestIsBlank(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"black placeholder", testutil.BlankJPEG(t, 512, 512), true},
		{"near black", testutil.SolidJPEG(t, 64, 64, color.Gray{Y: 2}), true},
		{"dark gray", testutil.SolidJPEG(t, 64, 64, color.Gray{Y: 40}), false},
		{"gradient", testutil.GradientJPEG(t, 64, 64, 1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsBlank(tt.data, DefaultBlankTolerance)
			if err != nil {
				t.Fatalf("IsBlank failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("IsBlank = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsBlankExactTolerance(t *testing.T) {
	data := testutil.SolidJPEG(t, 16, 16, color.Gray{Y: 2})
	blank, err := IsBlank(data, 0)
	if err != nil {
		t.Fatalf("IsBlank failed: %v", err)
	}
	if blank {
		t.Error("zero tolerance should only accept exact black")
	}
}

func TestIsBlankRejectsGarbage(t *testing.T) {
	if _, err := IsBlank([]byte("not a jpeg"), DefaultBlankTolerance); err == nil {
		t.Error("expected decode error")
	}
}

func TestLuminanceExtremaGray(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	img.SetGray(1, 1, color.Gray{Y: 10})
	img.SetGray(3, 2, color.Gray{Y: 200})

	lo, hi := LuminanceExtrema(img)
	if lo != 0 || hi != 200 {
		t.Errorf("extrema = (%d, %d), want (0, 200)", lo, hi)
	}

	sub := img.SubImage(image.Rect(1, 1, 2, 2))
	lo, hi = LuminanceExtrema(sub)
	if lo != 10 || hi != 10 {
		t.Errorf("sub-image extrema = (%d, %d), want (10, 10)", lo, hi)
	}
}
