package acquirer

import (
	"errors"
	"strings"
	"testing"

	"github.com/withObsrvr/obsrvr-pano-scraper/internal/panorama"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/testutil"
)

func TestValidateSpec(t *testing.T) {
	tests := []struct {
		name    string
		spec    panorama.Spec
		wantErr bool
	}{
		{"known dimensions", panorama.Spec{ID: "abc123", Width: 1024, Height: 512}, false},
		{"unknown dimensions", panorama.Spec{ID: "abc123"}, false},
		{"descriptor", panorama.Spec{ID: "abc123", Descriptor: &panorama.Descriptor{Zoom: 4, Width: 8192, Height: 4096}}, false},
		{"empty id", panorama.Spec{}, true},
		{"path traversal", panorama.Spec{ID: "../x"}, true},
		{"negative width", panorama.Spec{ID: "abc123", Width: -1, Height: 512}, true},
		{"partial dimensions", panorama.Spec{ID: "abc123", Width: 1024}, true},
		{"descriptor zoom too high", panorama.Spec{ID: "abc123", Descriptor: &panorama.Descriptor{Zoom: 9}}, true},
		{"negative descriptor size", panorama.Spec{ID: "abc123", Descriptor: &panorama.Descriptor{Zoom: 3, Width: -5}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSpec(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateSpec() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidSpec) {
				t.Errorf("expected ErrInvalidSpec, got %v", err)
			}
		})
	}
}

func TestValidateDescriptor(t *testing.T) {
	for _, d := range []panorama.Descriptor{{Zoom: -1}, {Zoom: panorama.MaxZoom + 1}, {Zoom: 3, Height: -1}} {
		if err := ValidateDescriptor(d); !errors.Is(err, ErrInvalidSpec) {
			t.Errorf("ValidateDescriptor(%+v) = %v, want ErrInvalidSpec", d, err)
		}
	}
	if err := ValidateDescriptor(panorama.Descriptor{Zoom: panorama.MaxZoom, Width: 13312, Height: 6656}); err != nil {
		t.Errorf("valid descriptor rejected: %v", err)
	}
}

func TestValidateImagePassed(t *testing.T) {
	data := testutil.GradientJPEG(t, 64, 32, 7)

	result := ValidateImage(data, panorama.Size{Width: 64, Height: 32})
	if !result.Passed {
		t.Errorf("expected validation to pass, got errors: %v", result.Errors)
	}
	if result.ByteSize != int64(len(data)) {
		t.Errorf("ByteSize = %d, want %d", result.ByteSize, len(data))
	}
}

func TestValidateImageDimensionMismatch(t *testing.T) {
	data := testutil.GradientJPEG(t, 64, 32, 7)

	result := ValidateImage(data, panorama.Size{Width: 128, Height: 64})
	if result.Passed {
		t.Fatal("expected validation to fail for mismatched dimensions")
	}
	found := false
	for _, e := range result.Errors {
		if strings.Contains(e, "dimension mismatch") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected dimension mismatch error, got: %v", result.Errors)
	}
}

func TestValidateImageEmpty(t *testing.T) {
	result := ValidateImage(nil, panorama.Size{Width: 64, Height: 32})
	if result.Passed {
		t.Fatal("expected validation to fail for empty data")
	}
	if len(result.Errors) != 1 || result.Errors[0] != "empty image data" {
		t.Errorf("unexpected errors: %v", result.Errors)
	}
}

func TestValidateImageUndecodable(t *testing.T) {
	result := ValidateImage([]byte("<html>rate limited</html>"), panorama.Size{})
	if result.Passed {
		t.Fatal("expected validation to fail for non-image data")
	}
}

func TestValidateImageSmallWarning(t *testing.T) {
	data := testutil.SolidJPEG(t, 8, 8, testutil.Gray(128))

	result := ValidateImage(data, panorama.Size{Width: 8, Height: 8})
	if !result.Passed {
		t.Fatalf("expected pass, got errors: %v", result.Errors)
	}
	if len(result.Warnings) == 0 {
		t.Error("expected a size warning for a tiny image")
	}
}
