package acquirer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"

	"github.com/withObsrvr/obsrvr-pano-scraper/internal/panorama"
)

// ErrInvalidImage is returned when an assembled image fails validation.
var ErrInvalidImage = errors.New("acquirer: assembled image failed validation")

// ValidateSpec checks a work-list entry before any request is made for it.
func ValidateSpec(spec panorama.Spec) error {
	if err := spec.ID.Validate(); err != nil {
		return fmt.Errorf("%w: id %q: %w", ErrInvalidSpec, spec.ID, err)
	}
	if spec.Width < 0 || spec.Height < 0 {
		return fmt.Errorf("%w: negative dimensions %dx%d", ErrInvalidSpec, spec.Width, spec.Height)
	}
	if (spec.Width == 0) != (spec.Height == 0) {
		return fmt.Errorf("%w: partial dimensions %dx%d", ErrInvalidSpec, spec.Width, spec.Height)
	}
	if d := spec.Descriptor; d != nil {
		if err := ValidateDescriptor(*d); err != nil {
			return err
		}
	}
	return nil
}

// ValidateDescriptor checks the zoom and dimensions declared by metadata.
func ValidateDescriptor(d panorama.Descriptor) error {
	if d.Zoom < 0 || d.Zoom > panorama.MaxZoom {
		return fmt.Errorf("%w: descriptor zoom %d out of range", ErrInvalidSpec, d.Zoom)
	}
	if d.Width < 0 || d.Height < 0 {
		return fmt.Errorf("%w: negative descriptor dimensions %dx%d", ErrInvalidSpec, d.Width, d.Height)
	}
	return nil
}

// ValidationResult contains the outcome of image validation.
type ValidationResult struct {
	Passed   bool
	Errors   []string
	Warnings []string
	ByteSize int64
}

// ValidateImage performs quality checks on an encoded panorama before it is
// written. This validates:
// - Non-empty output
// - The data decodes as a JPEG
// - Dimensions equal the expected target
func ValidateImage(data []byte, want panorama.Size) ValidationResult {
	result := ValidationResult{
		Passed:   true,
		ByteSize: int64(len(data)),
	}

	// Check 1: Non-empty output
	if len(data) == 0 {
		result.Errors = append(result.Errors, "empty image data")
		result.Passed = false
		return result
	}

	// Check 2: Decodable header
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("undecodable image: %v", err))
		result.Passed = false
		return result
	}
	if format != "jpeg" {
		result.Errors = append(result.Errors, fmt.Sprintf("unexpected format %s", format))
		result.Passed = false
	}

	// Check 3: Dimensions
	if want.Known() && (cfg.Width != want.Width || cfg.Height != want.Height) {
		result.Errors = append(result.Errors,
			fmt.Sprintf("dimension mismatch: have %dx%d, expected %dx%d",
				cfg.Width, cfg.Height, want.Width, want.Height))
		result.Passed = false
	}

	// Check 4: Suspiciously small output for its size
	if cfg.Width*cfg.Height > 0 && len(data) < 1024 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("image is only %d bytes for %dx%d", len(data), cfg.Width, cfg.Height))
	}

	return result
}
