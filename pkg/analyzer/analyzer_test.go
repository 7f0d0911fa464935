package analyzer

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/safevision/safevision/pkg/types"
)

// createTestImage creates a simple test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	// Fill with a gradient pattern
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := uint8((x * 255) / width)
			g := uint8((y * 255) / height)
			img.Set(x, y, color.RGBA{r, g, 128, 255})
		}
	}

	return img
}

func TestNew(t *testing.T) {
	analyzer := New()
	if analyzer == nil {
		t.Fatal("New() returned nil")
	}
	if analyzer.config.MinImageSize != 16 {
		t.Errorf("Expected min size 16, got %d", analyzer.config.MinImageSize)
	}
}

func TestImageInfo(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, createTestImage(400, 300)); err != nil {
		t.Fatal(err)
	}
	info, err := New().InspectReader(&buf)
	if err != nil {
		t.Fatalf("InspectReader failed: %v", err)
	}

	if info.Width != 400 || info.Height != 300 {
		t.Errorf("Expected 400x300, got %dx%d", info.Width, info.Height)
	}
	if info.AspectRatio < 1.333 || info.AspectRatio > 1.334 {
		t.Errorf("Expected aspect ratio ~1.333, got %f", info.AspectRatio)
	}
	if info.Area != 120000 {
		t.Errorf("Expected area 120000, got %d", info.Area)
	}
}

func TestInspectReader(t *testing.T) {
	analyzer := New()

	var buf bytes.Buffer
	if err := png.Encode(&buf, createTestImage(64, 32)); err != nil {
		t.Fatal(err)
	}
	info, err := analyzer.InspectReader(&buf)
	if err != nil {
		t.Fatalf("InspectReader failed: %v", err)
	}
	if info.Format != "png" || info.Width != 64 || info.Height != 32 {
		t.Errorf("Unexpected info %+v", info)
	}

	buf.Reset()
	jpeg.Encode(&buf, createTestImage(64, 64), nil)
	if _, err := analyzer.InspectReader(&buf); err != nil {
		t.Errorf("jpeg should be accepted: %v", err)
	}

	buf.Reset()
	gif.Encode(&buf, createTestImage(64, 64), nil)
	if _, err := analyzer.InspectReader(&buf); !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("gif should be rejected, got %v", err)
	}

	if _, err := analyzer.InspectReader(bytes.NewReader([]byte("not an image"))); !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("garbage should be rejected, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	analyzer := NewWithConfig(Config{SupportedFormats: []string{"png"}, MinImageSize: 100, MaxPixels: 1000 * 1000})

	if err := analyzer.Validate(newInfo("png", 200, 200)); err != nil {
		t.Errorf("Valid image failed validation: %v", err)
	}
	if err := analyzer.Validate(newInfo("png", 50, 50)); err == nil {
		t.Error("Small image should fail validation")
	}
	if err := analyzer.Validate(newInfo("jpeg", 200, 200)); err == nil {
		t.Error("jpeg should fail validation")
	}
	if err := analyzer.Validate(ImageInfo{Width: 2000, Height: 2000, Area: 4000000}); err == nil {
		t.Error("Huge image should fail validation")
	}
}
