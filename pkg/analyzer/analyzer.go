// Package analyzer checks candidate input images before they reach an engine.
package analyzer

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strings"

	_ "golang.org/x/image/webp"

	"github.com/safevision/safevision/pkg/types"
)

// ImageAnalyzer validates image format and size
type ImageAnalyzer struct {
	config Config
}

// Config holds configuration for the image analyzer
type Config struct {
	SupportedFormats []string
	MinImageSize     int
	// MaxPixels rejects decompression bombs. Zero disables the check.
	MaxPixels int
}

// DefaultConfig matches the formats the upload form accepts.
func DefaultConfig() Config {
	return Config{
		SupportedFormats: []string{"jpeg", "png"},
		MinImageSize:     16,
		MaxPixels:        64 << 20,
	}
}

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	return &ImageAnalyzer{config: DefaultConfig()}
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration
func NewWithConfig(config Config) *ImageAnalyzer {
	return &ImageAnalyzer{config: config}
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Format      string  `json:"format"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	Area        int     `json:"area"`
}

func newInfo(format string, width, height int) ImageInfo {
	info := ImageInfo{Format: format, Width: width, Height: height, Area: width * height}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	return info
}

// Inspect reads just the header of the image at path and validates it.
func (a *ImageAnalyzer) Inspect(path string) (ImageInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("%w: failed to open image file: %v", types.ErrIO, err)
	}
	defer file.Close()
	return a.InspectReader(file)
}

// InspectReader is Inspect for an already open stream.
func (a *ImageAnalyzer) InspectReader(r io.Reader) (ImageInfo, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("%w: failed to decode image: %v", types.ErrInvalidInput, err)
	}
	info := newInfo(format, cfg.Width, cfg.Height)
	if err := a.Validate(info); err != nil {
		return ImageInfo{}, err
	}
	return info, nil
}

// Validate checks format and size limits.
func (a *ImageAnalyzer) Validate(info ImageInfo) error {
	if info.Format != "" && !a.isFormatSupported(info.Format) {
		return fmt.Errorf("%w: unsupported image format: %s", types.ErrInvalidInput, info.Format)
	}
	if info.Width < a.config.MinImageSize || info.Height < a.config.MinImageSize {
		return fmt.Errorf("%w: image too small: %dx%d (minimum: %d)",
			types.ErrInvalidInput, info.Width, info.Height, a.config.MinImageSize)
	}
	if a.config.MaxPixels > 0 && info.Area > a.config.MaxPixels {
		return fmt.Errorf("%w: image too large: %dx%d", types.ErrInvalidInput, info.Width, info.Height)
	}
	return nil
}

func (a *ImageAnalyzer) isFormatSupported(format string) bool {
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}
