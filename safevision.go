// Package safevision turns object detections into training-ready artifacts.
//
// For every input image the pipeline runs an inference engine, draws the
// detections onto the image and writes two files side by side: the annotated
// image, named after the input, and a YOLO label file with one line per
// detection:
//
//	<class id> <center x> <center y> <width> <height>
//
// Coordinates are normalized to the image size.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		"github.com/safevision/safevision"
//		"github.com/safevision/safevision/pkg/vision"
//	)
//
//	func main() {
//		pipeline := safevision.New(vision.New())
//
//		paths, set, err := pipeline.PredictAndSave(context.Background(), "cat.png", "predictions")
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Printf("%d detections -> %s, %s\n", len(set), paths.Image, paths.Label)
//	}
//
// The module is made of these parts:
//
//   - Export (pkg/export): artifact paths, directory creation, label and image writing
//   - Labels (pkg/labels): the label line format, parsing and validation
//   - Engines (pkg/detection, pkg/vision): vision-language models or saliency
//   - Dataset and evaluation (pkg/dataset, pkg/evaluate): ground truth and mAP
//   - Batch and server (pkg/batch, pkg/server): run over a folder or serve a web UI
//
// Export errors wrap the sentinels in pkg/types, so callers can tell bad
// configuration, bad input and failed writes apart with errors.Is.
package safevision

import (
	"context"
	"fmt"
	"image"
	"net/url"
	"path"
	"strings"

	"github.com/safevision/safevision/pkg/detection"
	"github.com/safevision/safevision/pkg/export"
	"github.com/safevision/safevision/pkg/processing"
	"github.com/safevision/safevision/pkg/types"
)

// Version of the safevision library
const Version = "1.0.0"

// Pipeline runs load, infer and export for one image at a time. It keeps no
// model state; the engine is supplied by the caller and reused for every
// call.
type Pipeline struct {
	engine    detection.Engine
	exporter  *export.Exporter
	processor *processing.Processor
}

// New creates a Pipeline with default image processing and export options
func New(engine detection.Engine) *Pipeline {
	p := processing.NewProcessor()
	return NewWithConfig(engine, p, export.NewWithOptions(p, export.Options{}))
}

// NewWithConfig creates a Pipeline from explicit components
func NewWithConfig(engine detection.Engine, processor *processing.Processor, exporter *export.Exporter) *Pipeline {
	if processor == nil {
		processor = processing.NewProcessor()
	}
	if exporter == nil {
		exporter = export.NewWithOptions(processor, export.Options{})
	}
	return &Pipeline{engine: engine, exporter: exporter, processor: processor}
}

// Predict runs the engine on an already decoded image
func (p *Pipeline) Predict(ctx context.Context, img image.Image) (*types.Inference, error) {
	if p.engine == nil {
		return nil, fmt.Errorf("%w: no engine configured", types.ErrConfiguration)
	}
	return p.engine.Infer(ctx, img)
}

// PredictAndSave loads imagePath, runs the engine and exports the annotated
// image and label file into outDir. imagePath may also be an http(s) URL, in
// which case the artifacts are named after the last element of its path.
func (p *Pipeline) PredictAndSave(ctx context.Context, imagePath, outDir string) (types.ArtifactPaths, types.DetectionSet, error) {
	name, err := inputName(imagePath)
	if err != nil {
		return types.ArtifactPaths{}, nil, err
	}

	// Reject names we could not write before spending time on inference
	paths, err := p.exporter.PathsFor(name, outDir)
	if err != nil {
		return types.ArtifactPaths{}, nil, err
	}
	if err := p.processor.CheckFormat(paths.Image); err != nil {
		return types.ArtifactPaths{}, nil, err
	}

	img, err := p.processor.LoadImageSmart(imagePath)
	if err != nil {
		return types.ArtifactPaths{}, nil, fmt.Errorf("%w: failed to load image: %v", types.ErrIO, err)
	}

	inf, err := p.Predict(ctx, img)
	if err != nil {
		return types.ArtifactPaths{}, nil, fmt.Errorf("inference failed: %w", err)
	}

	paths, err = p.exporter.Export(name, inf.Detections, inf.Rendered, outDir)
	if err != nil {
		return types.ArtifactPaths{}, nil, err
	}
	return paths, inf.Detections, nil
}

func isURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// inputName is the name artifacts are derived from: the path itself, or the
// path component of a URL without its query.
func inputName(source string) (string, error) {
	if !isURL(source) {
		return source, nil
	}
	u, err := url.Parse(source)
	if err != nil {
		return "", fmt.Errorf("%w: invalid image URL: %v", types.ErrInvalidInput, err)
	}
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		return "", fmt.Errorf("%w: image URL %s has no file name", types.ErrInvalidInput, source)
	}
	return base, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
