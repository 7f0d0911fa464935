// Package batch runs an engine over a list of images and exports the
// artifact pair for each one.
package batch

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/cyclopcam/logs"
	"golang.org/x/sync/errgroup"

	"github.com/safevision/safevision/pkg/analyzer"
	"github.com/safevision/safevision/pkg/detection"
	"github.com/safevision/safevision/pkg/export"
	"github.com/safevision/safevision/pkg/processing"
	"github.com/safevision/safevision/pkg/types"
)

// Options controls where artifacts land and how many images run at once.
type Options struct {
	ImagesDir string
	LabelsDir string
	// Workers <= 1 processes images one at a time in order.
	Workers int
}

// Result is the outcome for one input image.
type Result struct {
	Input      string
	Paths      types.ArtifactPaths
	Detections types.DetectionSet
}

// Runner ties an engine to an image loader and an exporter.
type Runner struct {
	engine    detection.Engine
	inspect   *analyzer.ImageAnalyzer
	processor *processing.Processor
	exporter  *export.Exporter
	opts      Options
	log       logs.Log
}

// NewRunner creates a Runner. A nil log discards progress messages.
func NewRunner(engine detection.Engine, opts Options, log logs.Log) (*Runner, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: no engine", types.ErrConfiguration)
	}
	if opts.ImagesDir == "" {
		return nil, fmt.Errorf("%w: no images output directory", types.ErrConfiguration)
	}
	if opts.LabelsDir == "" {
		opts.LabelsDir = opts.ImagesDir
	}
	p := processing.NewProcessor()
	// Dataset images of any size are scored; only undecodable files stop a run
	ac := analyzer.DefaultConfig()
	ac.MinImageSize = 1
	return &Runner{
		engine:    engine,
		inspect:   analyzer.NewWithConfig(ac),
		processor: p,
		exporter:  export.NewWithOptions(p, export.Options{LabelDir: opts.LabelsDir}),
		opts:      opts,
		log:       log,
	}, nil
}

// Run is a convenience wrapper around NewRunner and Runner.Run.
func Run(ctx context.Context, engine detection.Engine, images []string, opts Options, log logs.Log) ([]Result, error) {
	r, err := NewRunner(engine, opts, log)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, images)
}

// Run processes every image. Results are returned in the order of images.
// The first failure stops the run and is returned.
func (r *Runner) Run(ctx context.Context, images []string) ([]Result, error) {
	results := make([]Result, len(images))

	if r.opts.Workers <= 1 {
		for i, path := range images {
			if err := ctx.Err(); err != nil {
				return results[:i], err
			}
			res, err := r.One(ctx, path)
			if err != nil {
				return results[:i], err
			}
			results[i] = res
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for i, path := range images {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := r.One(gctx, path)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// One inspects, loads, infers and exports a single image.
func (r *Runner) One(ctx context.Context, path string) (Result, error) {
	if _, err := r.inspect.Inspect(path); err != nil {
		return Result{}, fmt.Errorf("%s: %w", path, err)
	}
	img, err := r.processor.LoadImage(path)
	if err != nil {
		return Result{}, fmt.Errorf("%w: loading %s: %v", types.ErrIO, path, err)
	}
	inf, err := r.engine.Infer(ctx, img)
	if err != nil {
		return Result{}, fmt.Errorf("inference on %s: %w", path, err)
	}
	paths, err := r.exporter.Export(path, inf.Detections, inf.Rendered, r.opts.ImagesDir)
	if err != nil {
		return Result{}, err
	}
	if r.log != nil {
		r.log.Infof("%s: %d detections -> %s", filepath.Base(path), len(inf.Detections), paths.Label)
	}
	return Result{Input: path, Paths: paths, Detections: inf.Detections}, nil
}
