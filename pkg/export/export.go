// Package export turns a detection result into its two durable artifacts: the
// annotated image and the label file.
//
// Paths are a pure function of the input name and the output directory, so a
// second export of the same name silently replaces the first. The two writes
// are independent; if the label write fails after the image was written, the
// image stays on disk.
package export

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/safevision/safevision/pkg/labels"
	"github.com/safevision/safevision/pkg/processing"
	"github.com/safevision/safevision/pkg/types"
)

// LabelExt is the extension forced onto label files.
const LabelExt = labels.LabelFileExt

// ImageWriter encodes the rendered image. *processing.Processor satisfies it.
type ImageWriter interface {
	CheckFormat(path string) error
	SaveImage(img image.Image, path string) error
}

// Options controls where artifacts land.
type Options struct {
	// LabelDir, when set, receives label files instead of the output
	// directory passed to Export.
	LabelDir string
	// DirPerm is used when creating directories. Zero means 0755.
	DirPerm os.FileMode
}

// Exporter writes artifact pairs. It holds no per-call state and may be
// shared between goroutines.
type Exporter struct {
	writer ImageWriter
	opts   Options
}

// New creates an Exporter that encodes with a default processing.Processor.
func New() *Exporter {
	return NewWithOptions(processing.NewProcessor(), Options{})
}

// NewWithOptions creates an Exporter with a custom image writer and options.
func NewWithOptions(w ImageWriter, opts Options) *Exporter {
	if w == nil {
		w = processing.NewProcessor()
	}
	if opts.DirPerm == 0 {
		opts.DirPerm = 0o755
	}
	return &Exporter{writer: w, opts: opts}
}

// Stem returns the base name of inputName without its final extension.
// A dot-file such as ".hidden" keeps its whole name.
func Stem(inputName string) string {
	base := baseName(inputName)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		return base
	}
	return stem
}

// Paths derives the artifact pair for inputName under outputDir:
// outputDir/<base name> and outputDir/<stem>.txt.
func Paths(inputName, outputDir string) (types.ArtifactPaths, error) {
	return pathsIn(inputName, outputDir, outputDir)
}

// PathsFor is Paths honouring the exporter's LabelDir option.
func (e *Exporter) PathsFor(inputName, outputDir string) (types.ArtifactPaths, error) {
	return pathsIn(inputName, outputDir, e.labelDir(outputDir))
}

// Export writes the rendered image and the label file for one input image
// and returns where they went. Directories are created as needed; existing
// artifacts with the same names are replaced.
func (e *Exporter) Export(inputName string, set types.DetectionSet, rendered image.Image, outputDir string) (types.ArtifactPaths, error) {
	paths, err := e.PathsFor(inputName, outputDir)
	if err != nil {
		return types.ArtifactPaths{}, err
	}
	if rendered == nil {
		return types.ArtifactPaths{}, fmt.Errorf("%w: no rendered image for %s", types.ErrInvalidInput, inputName)
	}
	if err := e.writer.CheckFormat(paths.Image); err != nil {
		return types.ArtifactPaths{}, err
	}
	if err := labels.ValidateSet(set); err != nil {
		return types.ArtifactPaths{}, err
	}

	if err := e.ensureDir(filepath.Dir(paths.Image)); err != nil {
		return types.ArtifactPaths{}, err
	}
	if err := e.ensureDir(filepath.Dir(paths.Label)); err != nil {
		return types.ArtifactPaths{}, err
	}

	if err := e.writer.SaveImage(rendered, paths.Image); err != nil {
		return types.ArtifactPaths{}, fmt.Errorf("%w: writing %s: %v", types.ErrIO, paths.Image, err)
	}
	if err := WriteLabelFile(paths.Label, set); err != nil {
		return types.ArtifactPaths{}, err
	}
	return paths, nil
}

// WriteLabelFile creates or truncates path and writes set into it.
func WriteLabelFile(path string, set types.DetectionSet) error {
	if err := labels.ValidateSet(set); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrIO, err)
	}
	if err := labels.Write(f, set); err != nil {
		f.Close()
		return fmt.Errorf("%w: writing %s: %v", types.ErrIO, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %v", types.ErrIO, path, err)
	}
	return nil
}

// EnsureDir creates dir and any missing parents. An existing directory is
// not an error.
func EnsureDir(dir string, perm os.FileMode) error {
	if err := os.MkdirAll(dir, perm); err != nil {
		return fmt.Errorf("%w: cannot create output directory %s: %v", types.ErrConfiguration, dir, err)
	}
	return nil
}

func (e *Exporter) ensureDir(dir string) error {
	return EnsureDir(dir, e.opts.DirPerm)
}

func (e *Exporter) labelDir(outputDir string) string {
	if e.opts.LabelDir != "" {
		return e.opts.LabelDir
	}
	return outputDir
}

func pathsIn(inputName, imageDir, labelDir string) (types.ArtifactPaths, error) {
	base := baseName(inputName)
	if base == "" || base == "." || base == ".." {
		return types.ArtifactPaths{}, fmt.Errorf("%w: %q has no file name", types.ErrInvalidInput, inputName)
	}
	return types.ArtifactPaths{
		Image: filepath.Join(imageDir, base),
		Label: filepath.Join(labelDir, Stem(base)+LabelExt),
	}, nil
}

// baseName accepts both slash styles, since uploaded names may come from
// Windows browsers.
func baseName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return name
}
