// Package dataset reads YOLO dataset descriptions (yolo_params.yaml) and
// enumerates their images and ground-truth labels.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/safevision/safevision/pkg/labels"
	"github.com/safevision/safevision/pkg/types"
)

// ImageExts are the extensions picked up from split directories.
var ImageExts = []string{".png", ".jpg", ".jpeg"}

// Names is a class list. In YAML it may be a sequence or an id -> name map.
type Names []string

// UnmarshalYAML accepts both forms of the names key.
func (n *Names) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*n = list
		return nil
	case yaml.MappingNode:
		var m map[int]string
		if err := node.Decode(&m); err != nil {
			return err
		}
		size := 0
		for id := range m {
			if id < 0 {
				return fmt.Errorf("negative class id %d in names", id)
			}
			size = max(size, id+1)
		}
		list := make([]string, size)
		for id, name := range m {
			list[id] = name
		}
		for id, name := range list {
			if name == "" {
				list[id] = fmt.Sprintf("class%d", id)
			}
		}
		*n = list
		return nil
	}
	return fmt.Errorf("names must be a list or a map, got %v", node.Tag)
}

// Dataset is a parsed yolo_params.yaml.
type Dataset struct {
	Path  string `yaml:"path"`
	Train string `yaml:"train"`
	Val   string `yaml:"val"`
	Test  string `yaml:"test"`
	NC    int    `yaml:"nc"`
	Names Names  `yaml:"names"`

	// file is where the description was loaded from
	file string
}

// Load reads a dataset description.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read dataset file: %v", types.ErrConfiguration, err)
	}
	ds, err := Parse(data)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	ds.file = abs
	return ds, nil
}

// Parse decodes a dataset description. Relative paths resolve against the
// current directory until the dataset is tied to a file by Load.
func Parse(data []byte) (*Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("%w: failed to parse dataset file: %v", types.ErrConfiguration, err)
	}
	if ds.NC != 0 && len(ds.Names) != 0 && ds.NC != len(ds.Names) {
		return nil, fmt.Errorf("%w: nc is %d but %d names are listed", types.ErrConfiguration, ds.NC, len(ds.Names))
	}
	return &ds, nil
}

// Root is the directory split paths are relative to.
func (d *Dataset) Root() string {
	base := "."
	if d.file != "" {
		base = filepath.Dir(d.file)
	}
	if d.Path == "" {
		return base
	}
	if filepath.IsAbs(d.Path) {
		return d.Path
	}
	return filepath.Join(base, d.Path)
}

// SplitDir resolves a split entry (train/val/test).
func (d *Dataset) SplitDir(split string) (string, error) {
	var p string
	switch split {
	case "train":
		p = d.Train
	case "val":
		p = d.Val
	case "test":
		p = d.Test
	default:
		return "", fmt.Errorf("%w: unknown split %q", types.ErrConfiguration, split)
	}
	if p == "" {
		return "", fmt.Errorf("%w: no %s field in dataset file, please add it with the path to the %s images", types.ErrConfiguration, split, split)
	}
	if filepath.IsAbs(p) {
		return p, nil
	}
	return filepath.Join(d.Root(), p), nil
}

// ImagesDir is <split>/images.
func (d *Dataset) ImagesDir(split string) (string, error) {
	dir, err := d.SplitDir(split)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "images"), nil
}

// TestImagesDir is the image directory of the test split.
func (d *Dataset) TestImagesDir() (string, error) {
	return d.ImagesDir("test")
}

// ClassName returns the name of a class id, or its number when unnamed.
func (d *Dataset) ClassName(id int) string {
	if id >= 0 && id < len(d.Names) {
		return d.Names[id]
	}
	return fmt.Sprint(id)
}

// LabelPathFor maps <split>/images/<stem>.<ext> to <split>/labels/<stem>.txt.
func LabelPathFor(imagePath string) string {
	dir := filepath.Dir(imagePath)
	base := filepath.Base(imagePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if filepath.Base(dir) == "images" {
		dir = filepath.Join(filepath.Dir(dir), "labels")
	}
	return filepath.Join(dir, stem+labels.LabelFileExt)
}

// GroundTruth reads the label file belonging to imagePath. A missing label
// file means the image has no objects.
func GroundTruth(imagePath string) (types.DetectionSet, error) {
	path := LabelPathFor(imagePath)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return types.DetectionSet{}, nil
	}
	return labels.ReadFile(path)
}

// IsImageFile checks the extension against ImageExts.
func IsImageFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range ImageExts {
		if ext == e {
			return true
		}
	}
	return false
}

// ListImages returns the images directly inside dir, sorted by name. A
// missing, non-directory or empty dir is an error.
func ListImages(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: images directory %s does not exist or is not a directory", types.ErrConfiguration, dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrIO, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: images directory %s is empty", types.ErrConfiguration, dir)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !IsImageFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
