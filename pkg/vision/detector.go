// Package vision is an offline detection engine. It finds visually salient
// regions (strong local contrast) and reports them as detections of a single
// class, which is enough to exercise the export pipeline without a model
// server.
package vision

import (
	"context"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/safevision/safevision/pkg/processing"
	"github.com/safevision/safevision/pkg/types"
)

// DetectionConfig holds configuration for salient region detection
type DetectionConfig struct {
	EdgeThreshold   float64
	ContrastWeight  float64
	ColorWeight     float64
	MinSubjectRatio float64
	// OverlapIoU suppresses a region overlapping a better one by more than this.
	OverlapIoU float64
	MaxRegions int
	// WorkSize is the long side the image is scaled to before analysis.
	WorkSize int
	ClassID  int
	Label    string
}

// DefaultConfig returns the configuration used by New.
func DefaultConfig() DetectionConfig {
	return DetectionConfig{
		EdgeThreshold:   0.01,
		ContrastWeight:  0.3,
		ColorWeight:     0.2,
		MinSubjectRatio: 0.05,
		OverlapIoU:      0.3,
		MaxRegions:      10,
		WorkSize:        256,
		ClassID:         0,
		Label:           "object",
	}
}

// SaliencyEngine provides functionality to detect salient regions in images
type SaliencyEngine struct {
	config    DetectionConfig
	processor *processing.Processor
}

// New creates a new SaliencyEngine with default configuration
func New() *SaliencyEngine {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a new SaliencyEngine with custom configuration
func NewWithConfig(config DetectionConfig) *SaliencyEngine {
	if config.MaxRegions <= 0 {
		config.MaxRegions = 10
	}
	if config.WorkSize <= 0 {
		config.WorkSize = 256
	}
	return &SaliencyEngine{config: config, processor: processing.NewProcessor()}
}

// Region represents a rectangular region of interest in working pixels
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
	Score  float64
}

// Area returns the area of the region
func (r Region) Area() int {
	return r.Width * r.Height
}

// Box converts the region into a normalized center-form box for an image of
// the given size.
func (r Region) Box(width, height int) types.Box {
	w, h := float64(width), float64(height)
	return types.Box{
		CX: (float64(r.X) + float64(r.Width)/2) / w,
		CY: (float64(r.Y) + float64(r.Height)/2) / h,
		W:  float64(r.Width) / w,
		H:  float64(r.Height) / h,
	}
}

// Infer implements detection.Engine.
func (e *SaliencyEngine) Infer(ctx context.Context, img image.Image) (*types.Inference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	set, err := e.Detect(img)
	if err != nil {
		return nil, err
	}
	return &types.Inference{
		Detections: set,
		Rendered:   e.processor.Render(img, set, []string{e.config.Label}),
	}, nil
}

// Detect returns the salient regions of img as detections, best first.
func (e *SaliencyEngine) Detect(img image.Image) (types.DetectionSet, error) {
	work := img
	b := img.Bounds()
	if b.Dx() > e.config.WorkSize || b.Dy() > e.config.WorkSize {
		if b.Dx() >= b.Dy() {
			work = imaging.Resize(img, e.config.WorkSize, 0, imaging.Box)
		} else {
			work = imaging.Resize(img, 0, e.config.WorkSize, imaging.Box)
		}
	}
	wb := work.Bounds()
	width, height := wb.Dx(), wb.Dy()

	regions := e.DetectRegions(work)
	set := types.DetectionSet{}
	if len(regions) == 0 {
		return set, nil
	}
	best := regions[0].Score
	for _, r := range regions {
		conf := 1.0
		if best > 0 {
			conf = r.Score / best
		}
		set = append(set, types.Detection{
			ClassID:    e.config.ClassID,
			Box:        r.Box(width, height),
			Confidence: conf,
			Label:      e.config.Label,
		})
	}
	return set, nil
}

// DetectRegions analyzes an image and returns non-overlapping regions of
// interest sorted by score.
func (e *SaliencyEngine) DetectRegions(img image.Image) []Region {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	saliencyMap := e.calculateSaliencyMap(img)
	regions := e.findImportantRegions(saliencyMap, width, height)
	regions = e.filterAndScoreRegions(regions, width, height)
	regions = suppressOverlaps(regions, e.config.OverlapIoU)

	if len(regions) > e.config.MaxRegions {
		regions = regions[:e.config.MaxRegions]
	}
	return regions
}

func (e *SaliencyEngine) calculateSaliencyMap(img image.Image) [][]float64 {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	saliencyMap := make([][]float64, height)
	for i := range saliencyMap {
		saliencyMap[i] = make([]float64, width)
	}

	neighbors := [8][2]int{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}

	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			r1, g1, b1, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()

			var edgeStrength float64
			for _, offset := range neighbors {
				r2, g2, b2, _ := img.At(x+offset[0]+bounds.Min.X, y+offset[1]+bounds.Min.Y).RGBA()
				dr := float64(r1) - float64(r2)
				dg := float64(g1) - float64(g2)
				db := float64(b1) - float64(b2)
				edgeStrength += math.Sqrt(dr*dr + dg*dg + db*db)
			}
			edgeStrength /= 8.0 * 65535.0

			brightness := (float64(r1) + float64(g1) + float64(b1)) / (3.0 * 65535.0)
			saliencyMap[y][x] = e.config.ContrastWeight*edgeStrength + e.config.ColorWeight*brightness
		}
	}

	return saliencyMap
}

func (e *SaliencyEngine) findImportantRegions(saliencyMap [][]float64, width, height int) []Region {
	var regions []Region

	windowSizes := []int{width / 12, width / 8, width / 6, width / 4, width / 3}

	for _, windowSize := range windowSizes {
		if windowSize < 8 || windowSize > height {
			continue
		}
		step := max(windowSize/4, 1)

		for y := 0; y <= height-windowSize; y += step {
			for x := 0; x <= width-windowSize; x += step {
				score := calculateRegionScore(saliencyMap, x, y, windowSize, windowSize)
				if score > e.config.EdgeThreshold {
					regions = append(regions, Region{
						X:      x,
						Y:      y,
						Width:  windowSize,
						Height: windowSize,
						Score:  score,
					})
				}
			}
		}
	}

	return regions
}

func calculateRegionScore(saliencyMap [][]float64, x, y, width, height int) float64 {
	var totalScore float64
	count := 0

	for ry := y; ry < y+height && ry < len(saliencyMap); ry++ {
		for rx := x; rx < x+width && rx < len(saliencyMap[ry]); rx++ {
			totalScore += saliencyMap[ry][rx]
			count++
		}
	}

	if count == 0 {
		return 0
	}
	return totalScore / float64(count)
}

func (e *SaliencyEngine) filterAndScoreRegions(regions []Region, imageWidth, imageHeight int) []Region {
	minArea := int(float64(imageWidth*imageHeight) * e.config.MinSubjectRatio)

	filtered := regions[:0]
	for _, region := range regions {
		if region.Area() >= minArea {
			filtered = append(filtered, region)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Score > filtered[j].Score
	})
	return filtered
}

// suppressOverlaps keeps the best-scoring region of every overlapping
// cluster. regions must be sorted by descending score.
func suppressOverlaps(regions []Region, maxIoU float64) []Region {
	var kept []Region
	for _, r := range regions {
		overlaps := false
		for _, k := range kept {
			if regionIoU(r, k) > maxIoU {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, r)
		}
	}
	return kept
}

func regionIoU(a, b Region) float64 {
	x0 := max(a.X, b.X)
	y0 := max(a.Y, b.Y)
	x1 := min(a.X+a.Width, b.X+b.Width)
	y1 := min(a.Y+a.Height, b.Y+b.Height)
	if x1 <= x0 || y1 <= y0 {
		return 0
	}
	inter := (x1 - x0) * (y1 - y0)
	return float64(inter) / float64(a.Area()+b.Area()-inter)
}
