package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"
	"sync"

	"github.com/cyclopcam/logs"

	"github.com/safevision/safevision/pkg/client"
	"github.com/safevision/safevision/pkg/processing"
	"github.com/safevision/safevision/pkg/types"
)

// DefaultConfidence is the default minimum confidence for a detection.
const DefaultConfidence = 0.5

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

const promptTemplate = `You are an object detector.

Return JSON only:
{
  "objects": [
    {"label": "string", "confidence": 0.0, "box": {"cx": 0.0, "cy": 0.0, "w": 0.0, "h": 0.0}}
  ]
}

HARD RULES
- One entry per visible object instance.%s
- "box" is the object's bounding box in center form: cx,cy is the box center, w,h its size.
- All coordinates are normalized to [0,1] relative to the image width and height (NOT pixels).
- confidence is your certainty in [0,1].
- If nothing is found, return {"objects": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Engine turns an image into detections and an annotated rendering.
type Engine interface {
	Infer(ctx context.Context, img image.Image) (*types.Inference, error)
}

// Config controls how a Detector queries its model.
type Config struct {
	Model string
	// Prompt overrides the generated prompt.
	Prompt string
	// Confidence drops objects scored below it. Objects without a score
	// (confidence 0) are kept.
	Confidence float64

	SendFormat  string
	SendSize    int
	SendQuality int
}

// DefaultConfig returns the settings used by the commands.
func DefaultConfig(model string) Config {
	return Config{
		Model:       model,
		Confidence:  DefaultConfidence,
		SendFormat:  "jpg",
		SendSize:    1536,
		SendQuality: 85,
	}
}

// Detector is an Engine backed by a vision model server. It is safe for
// concurrent use.
type Detector struct {
	client    client.VisionClient
	processor *processing.Processor
	config    Config
	log       logs.Log

	mu    sync.Mutex
	names []string
	fixed bool
}

// NewDetector creates a detector. names is the dataset's class list; labels
// outside it are dropped. With no names, classes are numbered in the order
// they are first seen.
func NewDetector(c client.VisionClient, names []string, config Config, log logs.Log) *Detector {
	if config.Confidence <= 0 {
		config.Confidence = DefaultConfidence
	}
	if config.SendFormat == "" {
		config.SendFormat = "jpg"
	}
	if config.SendQuality == 0 {
		config.SendQuality = 85
	}
	return &Detector{
		client:    c,
		processor: processing.NewProcessor(),
		config:    config,
		log:       log,
		names:     append([]string(nil), names...),
		fixed:     len(names) > 0,
	}
}

// Names returns the class names known to the detector.
func (d *Detector) Names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.names...)
}

// Prompt returns the prompt sent with every image.
func (d *Detector) Prompt() string {
	if d.config.Prompt != "" {
		return d.config.Prompt
	}
	if !d.fixed {
		return fmt.Sprintf(promptTemplate, "")
	}
	return fmt.Sprintf(promptTemplate, "\n- label must be one of: "+strings.Join(d.names, ", ")+".")
}

// Infer runs the model over img.
func (d *Detector) Infer(ctx context.Context, img image.Image) (*types.Inference, error) {
	imgB64, err := d.processor.PrepareImageForModel(img, d.config.SendFormat, d.config.SendSize, d.config.SendQuality)
	if err != nil {
		return nil, fmt.Errorf("prepare image: %w", err)
	}

	objects, err := d.client.DetectObjects(ctx, d.config.Model, d.Prompt(), imgB64)
	if err != nil {
		if !errors.Is(err, client.ErrMalformedResponse) {
			return nil, err
		}
		if d.log != nil {
			d.log.Warnf("Model reply could not be parsed, treating as no detections: %v", err)
		}
	}

	b := img.Bounds()
	set := d.toDetections(objects, b.Dx(), b.Dy())
	return &types.Inference{
		Detections: set,
		Rendered:   d.processor.Render(img, set, d.Names()),
	}, nil
}

// TestVision tests if the model can actually see the image with a simple prompt
func (d *Detector) TestVision(ctx context.Context, img image.Image) (string, error) {
	imgB64, err := d.processor.PrepareImageForModel(img, d.config.SendFormat, d.config.SendSize, d.config.SendQuality)
	if err != nil {
		return "", err
	}
	return d.client.SimpleQuery(ctx, d.config.Model, SimpleTestPrompt, imgB64)
}

func (d *Detector) toDetections(objects []types.RawObject, imgW, imgH int) types.DetectionSet {
	set := types.DetectionSet{}
	for _, obj := range objects {
		if obj.Confidence > 0 && obj.Confidence < d.config.Confidence {
			continue
		}
		id, name, ok := d.classFor(obj.Label)
		if !ok {
			if d.log != nil {
				d.log.Infof("Dropping object with unknown label %q", obj.Label)
			}
			continue
		}
		set = append(set, types.Detection{
			ClassID:    id,
			Box:        normalizeBox(obj.Box, imgW, imgH),
			Confidence: obj.Confidence,
			Label:      name,
		})
	}
	return set
}

func (d *Detector) classFor(label string) (int, string, bool) {
	key := normalizeLabel(label)
	if key == "" {
		return 0, "", false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for i, n := range d.names {
		if normalizeLabel(n) == key {
			return i, n, true
		}
	}
	if id, err := strconv.Atoi(key); err == nil && id >= 0 && id < len(d.names) {
		return id, d.names[id], true
	}
	if d.fixed {
		return 0, "", false
	}
	d.names = append(d.names, key)
	return len(d.names) - 1, key, true
}

func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// normalizeBox converts a box the model reported in pixels into normalized
// form. Normalized boxes pass through unchanged, even when slightly out of
// range.
func normalizeBox(b types.Box, imgW, imgH int) types.Box {
	if imgW <= 0 || imgH <= 0 {
		return b
	}
	if b.CX > 2 || b.CY > 2 || b.W > 2 || b.H > 2 {
		return types.Box{
			CX: b.CX / float64(imgW),
			CY: b.CY / float64(imgH),
			W:  b.W / float64(imgW),
			H:  b.H / float64(imgH),
		}
	}
	return b
}
