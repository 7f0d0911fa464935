package types

import "image"

// Box is a bounding box in normalized center form: every field is a fraction
// of the image width or height.
type Box struct {
	CX float64 `json:"cx"`
	CY float64 `json:"cy"`
	W  float64 `json:"w"`
	H  float64 `json:"h"`
}

// Corners returns the normalized top-left and bottom-right corners.
func (b Box) Corners() (x0, y0, x1, y1 float64) {
	return b.CX - b.W/2, b.CY - b.H/2, b.CX + b.W/2, b.CY + b.H/2
}

// IoU returns the intersection over union of two boxes.
func (b Box) IoU(o Box) float64 {
	ax0, ay0, ax1, ay1 := b.Corners()
	bx0, by0, bx1, by1 := o.Corners()
	iw := min(ax1, bx1) - max(ax0, bx0)
	ih := min(ay1, by1) - max(ay0, by0)
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := b.W*b.H + o.W*o.H - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Detection is one object instance reported by an engine.
// Only ClassID and Box are written to label files.
type Detection struct {
	ClassID    int     `json:"class_id"`
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence,omitempty"`
	Label      string  `json:"label,omitempty"`
}

// DetectionSet is the ordered list of detections for one image.
type DetectionSet []Detection

// RawObject is an object as described by a vision model, before it has been
// mapped onto a dataset class.
type RawObject struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// Inference is the output of one engine call.
type Inference struct {
	Detections DetectionSet
	Rendered   image.Image
}

// ArtifactPaths are the files produced for one input image.
type ArtifactPaths struct {
	Image string `json:"image"`
	Label string `json:"label"`
}
