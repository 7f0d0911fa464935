package processing

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"

	"github.com/fogleman/gg"

	"github.com/safevision/safevision/pkg/types"
)

// palette cycles per class id
var palette = []color.NRGBA{
	{255, 56, 56, 255},
	{255, 157, 151, 255},
	{255, 112, 31, 255},
	{255, 178, 29, 255},
	{207, 210, 49, 255},
	{72, 249, 10, 255},
	{146, 204, 23, 255},
	{61, 219, 134, 255},
	{26, 147, 52, 255},
	{0, 212, 187, 255},
	{44, 153, 168, 255},
	{0, 194, 255, 255},
	{52, 69, 147, 255},
	{100, 115, 255, 255},
	{0, 24, 236, 255},
	{132, 56, 255, 255},
	{82, 0, 133, 255},
	{203, 56, 255, 255},
	{255, 149, 200, 255},
	{255, 55, 199, 255},
}

// ClassColor returns the outline colour used for a class.
func ClassColor(classID int) color.NRGBA {
	if classID < 0 {
		classID = -classID
	}
	return palette[classID%len(palette)]
}

// Render draws every detection onto a copy of img and returns the copy.
// Boxes are clipped to the image for drawing only; names maps class ids to
// captions and may be nil.
func (p *Processor) Render(img image.Image, set types.DetectionSet, names []string) image.Image {
	dc := gg.NewContextForImage(img)
	w, h := float64(dc.Width()), float64(dc.Height())
	stroke := math.Max(2, 0.003*math.Min(w, h))

	for _, d := range set {
		x0, y0, x1, y1 := d.Box.Corners()
		px0, py0 := clamp(x0, 0, 1)*w, clamp(y0, 0, 1)*h
		px1, py1 := clamp(x1, 0, 1)*w, clamp(y1, 0, 1)*h
		if px1 <= px0 || py1 <= py0 {
			continue
		}

		c := ClassColor(d.ClassID)
		dc.SetColor(c)
		dc.SetLineWidth(stroke)
		dc.DrawRectangle(px0, py0, px1-px0, py1-py0)
		dc.Stroke()

		caption := Caption(d, names)
		tw, th := dc.MeasureString(caption)
		ty := py0 - th - 4
		if ty < 0 {
			ty = py0
		}
		dc.SetColor(c)
		dc.DrawRectangle(px0, ty, tw+6, th+4)
		dc.Fill()
		dc.SetColor(color.White)
		dc.DrawStringAnchored(caption, px0+3, ty+2, 0, 1)
	}

	return dc.Image()
}

// Caption is the text drawn above a box: the class name (or id) and the
// confidence when the engine reported one.
func Caption(d types.Detection, names []string) string {
	label := d.Label
	if label == "" {
		if d.ClassID >= 0 && d.ClassID < len(names) {
			label = names[d.ClassID]
		} else {
			label = strconv.Itoa(d.ClassID)
		}
	}
	if d.Confidence > 0 {
		return fmt.Sprintf("%s %.2f", label, d.Confidence)
	}
	return label
}
