package vision

import (
	"context"
	"image"
	"image/color"
	"testing"
)

// createTestImage creates a dark image with a bright square in the middle third
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x > width/3 && x < 2*width/3 && y > height/3 && y < 2*height/3 {
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			} else {
				img.Set(x, y, color.RGBA{64, 64, 64, 255})
			}
		}
	}
	return img
}

func TestNew(t *testing.T) {
	engine := New()
	if engine == nil {
		t.Fatal("New() returned nil")
	}
	if engine.config.EdgeThreshold != 0.01 {
		t.Errorf("Expected edge threshold 0.01, got %f", engine.config.EdgeThreshold)
	}
	if engine.config.Label != "object" {
		t.Errorf("Expected label object, got %q", engine.config.Label)
	}
}

func TestRegionBox(t *testing.T) {
	region := Region{X: 10, Y: 20, Width: 100, Height: 80}

	if region.Area() != 8000 {
		t.Errorf("Expected area 8000, got %d", region.Area())
	}

	box := region.Box(200, 200)
	if box.CX != 0.3 || box.CY != 0.3 || box.W != 0.5 || box.H != 0.4 {
		t.Errorf("Unexpected box %+v", box)
	}
}

func TestDetectFindsBrightSquare(t *testing.T) {
	engine := New()
	set, err := engine.Detect(createTestImage(400, 300))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(set) == 0 {
		t.Fatal("Expected at least one detection")
	}
	if len(set) > engine.config.MaxRegions {
		t.Errorf("Expected at most %d detections, got %d", engine.config.MaxRegions, len(set))
	}

	best := set[0]
	if best.Confidence != 1 {
		t.Errorf("Expected best confidence 1, got %f", best.Confidence)
	}
	if best.Box.CX < 0.25 || best.Box.CX > 0.75 || best.Box.CY < 0.25 || best.Box.CY > 0.75 {
		t.Errorf("Best detection should sit on the bright square, got %+v", best.Box)
	}
	for i, d := range set {
		if d.ClassID != 0 || d.Label != "object" {
			t.Errorf("Detection %d has class %d/%q", i, d.ClassID, d.Label)
		}
		x0, y0, x1, y1 := d.Box.Corners()
		if x0 < -1e-9 || y0 < -1e-9 || x1 > 1+1e-9 || y1 > 1+1e-9 {
			t.Errorf("Detection %d leaves the image: %+v", i, d.Box)
		}
		for j := 0; j < i; j++ {
			if d.Box.IoU(set[j].Box) > engine.config.OverlapIoU+1e-9 {
				t.Errorf("Detections %d and %d overlap", j, i)
			}
		}
	}
}

func TestDetectBlackImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 120, 80))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	set, err := New().Detect(img)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(set) != 0 {
		t.Errorf("Expected no detections on a black image, got %d", len(set))
	}
}

func TestInfer(t *testing.T) {
	img := createTestImage(200, 150)
	inf, err := New().Infer(context.Background(), img)
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if inf.Rendered == nil || inf.Rendered.Bounds().Dx() != 200 || inf.Rendered.Bounds().Dy() != 150 {
		t.Errorf("Rendered image has wrong bounds")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().Infer(ctx, img); err == nil {
		t.Error("Expected cancelled context to fail")
	}
}
