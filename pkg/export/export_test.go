package export

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/safevision/safevision/pkg/labels"
	"github.com/safevision/safevision/pkg/processing"
	"github.com/safevision/safevision/pkg/types"
)

func createTestImage(width, height int, fill color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, fill)
		}
	}
	img.SetNRGBA(0, 0, color.NRGBA{1, 2, 3, 255})
	return img
}

func catSet() types.DetectionSet {
	return types.DetectionSet{
		{ClassID: 0, Box: types.Box{CX: 0.5, CY: 0.5, W: 0.2, H: 0.3}},
		{ClassID: 2, Box: types.Box{CX: 0.1, CY: 0.9, W: 0.05, H: 0.05}},
	}
}

func TestPaths(t *testing.T) {
	p, err := Paths("photo.JPEG", "/out")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/out", "photo.txt"), p.Label)
	require.Equal(t, filepath.Join("/out", "photo.JPEG"), p.Image)

	p, err = Paths("/some/where/archive.tar.png", "out")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("out", "archive.tar.txt"), p.Label)
	require.Equal(t, filepath.Join("out", "archive.tar.png"), p.Image)

	p, err = Paths(`C:\Users\me\dog.jpg`, "out")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("out", "dog.jpg"), p.Image)

	for _, bad := range []string{"", "dir/", ".", ".."} {
		_, err := Paths(bad, "out")
		require.ErrorIs(t, err, types.ErrInvalidInput, "input %q", bad)
	}
}

func TestStem(t *testing.T) {
	require.Equal(t, "photo", Stem("photo.JPEG"))
	require.Equal(t, "noext", Stem("dir/noext"))
	require.Equal(t, ".hidden", Stem(".hidden"))
}

func TestExportCatScenario(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	rendered := createTestImage(32, 24, color.NRGBA{200, 10, 10, 255})

	paths, err := New().Export("cat.png", catSet(), rendered, out)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(out, "cat.txt"), paths.Label)
	require.Equal(t, filepath.Join(out, "cat.png"), paths.Image)

	data, err := os.ReadFile(paths.Label)
	require.NoError(t, err)
	require.Equal(t, "0 0.5 0.5 0.2 0.3\n2 0.1 0.9 0.05 0.05\n", string(data))

	got, err := processing.NewProcessor().LoadImage(paths.Image)
	require.NoError(t, err)
	require.Equal(t, rendered.Bounds(), got.Bounds())
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			require.Equal(t, rendered.NRGBAAt(x, y), color.NRGBAModel.Convert(got.At(x, y)))
		}
	}
}

func TestExportRoundTrip(t *testing.T) {
	sets := []types.DetectionSet{
		{},
		catSet(),
		{
			{ClassID: 7, Box: types.Box{CX: 0.123456789012345, CY: 1e-7, W: 1, H: 0}},
			{ClassID: 3, Box: types.Box{CX: 1.02, CY: -0.01, W: 0.3333333333333333, H: 0.9999}},
			{ClassID: 7, Box: types.Box{CX: 0.25, CY: 0.75, W: 0.5, H: 0.5}},
		},
	}
	out := t.TempDir()
	img := createTestImage(8, 8, color.NRGBA{0, 0, 0, 255})
	for _, set := range sets {
		paths, err := New().Export("img.png", set, img, out)
		require.NoError(t, err)
		back, err := labels.ReadFile(paths.Label)
		require.NoError(t, err)
		require.Len(t, back, len(set))
		for i := range set {
			require.Equal(t, set[i].ClassID, back[i].ClassID)
			require.Equal(t, set[i].Box, back[i].Box)
		}
	}
}

func TestExportEmptySet(t *testing.T) {
	out := t.TempDir()
	paths, err := New().Export("empty.jpg", nil, createTestImage(8, 8, color.NRGBA{9, 9, 9, 255}), out)
	require.NoError(t, err)

	info, err := os.Stat(paths.Label)
	require.NoError(t, err)
	require.Equal(t, int64(0), info.Size())

	info, err = os.Stat(paths.Image)
	require.NoError(t, err)
	require.NotZero(t, info.Size())
}

func TestExportExistingDirectoryUntouched(t *testing.T) {
	out := t.TempDir()
	other := filepath.Join(out, "keep.me")
	require.NoError(t, os.WriteFile(other, []byte("hello"), 0o644))

	e := New()
	img := createTestImage(4, 4, color.NRGBA{1, 1, 1, 255})
	_, err := e.Export("a.png", catSet(), img, out)
	require.NoError(t, err)
	_, err = e.Export("a.png", catSet(), img, out)
	require.NoError(t, err)

	data, err := os.ReadFile(other)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Len(t, entries, 3)
}

func TestExportOverwrites(t *testing.T) {
	out := t.TempDir()
	e := New()

	_, err := e.Export("dog.png", catSet(), createTestImage(40, 40, color.NRGBA{255, 0, 0, 255}), out)
	require.NoError(t, err)

	second := types.DetectionSet{{ClassID: 5, Box: types.Box{CX: 0.4, CY: 0.4, W: 0.1, H: 0.1}}}
	paths, err := e.Export("dog.png", second, createTestImage(10, 6, color.NRGBA{0, 255, 0, 255}), out)
	require.NoError(t, err)

	data, err := os.ReadFile(paths.Label)
	require.NoError(t, err)
	require.Equal(t, "5 0.4 0.4 0.1 0.1\n", string(data))

	img, err := processing.NewProcessor().LoadImage(paths.Image)
	require.NoError(t, err)
	require.Equal(t, 10, img.Bounds().Dx())
	require.Equal(t, 6, img.Bounds().Dy())
}

func TestExportDirectoryBlockedByFile(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "out")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := New().Export("cat.png", catSet(), createTestImage(4, 4, color.NRGBA{}), blocker)
	require.ErrorIs(t, err, types.ErrConfiguration)

	_, err = New().Export("cat.png", catSet(), createTestImage(4, 4, color.NRGBA{}), filepath.Join(blocker, "nested"))
	require.ErrorIs(t, err, types.ErrConfiguration)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestExportRejectsMalformedDetections(t *testing.T) {
	out := filepath.Join(t.TempDir(), "never")
	bad := append(catSet(), types.Detection{ClassID: -1, Box: types.Box{CX: 0.5, CY: 0.5, W: 0.1, H: 0.1}})

	_, err := New().Export("cat.png", bad, createTestImage(4, 4, color.NRGBA{}), out)
	require.ErrorIs(t, err, types.ErrInvalidInput)

	_, statErr := os.Stat(out)
	require.True(t, os.IsNotExist(statErr), "nothing should be written for a malformed set")
}

func TestExportUnknownExtension(t *testing.T) {
	out := t.TempDir()
	_, err := New().Export("scan.xyz", catSet(), createTestImage(4, 4, color.NRGBA{}), out)
	require.ErrorIs(t, err, types.ErrInvalidInput)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestExportSeparateLabelDir(t *testing.T) {
	root := t.TempDir()
	imagesDir := filepath.Join(root, "predictions", "images")
	labelsDir := filepath.Join(root, "predictions", "labels")

	e := NewWithOptions(processing.NewProcessor(), Options{LabelDir: labelsDir})
	paths, err := e.Export("x/y/frame.jpg", catSet(), createTestImage(16, 16, color.NRGBA{50, 50, 50, 255}), imagesDir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(imagesDir, "frame.jpg"), paths.Image)
	require.Equal(t, filepath.Join(labelsDir, "frame.txt"), paths.Label)
	require.FileExists(t, paths.Image)
	require.FileExists(t, paths.Label)
}

type failingWriter struct{}

func (failingWriter) CheckFormat(path string) error        { return processing.CheckFormat(path) }
func (failingWriter) SaveImage(image.Image, string) error { return errors.New("disk full") }

func TestExportImageWriteFailure(t *testing.T) {
	out := t.TempDir()
	e := NewWithOptions(failingWriter{}, Options{})
	_, err := e.Export("cat.png", catSet(), createTestImage(4, 4, color.NRGBA{}), out)
	require.ErrorIs(t, err, types.ErrIO)
	require.NoFileExists(t, filepath.Join(out, "cat.txt"))
}

func TestExportLabelWriteFailureLeavesImage(t *testing.T) {
	out := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(out, "cat.txt"), 0o755))

	_, err := New().Export("cat.png", catSet(), createTestImage(4, 4, color.NRGBA{}), out)
	require.ErrorIs(t, err, types.ErrIO)
	require.FileExists(t, filepath.Join(out, "cat.png"))
}

func TestExportNilImage(t *testing.T) {
	_, err := New().Export("cat.png", catSet(), nil, t.TempDir())
	require.ErrorIs(t, err, types.ErrInvalidInput)
}
