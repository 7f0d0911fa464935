package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/safevision/safevision/pkg/types"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadListNames(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "yolo_params.yaml")
	writeFile(t, cfg, "train: data/train\nval: data/val\ntest: data/test\nnc: 3\nnames: ['OxygenTank', 'NitrogenTank', 'FirstAidBox']\n")

	ds, err := Load(cfg)
	require.NoError(t, err)
	require.Equal(t, Names{"OxygenTank", "NitrogenTank", "FirstAidBox"}, ds.Names)

	testDir, err := ds.TestImagesDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "data", "test", "images"), testDir)

	require.Equal(t, "NitrogenTank", ds.ClassName(1))
	require.Equal(t, "9", ds.ClassName(9))
}

func TestLoadMapNamesAndPath(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "conf", "data.yaml")
	writeFile(t, cfg, "path: ../sets\ntest: test\nnames:\n  0: person\n  2: helmet\n")

	ds, err := Load(cfg)
	require.NoError(t, err)
	require.Equal(t, Names{"person", "class1", "helmet"}, ds.Names)

	testDir, err := ds.SplitDir("test")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "sets", "test"), testDir)

	abs := filepath.Join(dir, "abs")
	ds.Test = abs
	testDir, err = ds.SplitDir("test")
	require.NoError(t, err)
	require.Equal(t, abs, testDir)
}

func TestMissingTest(t *testing.T) {
	ds, err := Parse([]byte("train: a\n"))
	require.NoError(t, err)
	_, err = ds.TestImagesDir()
	require.ErrorIs(t, err, types.ErrConfiguration)

	_, err = ds.SplitDir("holdout")
	require.ErrorIs(t, err, types.ErrConfiguration)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("names: [a, b]\nnc: 3\n"))
	require.ErrorIs(t, err, types.ErrConfiguration)

	_, err = Parse([]byte("names: 5\n"))
	require.ErrorIs(t, err, types.ErrConfiguration)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, types.ErrConfiguration)
}

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.PNG", "a.jpg", "c.jpeg", "notes.txt", "d.webp"} {
		writeFile(t, filepath.Join(dir, name), "x")
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o755))

	files, err := ListImages(dir)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "a.jpg"),
		filepath.Join(dir, "b.PNG"),
		filepath.Join(dir, "c.jpeg"),
	}, files)

	_, err = ListImages(filepath.Join(dir, "nope"))
	require.ErrorIs(t, err, types.ErrConfiguration)

	_, err = ListImages(filepath.Join(dir, "a.jpg"))
	require.ErrorIs(t, err, types.ErrConfiguration)

	_, err = ListImages(t.TempDir())
	require.ErrorIs(t, err, types.ErrConfiguration)
}

func TestGroundTruth(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "test", "images", "frame1.png")
	require.Equal(t, filepath.Join(dir, "test", "labels", "frame1.txt"), LabelPathFor(img))
	require.Equal(t, filepath.Join(dir, "flat", "x.txt"), LabelPathFor(filepath.Join(dir, "flat", "x.jpg")))

	set, err := GroundTruth(img)
	require.NoError(t, err)
	require.Empty(t, set)

	writeFile(t, LabelPathFor(img), "1 0.5 0.5 0.25 0.25\n")
	set, err = GroundTruth(img)
	require.NoError(t, err)
	require.Len(t, set, 1)
	require.Equal(t, 1, set[0].ClassID)
}
