package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsUploadImage(t *testing.T) {
	require.True(t, IsUploadImage("a.png"))
	require.True(t, IsUploadImage("B.JPEG"))
	require.False(t, IsUploadImage("c.gif"))
	require.False(t, IsUploadImage("noext"))
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"cat.png":             "cat.png",
		"../../etc/passwd":    "passwd",
		`C:\Users\me\dog.jpg`: "dog.jpg",
		"what?.png":           "what_.png",
		" .hidden. ":          "hidden",
		"..":                  "",
	}
	for in, want := range tests {
		require.Equal(t, want, SanitizeFilename(in), in)
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	require.True(t, FileExists(file))
	require.False(t, FileExists(dir))
	require.True(t, DirExists(dir))
	require.False(t, DirExists(file))
	require.False(t, DirExists(filepath.Join(dir, "missing")))
}

func TestFormatFileSize(t *testing.T) {
	require.Equal(t, "512 B", FormatFileSize(512))
	require.Equal(t, "1.5 KB", FormatFileSize(1536))
	require.Equal(t, "2.0 MB", FormatFileSize(2<<20))
}
