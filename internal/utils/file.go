package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// UploadExts are the extensions accepted from the upload form.
var UploadExts = []string{"png", "jpg", "jpeg"}

// GetFileExtension returns the lower-cased file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// IsUploadImage checks if a file name has an accepted upload extension
func IsUploadImage(filename string) bool {
	ext := GetFileExtension(filename)
	for _, imgExt := range UploadExts {
		if ext == imgExt {
			return true
		}
	}
	return false
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// DirExists checks if a directory exists
func DirExists(dirname string) bool {
	info, err := os.Stat(dirname)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// SanitizeFilename reduces a client supplied name to a safe base name.
func SanitizeFilename(filename string) string {
	// Browsers on Windows may send a full path
	filename = filename[strings.LastIndexAny(filename, `/\`)+1:]

	invalid := []string{":", "*", "?", "\"", "<", ">", "|", "\x00"}
	result := filename
	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}

	// Remove leading/trailing spaces and dots
	return strings.Trim(result, " .")
}

// FormatFileSize formats file size in human-readable format
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
