package utils

import (
	"os"
	"path"
	"path/filepath"
	"strings"
)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// GetFileExtension returns the lowercase extension of a file name or URL
// path, without the dot. Query strings and fragments are ignored.
func GetFileExtension(name string) string {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	ext := path.Ext(name)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// IsImageFile checks if a file has an image extension the resolver decodes
func IsImageFile(filename string) bool {
	return FormatFromName(filename) != ""
}

// FormatFromName maps a file extension to a format tag, or "" when the
// extension is not a known image type.
func FormatFromName(name string) string {
	switch GetFileExtension(name) {
	case "jpg", "jpeg":
		return "jpg"
	case "png":
		return "png"
	case "webp":
		return "webp"
	default:
		return ""
	}
}

// SanitizeFilename removes or replaces invalid characters in filenames
func SanitizeFilename(filename string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := filename

	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}

	// Remove leading/trailing spaces and dots
	result = strings.Trim(result, " .")

	return result
}

// SnapshotPath builds the output path for a rendered scene of image id.
func SnapshotPath(dir, id, suffix, format string) string {
	base := SanitizeFilename(strings.TrimSuffix(path.Base(id), path.Ext(id)))
	if base == "" {
		base = "scene"
	}
	if suffix != "" {
		base += "_" + suffix
	}
	return filepath.Join(dir, base+"."+strings.ToLower(format))
}
