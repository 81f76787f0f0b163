package saver

import (
	"path/filepath"
	"strings"
)

// DefaultNativeExtension is the extension of the host's multi-layer format.
const DefaultNativeExtension = ".xcf"

// compression suffixes stripped before classifying the extension
var compressionExts = map[string]bool{
	".gz":  true,
	".bz2": true,
}

// IsNativeFormat reports whether path denotes the host's native multi-layer
// format. A single recognized compression suffix is stripped first, so
// "img.xcf.gz" still classifies as native.
func (c *Coordinator) IsNativeFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if compressionExts[ext] {
		path = strings.TrimSuffix(path, filepath.Ext(path))
		ext = strings.ToLower(filepath.Ext(path))
	}
	return ext == c.nativeExt
}
