package file

import (
	"path/filepath"
	"strings"
)

// ReplaceExt swaps the extension of path for ext (with or without a leading dot).
// A path without an extension gets ext appended.
func ReplaceExt(path, ext string) string {
	if path == "" {
		return path
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	old := filepath.Ext(path)
	if old == "" || old == filepath.Base(path) {
		// no extension, or a dotfile like ".env"
		return path + ext
	}
	return strings.TrimSuffix(path, old) + ext
}

// BaseName returns the file name of path without its extension.
func BaseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
