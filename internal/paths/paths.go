// Package paths expands file paths taken from configuration and flags.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome replaces a leading ~ with the user's home directory. Paths
// of the form ~user are returned unchanged.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return filepath.Join(home, path[2:])
	}
	return path
}

// Resolve expands ~ and anchors a relative path at base. Absolute paths,
// and any path when base is empty, are returned after expansion only.
func Resolve(base, path string) string {
	if path == "" {
		return ""
	}
	path = ExpandHome(path)
	if base == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(ExpandHome(base), path)
}
