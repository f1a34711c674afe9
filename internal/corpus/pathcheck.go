package corpus

import (
	"path/filepath"
	"strings"

	"github.com/hpungsan/qlib/internal/errors"
)

// ValidateRelDir rejects a corpus-relative directory that is absolute or
// escapes its parent with "..".
func ValidateRelDir(dir string) error {
	if dir == "" {
		return errors.NewInvalidRequest("directory is required")
	}
	if filepath.IsAbs(dir) {
		return errors.NewInvalidRequest("directory must be relative: " + dir)
	}
	if containsTraversal(dir) {
		return errors.NewInvalidRequest("directory must not contain traversal (..): " + dir)
	}
	return nil
}

// containsTraversal checks if path contains a ".." component.
func containsTraversal(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

// SanitizeSegment makes s safe to use as a single path segment.
// Separators and ".." become dashes; control characters are dropped.
func SanitizeSegment(s string) string {
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, "\\", "-")
	s = strings.ReplaceAll(s, "..", "-")

	var b strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			b.WriteRune(r)
		}
	}
	s = b.String()

	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(strings.TrimSpace(s), "-")
	if s == "" {
		return "unnamed"
	}
	return s
}

// SanitizeRelPath sanitizes each segment of a slash-separated relative path.
func SanitizeRelPath(p string) string {
	parts := strings.Split(filepath.ToSlash(p), "/")
	out := parts[:0]
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		out = append(out, SanitizeSegment(part))
	}
	if len(out) == 0 {
		return "unnamed"
	}
	return filepath.Join(out...)
}
