package ingest

import (
	"path/filepath"
	"strings"
)

// matchGlob matches a slash-separated relative path against a glob pattern.
// Unlike filepath.Match, ** spans path separators.
func matchGlob(pattern, path string) bool {
	if head, rest, ok := strings.Cut(pattern, "**"); ok {
		dir, tail, nested := strings.Cut(rest, "**")
		if !nested {
			return matchRecursive(strings.TrimSuffix(head, "/"), strings.TrimPrefix(rest, "/"), path)
		}
		// "**/SEG/**" names SEG as a path component anywhere
		if head == "" && tail == "" {
			seg := strings.Trim(dir, "/")
			return strings.HasPrefix(path, seg+"/") || strings.Contains(path, "/"+seg+"/")
		}
	}

	if ok, _ := filepath.Match(pattern, path); ok {
		return true
	}
	ok, _ := filepath.Match(pattern, filepath.Base(path))
	return ok
}

// matchRecursive handles the "prefix/**/suffix" pattern form.
func matchRecursive(prefix, suffix, path string) bool {
	if prefix != "" && !strings.HasPrefix(path, prefix) {
		return false
	}

	switch {
	case suffix == "":
		return true

	case strings.Contains(suffix, "*"):
		// A wildcard suffix matches the basename or whatever follows the
		// prefix
		if ok, _ := filepath.Match(suffix, filepath.Base(path)); ok {
			return true
		}
		rest := strings.TrimPrefix(strings.TrimPrefix(path, prefix), "/")
		ok, _ := filepath.Match(suffix, rest)
		return ok

	default:
		return strings.HasSuffix(path, suffix) || strings.Contains(path, suffix)
	}
}
