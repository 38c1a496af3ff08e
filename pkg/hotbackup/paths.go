package hotbackup

import (
	"path/filepath"
	"strings"
)

// canonicalPath resolves p to an absolute, cleaned path. It best-effort
// resolves symlinks in the existing portion of the path; a path (or part of
// it) that doesn't exist yet — e.g. a rename target the copier hasn't
// produced — falls back to the cleaned absolute form rather than failing,
// since canonicalization must still succeed for paths the filesystem
// hasn't caught up with.
func canonicalPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

// hasPrefixPath reports whether path is prefix or a descendant of prefix,
// respecting path component boundaries (so "/src2" is not considered under
// prefix "/src").
func hasPrefixPath(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+string(filepath.Separator))
}

// translatePrefix rewrites path's leading fromPrefix component to
// toPrefix, given path is known (by hasPrefixPath) to lie under fromPrefix.
func translatePrefix(path, fromPrefix, toPrefix string) string {
	rest := strings.TrimPrefix(path, fromPrefix)
	return filepath.Join(toPrefix, rest)
}
