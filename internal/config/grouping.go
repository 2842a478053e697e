package config

import (
	"fmt"
	"path"
	"strings"
)

// Grouping derives the directory key an image belongs to. Exactly one of
// its two modes is active: walk N levels up from the leaf directory, or
// apply a custom classification function. The two are mutually exclusive
// and the conflict is rejected at construction, not at use.
type Grouping struct {
	levels int
	custom func(string) string
}

// GroupByLeafLevels groups images by their parent directory, optionally
// walking a further n levels toward the root.
func GroupByLeafLevels(n int) (Grouping, error) {
	if n < 0 {
		return Grouping{}, fmt.Errorf("leaf levels must be >= 0, got %d", n)
	}
	return Grouping{levels: n}, nil
}

// GroupByFunc groups images with a caller-supplied classifier.
func GroupByFunc(fn func(string) string) (Grouping, error) {
	if fn == nil {
		return Grouping{}, fmt.Errorf("nil directory classification function")
	}
	return Grouping{custom: fn}, nil
}

// Custom reports whether this grouping uses a custom classifier.
func (g Grouping) Custom() bool { return g.custom != nil }

// Key returns the directory key for a relative image path.
func (g Grouping) Key(relPath string) (string, error) {
	relPath = strings.ReplaceAll(relPath, `\`, "/")
	if g.custom != nil {
		return g.custom(relPath), nil
	}

	dir := parentDir(relPath)
	if dir == "" {
		if g.levels > 0 {
			return "", fmt.Errorf("cannot use dir_levels_from_leaf with flat filename %q", relPath)
		}
		return "", nil
	}
	for i := 0; i < g.levels; i++ {
		dir = parentDir(dir)
		if dir == "" {
			return "", fmt.Errorf("path %q has fewer than %d directory levels", relPath, g.levels)
		}
	}
	return dir, nil
}

// parentDir is path.Dir with "" instead of "." for flat names, matching
// how relative camera-trap paths are keyed.
func parentDir(p string) string {
	d := path.Dir(p)
	if d == "." || d == "/" {
		return ""
	}
	return d
}
