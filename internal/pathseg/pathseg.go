// Package pathseg provides the small path-segment operations the catalog,
// bundler, and client share: archive-extension handling and root-relative
// entry naming. They are explicit functions rather than inline string
// slicing so the edge cases stay unit-tested in one place.
package pathseg

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// ArchiveExt is the extension carried by packaged folder bundles.
const ArchiveExt = ".tar"

// IsArchive reports whether the path names a packaged bundle.
func IsArchive(p string) bool {
	return strings.HasSuffix(p, ArchiveExt)
}

// WithArchiveExt appends the archive extension to an install location path.
func WithArchiveExt(p string) string {
	return p + ArchiveExt
}

// StripArchiveExt removes the archive extension, returning the sibling
// directory a bundle extracts into. The second return is false when the
// path does not carry the extension.
func StripArchiveExt(p string) (string, bool) {
	if !IsArchive(p) {
		return p, false
	}
	return p[:len(p)-len(ArchiveExt)], true
}

// RelativeTo returns the slash-separated path of target relative to root.
// It fails when target does not live under root.
func RelativeTo(root, target string) (string, error) {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", fmt.Errorf("relativizing %s against %s: %w", target, root, err)
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path %s escapes root %s", target, root)
	}
	return rel, nil
}

// SafeJoin joins an archive entry name onto dest, rejecting names that
// would escape dest once cleaned.
func SafeJoin(dest, name string) (string, error) {
	cleaned := path.Clean("/" + filepath.ToSlash(name))
	if cleaned == "/" {
		return "", fmt.Errorf("empty archive entry name %q", name)
	}
	return filepath.Join(dest, filepath.FromSlash(cleaned)), nil
}
