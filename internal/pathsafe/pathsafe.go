// Package pathsafe validates candidate file paths against the configured
// allowed roots, closing off traversal through symlinks or `..` segments.
package pathsafe

import (
	"path"
	"path/filepath"
	"strings"
)

// Local checks filesystem paths against a fixed set of allowed roots.
//
// Roots are canonicalized once at construction. The candidate is
// re-canonicalized on every Check call because its resolution may change
// between calls; conversion re-checks immediately before invoking the
// transcoder for exactly that reason.
type Local struct {
	roots []string
}

// NewLocal resolves the allowed roots to canonical form. Roots that cannot
// be resolved (missing, permission denied) are dropped; candidates beneath
// them then fail Check.
func NewLocal(roots []string) *Local {
	canonical := make([]string, 0, len(roots))
	for _, root := range roots {
		resolved, err := canonicalize(root)
		if err != nil {
			continue
		}
		canonical = append(canonical, resolved)
	}
	return &Local{roots: canonical}
}

// Check reports whether p resolves to a location equal to or strictly
// beneath one of the allowed roots. Any resolution failure returns false.
func (l *Local) Check(p string) bool {
	resolved, err := canonicalize(p)
	if err != nil {
		return false
	}
	for _, root := range l.roots {
		if contained(resolved, root) {
			return true
		}
	}
	return false
}

func canonicalize(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

func contained(p, root string) bool {
	if p == root {
		return true
	}
	return strings.HasPrefix(p, root+string(filepath.Separator))
}

// CheckRemote reports whether the POSIX path p is contained in one of the
// allowed remote prefixes. Normalization is purely algebraic; any `..`
// segment surviving path.Clean, or a non-absolute result, is rejected.
// Prefix matching honors the separator boundary, so root "/media" does not
// admit "/media2/...".
func CheckRemote(p string, allowedPrefixes []string) bool {
	normalized := path.Clean(p)
	for _, segment := range strings.Split(normalized, "/") {
		if segment == ".." {
			return false
		}
	}
	if !path.IsAbs(normalized) {
		return false
	}
	for _, prefix := range allowedPrefixes {
		allowed := path.Clean(prefix)
		if normalized == allowed || strings.HasPrefix(normalized, allowed+"/") {
			return true
		}
	}
	return false
}
