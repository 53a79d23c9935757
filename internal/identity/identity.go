// Package identity derives stable ledger keys from file paths.
//
// An Identity is the lowercase hex SHA-256 digest of the file's full path
// string. It is deterministic, collision-resistant across distinct paths,
// and never derived from file content, so a file keeps its identity even
// while it is being rewritten.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

// Identity is a 64-character lowercase hex string keyed off a file path.
type Identity string

var identityPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ForPath returns the identity for the given path string.
func ForPath(path string) Identity {
	sum := sha256.Sum256([]byte(path))
	return Identity(hex.EncodeToString(sum[:]))
}

// Valid reports whether s has the exact shape produced by ForPath. Ledger
// loading uses this to reject foreign or corrupted keys.
func Valid(s string) bool {
	return identityPattern.MatchString(s)
}

// String returns the identity as a plain string.
func (id Identity) String() string { return string(id) }

// Short returns a truncated prefix suitable for log lines and tables.
func (id Identity) Short() string {
	if len(id) < 12 {
		return string(id)
	}
	return string(id[:12])
}
