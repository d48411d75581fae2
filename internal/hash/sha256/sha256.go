// Package sha256 computes content digests for cache validators.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hex returns the hex encoded SHA-256 digest of data.
func Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ETag returns a strong entity tag for data.
func ETag(data []byte) string {
	return `"` + Hex(data)[:32] + `"`
}
