// Package checksum fingerprints sidecar content for change detection and
// optimistic concurrency.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// OfSidecar returns the checksum of sidecar content, or "" when the sidecar
// does not exist. An existing empty file still gets a checksum.
func OfSidecar(data []byte, exists bool) string {
	if !exists {
		return ""
	}
	return Sum(data)
}
