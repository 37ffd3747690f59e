// Package sha256 provides the content-fingerprint helpers used for raw
// payloads and audit object names.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex SHA-256 digest of data.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SumString returns the hex SHA-256 digest of a string.
func SumString(s string) string {
	return Sum([]byte(s))
}
