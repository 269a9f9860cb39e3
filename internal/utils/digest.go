// internal/utils/digest.go
package utils

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// ContentDigest returns the BLAKE3 hex digest of a scenario source, used as its revision tag
func ContentDigest(content string) string {
	sum := blake3.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ShortDigest shortens a digest to 12 characters for logs and CLI output
func ShortDigest(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
