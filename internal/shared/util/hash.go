package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashPrincipal returns a filesystem-safe identifier for an API key so
// keys never appear in storage paths.
func HashPrincipal(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
