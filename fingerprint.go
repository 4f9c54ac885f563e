package auth

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint computes the one-way hash of a raw token used for storage and
// comparison. Raw tokens are never persisted; the hex digest is what session
// rows and the request coalescer key on.
func Fingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
