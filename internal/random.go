package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

const csrfTokenBytes = 24

// NewTokenID returns a fresh opaque identity for a refresh token or MFA
// challenge. The first token of a rotation chain reuses its own ID as the
// family ID.
func NewTokenID() string {
	return uuid.NewString()
}

// NewCSRFToken returns a hex-encoded random value for double-submit CSRF
// verification by the surrounding web layer.
func NewCSRFToken() (string, error) {
	raw := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// HashToken returns the SHA-256 digest of a signed token string. Stores
// persist only this digest, never the raw token.
func HashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}
