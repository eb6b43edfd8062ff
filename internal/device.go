package internal

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint derives the device fingerprint for an MFA challenge from the
// client IP and User-Agent. Only this one-way hash is ever stored or
// embedded in a challenge token; verification recomputes it from the live
// request and requires an exact match.
func Fingerprint(ip, userAgent string) string {
	sum := sha256.Sum256([]byte(ip + "|" + userAgent))
	return hex.EncodeToString(sum[:])
}
