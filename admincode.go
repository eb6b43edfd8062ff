package authcore

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// codeManager generates and verifies the time-based admin MFA codes.
// The per-admin key is derived from the server base secret and the
// admin's email, so two admins never share a code stream.
type codeManager struct {
	config AdminMFAConfig
}

func newCodeManager(cfg AdminMFAConfig) *codeManager {
	return &codeManager{config: cfg}
}

func (m *codeManager) keyFor(email string) []byte {
	key := make([]byte, 0, len(m.config.BaseSecret)+1+len(email))
	key = append(key, m.config.BaseSecret...)
	key = append(key, ':')
	key = append(key, strings.ToLower(email)...)
	return key
}

// Generate returns the code for the current time step. Intended for
// delivery to the admin out of band.
func (m *codeManager) Generate(email string, now time.Time) string {
	counter := now.Unix() / int64(m.config.StepSeconds)
	return hotpSHA1(m.keyFor(email), counter, m.config.Digits)
}

// Verify checks the code against the current step and the configured
// skew on either side. Comparison is constant time per candidate.
func (m *codeManager) Verify(email, code string, now time.Time) bool {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != m.config.Digits || !allDigits(trimmed) {
		return false
	}

	key := m.keyFor(email)
	base := now.Unix() / int64(m.config.StepSeconds)

	matched := false
	for step := -m.config.Skew; step <= m.config.Skew; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		candidate := hotpSHA1(key, counter, m.config.Digits)
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(trimmed)) == 1 {
			matched = true
		}
	}
	return matched
}

func hotpSHA1(key []byte, counter int64, digits int) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, key)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", digits, bin%mod)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
