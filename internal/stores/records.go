package stores

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrBackendUnavailable wraps any datastore transport failure. The
	// engine fails closed on it: an ambiguous outcome never grants access.
	ErrBackendUnavailable = errors.New("auth store backend unavailable")

	// ErrRecordNotFound is returned by Find/Get when no row matches.
	ErrRecordNotFound = errors.New("auth store record not found")
)

// RefreshRecord is one link in a rotation family. TokenHash holds the
// SHA-256 of the signed token string; the raw token is never persisted.
// Timestamps are unix seconds; zero means "not set".
type RefreshRecord struct {
	ID              string
	UserID          string
	FamilyID        string
	TokenHash       [32]byte
	ExpiresAt       int64
	CreatedAt       int64
	IP              string
	UserAgent       string
	MFAVerified     bool
	RevokedAt       int64
	ReplacedBy      string
	ReuseDetectedAt int64
}

// Active reports whether the record may still anchor a rotation.
func (r *RefreshRecord) Active(now int64) bool {
	return r != nil && r.RevokedAt == 0 && r.ReplacedBy == "" && r.ExpiresAt > now
}

// RotateOutcome classifies the result of an atomic rotation attempt.
type RotateOutcome int

const (
	RotateOK RotateOutcome = iota
	RotateNotFound
	RotateExpired
	RotateReused
)

// RefreshStore persists rotation families.
type RefreshStore interface {
	// Persist writes the first record of a new family.
	Persist(ctx context.Context, rec *RefreshRecord, ttl time.Duration) error

	// Find returns the record matching all three identifiers, in any
	// lifecycle state. ErrRecordNotFound when absent.
	Find(ctx context.Context, tokenID, userID, familyID string) (*RefreshRecord, error)

	// Rotate atomically retires the old record and installs next in the
	// same family. It re-checks that the old record is still active and
	// that providedHash matches under the same lock/script that applies
	// the swap, so concurrent rotations of one record cannot both succeed.
	// now is the caller's clock, unix seconds; stores never consult
	// their own.
	Rotate(ctx context.Context, tokenID, userID, familyID string, providedHash [32]byte, next *RefreshRecord, ttl time.Duration, now int64) (RotateOutcome, error)

	// Revoke revokes the single matching record if it is still live.
	Revoke(ctx context.Context, tokenID, userID, familyID string, now int64) error

	// RevokeFamily revokes every non-revoked record of a family and
	// returns how many were touched. markReuse additionally stamps
	// reuse_detected_at for incident forensics.
	RevokeFamily(ctx context.Context, userID, familyID string, markReuse bool, now int64) (int, error)

	// RevokeAllForUser revokes every family belonging to the user.
	RevokeAllForUser(ctx context.Context, userID string, now int64) (int, error)
}

// ChallengeRecord is a single-use admin MFA challenge row.
type ChallengeRecord struct {
	ID              string
	UserID          string
	FingerprintHash string
	IP              string
	UserAgent       string
	ExpiresAt       int64
	CreatedAt       int64
	UsedAt          int64
	Attempts        uint16
}

// ConsumeOutcome classifies an atomic challenge-consumption attempt.
type ConsumeOutcome int

const (
	ConsumeOK ConsumeOutcome = iota
	ConsumeNotFound
	ConsumeUsedOrExpired
)

// ChallengeStore persists admin MFA challenges.
type ChallengeStore interface {
	Create(ctx context.Context, rec *ChallengeRecord, ttl time.Duration) error

	// Get returns the challenge only when both identifiers match.
	Get(ctx context.Context, challengeID, userID string) (*ChallengeRecord, error)

	// Consume marks the challenge used. The used/expiry re-check and the
	// mark happen in one atomic unit, so a challenge can authorize at
	// most one session even under concurrent verification.
	Consume(ctx context.Context, challengeID, userID string, now int64) (ConsumeOutcome, error)

	// RecordFailure increments the attempt counter. When the counter
	// reaches maxAttempts the challenge is burned and exceeded=true is
	// returned; the row stays behind for an external lockout policy.
	RecordFailure(ctx context.Context, challengeID string, maxAttempts int, now int64) (exceeded bool, err error)
}
