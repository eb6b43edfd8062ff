package authcore

import (
	"context"
	"time"

	"github.com/mindhaven/authcore/authz"
	"github.com/mindhaven/authcore/internal/audit"
)

// UserRecord is the engine's read-only view of a stored subject. The
// engine never writes user rows beyond UpdateLastLogin.
type UserRecord struct {
	ID           string
	Email        string
	Phone        string
	Role         string
	PasswordHash string
	Active       bool
	Features     []string
}

// UserStore is the caller-supplied user lookup.
type UserStore interface {
	// FindByIdentifier resolves an email or phone number to a user.
	// Return ErrInvalidCredentials (or any error) for unknown
	// identifiers; the engine reports them identically to bad
	// passwords.
	FindByIdentifier(ctx context.Context, identifier string) (*UserRecord, error)

	// FindByID resolves a user id carried in a verified token.
	FindByID(ctx context.Context, userID string) (*UserRecord, error)

	// UpdateLastLogin records a successful authentication. Failures
	// are logged to the audit trail but do not fail the login.
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
}

// PermissionResolver resolves the permission snapshot embedded in
// access tokens. Called once per token issuance, never per request.
type PermissionResolver interface {
	ResolvePermissions(ctx context.Context, userID, role string) ([]string, error)
}

// OTPVerifier is the caller-supplied one-time-code channel for the
// passwordless login path (SMS, email, authenticator).
type OTPVerifier interface {
	SendOTP(ctx context.Context, identifier string) error
	VerifyOTP(ctx context.Context, identifier, code string) (bool, error)
}

// AuditSink receives audit events from the async dispatcher.
type AuditSink = audit.Sink

// AuditEvent is a single audit trail entry.
type AuditEvent = audit.Event

// ClientMeta carries the request attributes token issuance binds to.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// LoginResult is the outcome of a successful authentication: a signed
// token pair, the CSRF double-submit value, and the identity snapshot
// embedded in the access token.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	CSRFToken    string
	ExpiresIn    int64 // access token lifetime, seconds
	Identity     authz.Identity
}

// AdminChallenge is the outcome of admin login initiation: an
// intermediate token the client must present back together with the
// MFA code.
type AdminChallenge struct {
	MFAToken  string
	ExpiresIn int64 // challenge lifetime, seconds
}
