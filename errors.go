package authcore

import "errors"

var (
	// ErrInvalidCredentials is returned for unknown identifiers and for
	// wrong passwords alike; callers must not distinguish the two.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserInactive rejects disabled or suspended subjects.
	ErrUserInactive = errors.New("user inactive")
	// ErrAdminLoginRequired steers admin-tier subjects away from the
	// plain login path and into the MFA challenge flow.
	ErrAdminLoginRequired = errors.New("admin accounts must use the mfa login flow")
	// ErrOTPInvalid rejects a wrong or expired one-time login code.
	ErrOTPInvalid = errors.New("invalid one-time code")

	// ErrTokenExpired means a correctly signed access token aged out.
	ErrTokenExpired = errors.New("access token expired")
	// ErrTokenInvalid covers every other access-token failure.
	ErrTokenInvalid = errors.New("access token invalid")

	// ErrRefreshInvalid rejects a refresh token that is malformed,
	// expired, or has no matching record.
	ErrRefreshInvalid = errors.New("refresh token invalid")
	// ErrRefreshReuse means an already-rotated or revoked refresh token
	// was presented; the whole family has been revoked in response.
	ErrRefreshReuse = errors.New("refresh token reuse detected")

	// ErrChallengeNotFound rejects an MFA token whose challenge does
	// not exist or was already consumed.
	ErrChallengeNotFound = errors.New("mfa challenge not found or already used")
	// ErrChallengeExpired means the challenge window closed.
	ErrChallengeExpired = errors.New("mfa challenge expired")
	// ErrDeviceMismatch means the verification request came from a
	// different device than the one that initiated the challenge.
	ErrDeviceMismatch = errors.New("mfa device mismatch")
	// ErrMFACodeInvalid rejects a wrong MFA code.
	ErrMFACodeInvalid = errors.New("invalid mfa code")
	// ErrMFAAttemptsExceeded means the challenge burned its attempt
	// budget and can no longer be redeemed.
	ErrMFAAttemptsExceeded = errors.New("mfa attempts exceeded")

	// ErrPermissionDenied is the generic authorization failure.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInsufficientPrivilege means the subject's privilege level is
	// below the required minimum.
	ErrInsufficientPrivilege = errors.New("insufficient privilege")

	// ErrStoreUnavailable wraps datastore failures. The engine fails
	// closed: an unavailable store never grants access.
	ErrStoreUnavailable = errors.New("auth datastore unavailable")
)
