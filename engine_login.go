package authcore

import (
	"context"
	"strings"

	"github.com/mindhaven/authcore/authz"
	"github.com/mindhaven/authcore/internal"
	"github.com/mindhaven/authcore/internal/audit"
	"github.com/mindhaven/authcore/internal/metrics"
	"github.com/mindhaven/authcore/internal/stores"
	"github.com/mindhaven/authcore/jwt"
)

// SendOTP starts the passwordless login path by delivering a one-time
// code to the identifier's channel. Unknown identifiers are reported
// to the caller as success so the endpoint does not enumerate users;
// the audit trail records the truth.
func (e *Engine) SendOTP(ctx context.Context, identifier string, meta ClientMeta) error {
	if e.otp == nil {
		return ErrOTPInvalid
	}

	user, err := e.users.FindByIdentifier(ctx, identifier)
	if err != nil || user == nil {
		e.emit(ctx, audit.EventLoginDenied, "", "", meta, false, "unknown identifier")
		return nil
	}
	if !user.Active {
		e.emit(ctx, audit.EventLoginDenied, user.ID, "", meta, false, "inactive")
		return nil
	}

	return e.otp.SendOTP(ctx, identifier)
}

// LoginWithOTP completes the passwordless path. Tokens issued here
// never carry mfaVerified; the one-time code is the primary factor,
// not a second one. Admin-tier roles are refused the same way Login
// refuses them and must go through AdminLoginInitiate.
func (e *Engine) LoginWithOTP(ctx context.Context, identifier, code string, meta ClientMeta) (*LoginResult, error) {
	if e.otp == nil {
		return nil, ErrOTPInvalid
	}

	user, err := e.users.FindByIdentifier(ctx, identifier)
	if err != nil || user == nil {
		e.denyLogin(ctx, "", meta, "unknown identifier")
		return nil, ErrInvalidCredentials
	}

	if e.isAdminRole(normalizedRole(user)) {
		e.emit(ctx, audit.EventAdminLoginDenied, user.ID, "", meta, false, "mfa flow required")
		return nil, ErrAdminLoginRequired
	}

	ok, err := e.otp.VerifyOTP(ctx, identifier, code)
	if err != nil {
		return nil, ErrStoreUnavailable
	}
	if !ok {
		e.denyLogin(ctx, user.ID, meta, "otp mismatch")
		return nil, ErrOTPInvalid
	}

	return e.afterPrimaryAuth(ctx, user, meta)
}

// Login authenticates with identifier and password. Admin-tier roles
// are refused here and directed to AdminLoginInitiate; a password
// alone never yields admin tokens.
func (e *Engine) Login(ctx context.Context, identifier, pass string, meta ClientMeta) (*LoginResult, error) {
	user, err := e.verifyPrimary(ctx, identifier, pass, meta)
	if err != nil {
		return nil, err
	}

	if e.isAdminRole(normalizedRole(user)) {
		e.emit(ctx, audit.EventAdminLoginDenied, user.ID, "", meta, false, "mfa flow required")
		return nil, ErrAdminLoginRequired
	}

	return e.afterPrimaryAuth(ctx, user, meta)
}

// verifyPrimary checks identifier and password. The distinction
// between "no such user" and "wrong password" never leaves this
// function.
func (e *Engine) verifyPrimary(ctx context.Context, identifier, pass string, meta ClientMeta) (*UserRecord, error) {
	user, err := e.users.FindByIdentifier(ctx, identifier)
	if err != nil || user == nil {
		e.denyLogin(ctx, "", meta, "unknown identifier")
		return nil, ErrInvalidCredentials
	}

	ok, err := e.hasher.Verify(pass, user.PasswordHash)
	if err != nil || !ok {
		e.denyLogin(ctx, user.ID, meta, "password mismatch")
		return nil, ErrInvalidCredentials
	}

	if !user.Active {
		e.denyLogin(ctx, user.ID, meta, "inactive")
		return nil, ErrUserInactive
	}

	return user, nil
}

// afterPrimaryAuth resolves the snapshot and issues a non-MFA token
// pair for a user that passed its primary factor.
func (e *Engine) afterPrimaryAuth(ctx context.Context, user *UserRecord, meta ClientMeta) (*LoginResult, error) {
	if !user.Active {
		e.denyLogin(ctx, user.ID, meta, "inactive")
		return nil, ErrUserInactive
	}

	identity, err := e.snapshot(ctx, user)
	if err != nil {
		return nil, err
	}

	result, err := e.issueTokens(ctx, identity, false, meta)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(metrics.MetricLoginSuccess)
	e.emit(ctx, audit.EventLoginSuccess, user.ID, "", meta, true, "")

	if err := e.users.UpdateLastLogin(ctx, user.ID, e.clock()); err != nil {
		// login already succeeded; record the bookkeeping failure only
		e.emit(ctx, audit.EventStoreUnavailable, user.ID, "", meta, false, "last login update failed")
	}

	return result, nil
}

// issueTokens mints an access/refresh pair and persists the first
// record of a fresh rotation family. The family id is the first token
// id of the chain.
func (e *Engine) issueTokens(ctx context.Context, identity authz.Identity, mfaVerified bool, meta ClientMeta) (*LoginResult, error) {
	now := e.clock()
	tokenID := internal.NewTokenID()
	familyID := tokenID

	identity.MFAVerified = mfaVerified

	accessToken, err := e.tokens.CreateAccess(jwt.AccessClaims{
		UserID:         identity.UserID,
		Email:          identity.Email,
		Role:           identity.Role,
		PrivilegeLevel: identity.PrivilegeLevel,
		Permissions:    identity.Permissions,
		Features:       identity.Features,
		MFAVerified:    mfaVerified,
	}, now)
	if err != nil {
		return nil, err
	}

	refreshToken, err := e.tokens.CreateRefresh(jwt.RefreshClaims{
		UserID:   identity.UserID,
		TokenID:  tokenID,
		FamilyID: familyID,
	}, now)
	if err != nil {
		return nil, err
	}

	rec := &stores.RefreshRecord{
		ID:          tokenID,
		UserID:      identity.UserID,
		FamilyID:    familyID,
		TokenHash:   internal.HashToken(refreshToken),
		ExpiresAt:   now.Add(e.tokens.RefreshTTL()).Unix(),
		CreatedAt:   now.Unix(),
		IP:          meta.IP,
		UserAgent:   meta.UserAgent,
		MFAVerified: mfaVerified,
	}
	if err := e.refreshStore.Persist(ctx, rec, e.tokens.RefreshTTL()); err != nil {
		e.emit(ctx, audit.EventStoreUnavailable, identity.UserID, familyID, meta, false, "refresh persist failed")
		return nil, ErrStoreUnavailable
	}

	csrf, err := internal.NewCSRFToken()
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		CSRFToken:    csrf,
		ExpiresIn:    int64(e.tokens.AccessTTL().Seconds()),
		Identity:     identity,
	}, nil
}

func (e *Engine) denyLogin(ctx context.Context, userID string, meta ClientMeta, reason string) {
	e.metrics.Inc(metrics.MetricLoginFailure)
	e.emit(ctx, audit.EventLoginDenied, userID, "", meta, false, reason)
}

func normalizedRole(user *UserRecord) string {
	return strings.ToLower(user.Role)
}
