package authcore

import (
	"context"

	"github.com/mindhaven/authcore/internal"
	"github.com/mindhaven/authcore/internal/audit"
	"github.com/mindhaven/authcore/internal/metrics"
	"github.com/mindhaven/authcore/internal/stores"
	"github.com/mindhaven/authcore/jwt"
)

// Refresh rotates a refresh token: the presented token is retired, a
// successor in the same family is persisted, and a fresh token pair is
// returned. Presenting a token that was already rotated or revoked is
// treated as theft evidence and revokes the entire family.
//
// The identity snapshot is re-resolved here, so permission changes
// take effect at the next refresh rather than waiting out the refresh
// TTL. The mfaVerified marker is carried from the stored record: a
// session opened through the admin MFA flow stays MFA-verified across
// rotations.
func (e *Engine) Refresh(ctx context.Context, rawRefresh string, meta ClientMeta) (*LoginResult, error) {
	claims, err := e.tokens.ParseRefresh(rawRefresh)
	if err != nil {
		e.metrics.Inc(metrics.MetricRefreshFailure)
		return nil, ErrRefreshInvalid
	}

	now := e.clock()

	rec, err := e.refreshStore.Find(ctx, claims.TokenID, claims.UserID, claims.FamilyID)
	if err != nil {
		if err == stores.ErrRecordNotFound {
			// correctly signed token with no backing record: either the
			// family was already revoked and aged out, or the record was
			// rotated away. Both read as reuse.
			return nil, e.onReuse(ctx, claims.UserID, claims.FamilyID, meta, "record missing")
		}
		e.metrics.Inc(metrics.MetricRefreshFailure)
		return nil, ErrStoreUnavailable
	}

	if !rec.Active(now.Unix()) {
		if rec.ExpiresAt <= now.Unix() && rec.RevokedAt == 0 && rec.ReplacedBy == "" {
			e.metrics.Inc(metrics.MetricRefreshFailure)
			return nil, ErrRefreshInvalid
		}
		return nil, e.onReuse(ctx, claims.UserID, claims.FamilyID, meta, "record retired")
	}

	if rec.TokenHash != internal.HashToken(rawRefresh) {
		return nil, e.onReuse(ctx, claims.UserID, claims.FamilyID, meta, "hash mismatch")
	}

	user, err := e.users.FindByID(ctx, claims.UserID)
	if err != nil || user == nil {
		e.metrics.Inc(metrics.MetricRefreshFailure)
		return nil, ErrStoreUnavailable
	}
	if !user.Active {
		if _, rerr := e.refreshStore.RevokeFamily(ctx, claims.UserID, claims.FamilyID, false, now.Unix()); rerr != nil {
			return nil, ErrStoreUnavailable
		}
		e.metrics.Inc(metrics.MetricFamilyRevoked)
		e.emit(ctx, audit.EventRefreshUserInactive, claims.UserID, claims.FamilyID, meta, false, "")
		return nil, ErrUserInactive
	}

	identity, err := e.snapshot(ctx, user)
	if err != nil {
		return nil, err
	}
	identity.MFAVerified = rec.MFAVerified

	nextID := internal.NewTokenID()
	nextRefresh, err := e.tokens.CreateRefresh(jwt.RefreshClaims{
		UserID:   claims.UserID,
		TokenID:  nextID,
		FamilyID: claims.FamilyID,
	}, now)
	if err != nil {
		return nil, err
	}

	next := &stores.RefreshRecord{
		ID:          nextID,
		UserID:      claims.UserID,
		FamilyID:    claims.FamilyID,
		TokenHash:   internal.HashToken(nextRefresh),
		ExpiresAt:   now.Add(e.tokens.RefreshTTL()).Unix(),
		CreatedAt:   now.Unix(),
		IP:          meta.IP,
		UserAgent:   meta.UserAgent,
		MFAVerified: rec.MFAVerified,
	}

	outcome, err := e.refreshStore.Rotate(
		ctx,
		claims.TokenID, claims.UserID, claims.FamilyID,
		internal.HashToken(rawRefresh),
		next,
		e.tokens.RefreshTTL(),
		now.Unix(),
	)
	if err != nil {
		e.metrics.Inc(metrics.MetricRefreshFailure)
		return nil, ErrStoreUnavailable
	}

	switch outcome {
	case stores.RotateOK:
	case stores.RotateReused:
		return nil, e.onReuse(ctx, claims.UserID, claims.FamilyID, meta, "lost rotation race")
	case stores.RotateExpired, stores.RotateNotFound:
		e.metrics.Inc(metrics.MetricRefreshFailure)
		return nil, ErrRefreshInvalid
	}

	accessToken, err := e.tokens.CreateAccess(jwt.AccessClaims{
		UserID:         identity.UserID,
		Email:          identity.Email,
		Role:           identity.Role,
		PrivilegeLevel: identity.PrivilegeLevel,
		Permissions:    identity.Permissions,
		Features:       identity.Features,
		MFAVerified:    identity.MFAVerified,
	}, now)
	if err != nil {
		return nil, err
	}

	csrf, err := internal.NewCSRFToken()
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(metrics.MetricRefreshSuccess)
	e.emit(ctx, audit.EventRefreshRotated, claims.UserID, claims.FamilyID, meta, true, "")

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: nextRefresh,
		CSRFToken:    csrf,
		ExpiresIn:    int64(e.tokens.AccessTTL().Seconds()),
		Identity:     identity,
	}, nil
}

// onReuse revokes the family and reports ErrRefreshReuse. The revoke
// failing does not soften the caller-visible outcome; it only swaps
// the error for the store one so the operator sees the real problem.
func (e *Engine) onReuse(ctx context.Context, userID, familyID string, meta ClientMeta, reason string) error {
	e.metrics.Inc(metrics.MetricRefreshReuseDetected)
	e.emit(ctx, audit.EventRefreshReuse, userID, familyID, meta, false, reason)

	if _, err := e.refreshStore.RevokeFamily(ctx, userID, familyID, true, e.clock().Unix()); err != nil {
		e.emit(ctx, audit.EventStoreUnavailable, userID, familyID, meta, false, "family revoke failed")
		return ErrStoreUnavailable
	}

	e.metrics.Inc(metrics.MetricFamilyRevoked)
	e.emit(ctx, audit.EventFamilyRevoked, userID, familyID, meta, true, reason)
	return ErrRefreshReuse
}

// Logout retires the session the presented refresh token belongs to.
// Malformed or already-dead tokens are not an error; logout is
// idempotent.
func (e *Engine) Logout(ctx context.Context, rawRefresh string, meta ClientMeta) error {
	claims, err := e.tokens.ParseRefresh(rawRefresh)
	if err != nil {
		return nil
	}

	now := e.clock().Unix()
	if e.config.Refresh.RevokeFamilyOnLogout {
		if _, err := e.refreshStore.RevokeFamily(ctx, claims.UserID, claims.FamilyID, false, now); err != nil {
			return ErrStoreUnavailable
		}
	} else {
		if err := e.refreshStore.Revoke(ctx, claims.TokenID, claims.UserID, claims.FamilyID, now); err != nil {
			return ErrStoreUnavailable
		}
	}

	e.metrics.Inc(metrics.MetricLogout)
	e.emit(ctx, audit.EventLogout, claims.UserID, claims.FamilyID, meta, true, "")
	return nil
}

// LogoutAll revokes every refresh family the user holds, across all
// devices. Returns how many records were retired.
func (e *Engine) LogoutAll(ctx context.Context, userID string, meta ClientMeta) (int, error) {
	n, err := e.refreshStore.RevokeAllForUser(ctx, userID, e.clock().Unix())
	if err != nil {
		return 0, ErrStoreUnavailable
	}

	e.metrics.Inc(metrics.MetricLogoutAll)
	e.emit(ctx, audit.EventLogout, userID, "", meta, true, "all sessions")
	return n, nil
}
