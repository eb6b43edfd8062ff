package authcore

import (
	"context"
	"strings"
	"time"

	"github.com/mindhaven/authcore/authz"
	"github.com/mindhaven/authcore/internal/audit"
	"github.com/mindhaven/authcore/internal/metrics"
	"github.com/mindhaven/authcore/internal/stores"
	"github.com/mindhaven/authcore/jwt"
	"github.com/mindhaven/authcore/password"
)

// Engine is the authentication core. Construct with Builder.Build;
// the zero value is not usable.
type Engine struct {
	config Config

	tokens *jwt.Manager
	hasher *password.Hasher
	codes  *codeManager

	refreshStore   stores.RefreshStore
	challengeStore stores.ChallengeStore

	users       UserStore
	permissions PermissionResolver
	otp         OTPVerifier

	audit   *audit.Dispatcher
	metrics *metrics.Metrics

	clock      func() time.Time
	adminRoles map[string]struct{}
}

// Close drains the audit dispatcher. Call on shutdown.
func (e *Engine) Close() {
	e.audit.Close()
}

// AccessTTL exposes the configured access-token lifetime.
func (e *Engine) AccessTTL() time.Duration { return e.config.JWT.AccessTTL }

// VerifyAccess verifies a raw access token string with no datastore
// access. Expired tokens return ErrTokenExpired so callers can steer
// clients to the refresh path; everything else is ErrTokenInvalid.
func (e *Engine) VerifyAccess(tokenStr string) (authz.Identity, error) {
	start := e.clock()

	claims, err := e.tokens.ParseAccess(tokenStr)
	if err != nil {
		if err == jwt.ErrTokenExpired {
			e.metrics.Inc(metrics.MetricVerifyExpired)
			return authz.Identity{}, ErrTokenExpired
		}
		e.metrics.Inc(metrics.MetricVerifyInvalid)
		return authz.Identity{}, ErrTokenInvalid
	}

	e.metrics.Inc(metrics.MetricVerifySuccess)
	e.metrics.Observe(e.clock().Sub(start))

	return authz.Identity{
		UserID:         claims.UserID,
		Email:          claims.Email,
		Role:           claims.Role,
		PrivilegeLevel: claims.PrivilegeLevel,
		Permissions:    claims.Permissions,
		Features:       claims.Features,
		MFAVerified:    claims.MFAVerified,
	}, nil
}

// RequirePrivilege gates non-HTTP callers on a minimum privilege
// level; HTTP routes get the middleware package instead.
func RequirePrivilege(identity authz.Identity, minimum int) error {
	if !authz.HasPrivilege(identity, minimum) {
		return ErrInsufficientPrivilege
	}
	return nil
}

// isAdminRole reports whether the normalized role must complete the
// MFA challenge flow before receiving tokens.
func (e *Engine) isAdminRole(role string) bool {
	_, ok := e.adminRoles[role]
	return ok
}

// snapshot resolves the authorization state embedded in a new access
// token. Role names are normalized to lowercase here so every
// downstream comparison sees one casing.
func (e *Engine) snapshot(ctx context.Context, user *UserRecord) (authz.Identity, error) {
	role := strings.ToLower(user.Role)

	perms, err := e.permissions.ResolvePermissions(ctx, user.ID, role)
	if err != nil {
		return authz.Identity{}, ErrStoreUnavailable
	}

	return authz.Identity{
		UserID:         user.ID,
		Email:          user.Email,
		Role:           role,
		PrivilegeLevel: authz.PrivilegeForRole(role),
		Permissions:    perms,
		Features:       user.Features,
	}, nil
}

func (e *Engine) emit(ctx context.Context, eventType, userID, familyID string, meta ClientMeta, success bool, reason string) {
	e.audit.Emit(ctx, audit.Event{
		Timestamp: e.clock(),
		EventType: eventType,
		UserID:    userID,
		FamilyID:  familyID,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Success:   success,
		Reason:    reason,
	})
}
