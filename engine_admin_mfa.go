package authcore

import (
	"context"

	"github.com/mindhaven/authcore/internal"
	"github.com/mindhaven/authcore/internal/audit"
	"github.com/mindhaven/authcore/internal/metrics"
	"github.com/mindhaven/authcore/internal/stores"
	"github.com/mindhaven/authcore/jwt"
)

// AdminLoginInitiate verifies an admin's primary credentials and opens
// an MFA challenge bound to the initiating device. The returned
// intermediate token grants nothing by itself; it must come back
// through AdminLoginVerifyMFA together with the current code, from the
// same device.
func (e *Engine) AdminLoginInitiate(ctx context.Context, identifier, pass string, meta ClientMeta) (*AdminChallenge, error) {
	user, err := e.verifyPrimary(ctx, identifier, pass, meta)
	if err != nil {
		return nil, err
	}

	if !e.isAdminRole(normalizedRole(user)) {
		e.emit(ctx, audit.EventAdminLoginDenied, user.ID, "", meta, false, "not admin tier")
		return nil, ErrPermissionDenied
	}

	now := e.clock()
	rec := &stores.ChallengeRecord{
		ID:              internal.NewTokenID(),
		UserID:          user.ID,
		FingerprintHash: internal.Fingerprint(meta.IP, meta.UserAgent),
		IP:              meta.IP,
		UserAgent:       meta.UserAgent,
		ExpiresAt:       now.Add(e.tokens.ChallengeTTL()).Unix(),
		CreatedAt:       now.Unix(),
	}
	if err := e.challengeStore.Create(ctx, rec, e.tokens.ChallengeTTL()); err != nil {
		e.emit(ctx, audit.EventStoreUnavailable, user.ID, "", meta, false, "challenge create failed")
		return nil, ErrStoreUnavailable
	}

	mfaToken, err := e.tokens.CreateChallenge(jwt.ChallengeClaims{
		UserID:      user.ID,
		ChallengeID: rec.ID,
		Fingerprint: rec.FingerprintHash,
	}, now)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(metrics.MetricAdminMFARequired)

	return &AdminChallenge{
		MFAToken:  mfaToken,
		ExpiresIn: int64(e.tokens.ChallengeTTL().Seconds()),
	}, nil
}

// AdminLoginVerifyMFA redeems the intermediate token. Checks run in a
// fixed order so every rejection reason is observable and cheap checks
// fail before the datastore is touched:
//
//  1. intermediate token signature and lifetime
//  2. challenge existence and single-use state
//  3. attempt budget
//  4. device fingerprint
//  5. MFA code
//
// Only after all five pass is the challenge consumed, atomically, and
// the admin token pair minted with mfaVerified set.
func (e *Engine) AdminLoginVerifyMFA(ctx context.Context, mfaToken, code string, meta ClientMeta) (*LoginResult, error) {
	claims, err := e.tokens.ParseChallenge(mfaToken)
	if err != nil {
		e.metrics.Inc(metrics.MetricAdminMFAFailure)
		if err == jwt.ErrTokenExpired {
			return nil, ErrChallengeExpired
		}
		return nil, ErrTokenInvalid
	}

	now := e.clock()

	rec, err := e.challengeStore.Get(ctx, claims.ChallengeID, claims.UserID)
	if err != nil {
		if err == stores.ErrRecordNotFound {
			e.metrics.Inc(metrics.MetricMFAReplayAttempt)
			e.emit(ctx, audit.EventChallengeReplay, claims.UserID, "", meta, false, "challenge missing")
			return nil, ErrChallengeNotFound
		}
		return nil, ErrStoreUnavailable
	}

	if rec.UsedAt != 0 {
		e.metrics.Inc(metrics.MetricMFAReplayAttempt)
		e.emit(ctx, audit.EventChallengeReplay, claims.UserID, "", meta, false, "challenge already used")
		return nil, ErrChallengeNotFound
	}
	if rec.ExpiresAt <= now.Unix() {
		e.metrics.Inc(metrics.MetricAdminMFAFailure)
		return nil, ErrChallengeExpired
	}
	if int(rec.Attempts) >= e.config.AdminMFA.MaxAttempts {
		e.metrics.Inc(metrics.MetricMFAAttemptsExceeded)
		return nil, ErrMFAAttemptsExceeded
	}

	fingerprint := internal.Fingerprint(meta.IP, meta.UserAgent)
	if fingerprint != rec.FingerprintHash || fingerprint != claims.Fingerprint {
		e.metrics.Inc(metrics.MetricDeviceRejected)
		e.emit(ctx, audit.EventDeviceMismatch, claims.UserID, "", meta, false, "fingerprint mismatch")
		return nil, ErrDeviceMismatch
	}

	user, err := e.users.FindByID(ctx, claims.UserID)
	if err != nil || user == nil {
		return nil, ErrStoreUnavailable
	}
	if !user.Active {
		e.emit(ctx, audit.EventAdminMFADenied, user.ID, "", meta, false, "inactive")
		return nil, ErrUserInactive
	}

	if !e.codes.Verify(user.Email, code, now) {
		exceeded, ferr := e.challengeStore.RecordFailure(ctx, rec.ID, e.config.AdminMFA.MaxAttempts, now.Unix())
		if ferr != nil {
			return nil, ErrStoreUnavailable
		}
		if exceeded {
			e.metrics.Inc(metrics.MetricMFAAttemptsExceeded)
			e.emit(ctx, audit.EventAttemptsExceeded, user.ID, "", meta, false, "attempt budget spent")
			return nil, ErrMFAAttemptsExceeded
		}
		e.metrics.Inc(metrics.MetricAdminMFAFailure)
		e.emit(ctx, audit.EventAdminMFADenied, user.ID, "", meta, false, "code mismatch")
		return nil, ErrMFACodeInvalid
	}

	outcome, err := e.challengeStore.Consume(ctx, rec.ID, user.ID, now.Unix())
	if err != nil {
		return nil, ErrStoreUnavailable
	}
	if outcome != stores.ConsumeOK {
		// lost a race with a concurrent verification of the same challenge
		e.metrics.Inc(metrics.MetricMFAReplayAttempt)
		e.emit(ctx, audit.EventChallengeReplay, user.ID, "", meta, false, "concurrent consume")
		return nil, ErrChallengeNotFound
	}

	identity, err := e.snapshot(ctx, user)
	if err != nil {
		return nil, err
	}

	result, err := e.issueTokens(ctx, identity, true, meta)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(metrics.MetricAdminMFASuccess)
	e.emit(ctx, audit.EventAdminMFAVerified, user.ID, "", meta, true, "")

	if err := e.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		e.emit(ctx, audit.EventStoreUnavailable, user.ID, "", meta, false, "last login update failed")
	}

	return result, nil
}
