package authcore

import (
	"context"
	"testing"
	"time"

	"github.com/mindhaven/authcore/authz"
)

func initiateAdmin(t *testing.T, engine *Engine) *AdminChallenge {
	t.Helper()

	challenge, err := engine.AdminLoginInitiate(context.Background(), "root@example.com", "root-password-123", testMeta())
	if err != nil {
		t.Fatalf("AdminLoginInitiate failed: %v", err)
	}
	if challenge.MFAToken == "" {
		t.Fatal("expected an intermediate token")
	}
	return challenge
}

func adminCode(engine *Engine) string {
	return engine.codes.Generate("root@example.com", engine.clock())
}

func TestAdminMFAFlow(t *testing.T) {
	engine, _, _ := newTestEngine(t, testEngineConfig())

	challenge := initiateAdmin(t, engine)
	if engine.MetricValue(MetricAdminMFARequired) != 1 {
		t.Fatal("expected admin mfa required counter")
	}

	result, err := engine.AdminLoginVerifyMFA(context.Background(), challenge.MFAToken, adminCode(engine), testMeta())
	if err != nil {
		t.Fatalf("AdminLoginVerifyMFA failed: %v", err)
	}

	identity, err := engine.VerifyAccess(result.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess failed: %v", err)
	}
	if identity.Role != "admin" {
		t.Fatalf("expected normalized admin role, got %q", identity.Role)
	}
	if identity.PrivilegeLevel != authz.PrivilegeAdmin {
		t.Fatalf("expected admin privilege, got %d", identity.PrivilegeLevel)
	}
	if !identity.MFAVerified {
		t.Fatal("expected mfaVerified after challenge flow")
	}
	if !authz.RequireAdminMFA(identity) {
		t.Fatal("expected identity to satisfy the admin MFA gate")
	}
}

func TestAdminMFAIntermediateTokenGrantsNothing(t *testing.T) {
	engine, _, _ := newTestEngine(t, testEngineConfig())

	challenge := initiateAdmin(t, engine)

	if _, err := engine.VerifyAccess(challenge.MFAToken); err != ErrTokenInvalid {
		t.Fatalf("intermediate token must not pass the access guard, got %v", err)
	}
}

func TestAdminMFAWrongThenCorrectCode(t *testing.T) {
	engine, _, _ := newTestEngine(t, testEngineConfig())

	challenge := initiateAdmin(t, engine)

	if _, err := engine.AdminLoginVerifyMFA(context.Background(), challenge.MFAToken, "000000", testMeta()); err != ErrMFACodeInvalid {
		t.Fatalf("expected ErrMFACodeInvalid, got %v", err)
	}

	// the failed attempt must not burn the challenge
	result, err := engine.AdminLoginVerifyMFA(context.Background(), challenge.MFAToken, adminCode(engine), testMeta())
	if err != nil {
		t.Fatalf("AdminLoginVerifyMFA after wrong code failed: %v", err)
	}
	if result.AccessToken == "" {
		t.Fatal("expected tokens after correct code")
	}
}

func TestAdminMFAAttemptBudget(t *testing.T) {
	cfg := testEngineConfig()
	cfg.AdminMFA.MaxAttempts = 2
	engine, _, _ := newTestEngine(t, cfg)

	challenge := initiateAdmin(t, engine)

	if _, err := engine.AdminLoginVerifyMFA(context.Background(), challenge.MFAToken, "000000", testMeta()); err != ErrMFACodeInvalid {
		t.Fatalf("first wrong code: expected ErrMFACodeInvalid, got %v", err)
	}
	if _, err := engine.AdminLoginVerifyMFA(context.Background(), challenge.MFAToken, "000001", testMeta()); err != ErrMFAAttemptsExceeded {
		t.Fatalf("second wrong code: expected ErrMFAAttemptsExceeded, got %v", err)
	}

	// burned: even the correct code is refused now
	if _, err := engine.AdminLoginVerifyMFA(context.Background(), challenge.MFAToken, adminCode(engine), testMeta()); err != ErrChallengeNotFound {
		t.Fatalf("expected ErrChallengeNotFound after burn, got %v", err)
	}
	if engine.MetricValue(MetricMFAAttemptsExceeded) == 0 {
		t.Fatal("expected attempts exceeded counter")
	}
}

func TestAdminMFADeviceMismatch(t *testing.T) {
	engine, _, _ := newTestEngine(t, testEngineConfig())

	challenge := initiateAdmin(t, engine)

	otherDevice := ClientMeta{IP: "198.51.100.9", UserAgent: "other-agent/2.0"}
	if _, err := engine.AdminLoginVerifyMFA(context.Background(), challenge.MFAToken, adminCode(engine), otherDevice); err != ErrDeviceMismatch {
		t.Fatalf("expected ErrDeviceMismatch, got %v", err)
	}
	if engine.MetricValue(MetricDeviceRejected) != 1 {
		t.Fatal("expected device rejected counter")
	}

	// same IP, different agent still mismatches
	sameIP := ClientMeta{IP: testMeta().IP, UserAgent: "other-agent/2.0"}
	if _, err := engine.AdminLoginVerifyMFA(context.Background(), challenge.MFAToken, adminCode(engine), sameIP); err != ErrDeviceMismatch {
		t.Fatalf("expected ErrDeviceMismatch for agent change, got %v", err)
	}

	// the mismatches must not have consumed the challenge
	if _, err := engine.AdminLoginVerifyMFA(context.Background(), challenge.MFAToken, adminCode(engine), testMeta()); err != nil {
		t.Fatalf("original device verify failed: %v", err)
	}
}

func TestAdminMFAChallengeSingleUse(t *testing.T) {
	engine, _, _ := newTestEngine(t, testEngineConfig())

	challenge := initiateAdmin(t, engine)

	if _, err := engine.AdminLoginVerifyMFA(context.Background(), challenge.MFAToken, adminCode(engine), testMeta()); err != nil {
		t.Fatalf("AdminLoginVerifyMFA failed: %v", err)
	}

	if _, err := engine.AdminLoginVerifyMFA(context.Background(), challenge.MFAToken, adminCode(engine), testMeta()); err != ErrChallengeNotFound {
		t.Fatalf("expected ErrChallengeNotFound on replay, got %v", err)
	}
	if engine.MetricValue(MetricMFAReplayAttempt) == 0 {
		t.Fatal("expected replay counter")
	}
}

func TestAdminMFANonAdminRejected(t *testing.T) {
	engine, _, _ := newTestEngine(t, testEngineConfig())

	if _, err := engine.AdminLoginInitiate(context.Background(), "alice@example.com", "alice-password-123", testMeta()); err != ErrPermissionDenied {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestAdminCodeSkewWindow(t *testing.T) {
	cfg := testEngineConfig()
	engine, _, _ := newTestEngine(t, cfg)

	now := engine.clock()
	step := time.Duration(cfg.AdminMFA.StepSeconds) * time.Second

	previous := engine.codes.Generate("root@example.com", now.Add(-step))
	if !engine.codes.Verify("root@example.com", previous, now) {
		t.Fatal("code from the previous step must verify within skew")
	}

	ancient := engine.codes.Generate("root@example.com", now.Add(-3*step))
	if engine.codes.Verify("root@example.com", ancient, now) {
		t.Fatal("code from three steps back must not verify")
	}

	otherAdmin := engine.codes.Generate("other@example.com", now)
	if engine.codes.Verify("root@example.com", otherAdmin, now) &&
		otherAdmin != engine.codes.Generate("root@example.com", now) {
		t.Fatal("codes must be scoped per admin identity")
	}
}
