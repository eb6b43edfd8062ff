package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mindhaven/authcore/authz"
	"github.com/mindhaven/authcore/password"
)

type memoryUserStore struct {
	mu        sync.Mutex
	byIdent   map[string]*UserRecord
	byID      map[string]*UserRecord
	lastLogin map[string]time.Time
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{
		byIdent:   make(map[string]*UserRecord),
		byID:      make(map[string]*UserRecord),
		lastLogin: make(map[string]time.Time),
	}
}

func (s *memoryUserStore) add(identifier string, user *UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byIdent[identifier] = user
	s.byID[user.ID] = user
}

func (s *memoryUserStore) FindByIdentifier(_ context.Context, identifier string) (*UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byIdent[identifier]
	if !ok {
		return nil, errors.New("no such user")
	}
	copied := *user
	return &copied, nil
}

func (s *memoryUserStore) FindByID(_ context.Context, userID string) (*UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[userID]
	if !ok {
		return nil, errors.New("no such user")
	}
	copied := *user
	return &copied, nil
}

func (s *memoryUserStore) UpdateLastLogin(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastLogin[userID] = at
	return nil
}

type staticResolver struct {
	perms map[string][]string
}

func (r *staticResolver) ResolvePermissions(_ context.Context, _ string, role string) ([]string, error) {
	return r.perms[role], nil
}

type stubOTP struct {
	sent []string
	code string
}

func (o *stubOTP) SendOTP(_ context.Context, identifier string) error {
	o.sent = append(o.sent, identifier)
	return nil
}

func (o *stubOTP) VerifyOTP(_ context.Context, _ string, code string) (bool, error) {
	return code == o.code, nil
}

func testEngineConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-0123456789abcdef-0123")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-0123456789abcdef-012")
	cfg.JWT.Issuer = "authcore-test"
	cfg.AdminMFA.BaseSecret = []byte("mfa-base-secret-0123456789")
	cfg.Password.MemoryKB = 8 * 1024
	cfg.Password.Iterations = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true
	return cfg
}

func hashPassword(t *testing.T, cfg Config, pass string) string {
	t.Helper()
	h, err := password.NewHasher(password.Params{
		MemoryKB:    cfg.Password.MemoryKB,
		Iterations:  cfg.Password.Iterations,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	encoded, err := h.Hash(pass)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	return encoded
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *memoryUserStore, *stubOTP) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	users := newMemoryUserStore()
	users.add("alice@example.com", &UserRecord{
		ID:           "u-alice",
		Email:        "alice@example.com",
		Role:         "user",
		PasswordHash: hashPassword(t, cfg, "alice-password-123"),
		Active:       true,
		Features:     []string{"exports"},
	})
	users.add("root@example.com", &UserRecord{
		ID:           "u-root",
		Email:        "root@example.com",
		Role:         "Admin", // mixed case on purpose
		PasswordHash: hashPassword(t, cfg, "root-password-123"),
		Active:       true,
	})

	otp := &stubOTP{code: "424242"}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserStore(users).
		WithPermissionResolver(&staticResolver{perms: map[string][]string{
			"user":  {"profile:read"},
			"admin": {"profile:read", "users:write"},
		}}).
		WithOTPVerifier(otp).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, users, otp
}

func testMeta() ClientMeta {
	return ClientMeta{IP: "203.0.113.7", UserAgent: "test-agent/1.0"}
}

func TestLoginIssuesTokenPair(t *testing.T) {
	cfg := testEngineConfig()
	engine, users, _ := newTestEngine(t, cfg)

	result, err := engine.Login(context.Background(), "alice@example.com", "alice-password-123", testMeta())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" || result.CSRFToken == "" {
		t.Fatal("expected full token set")
	}
	if result.ExpiresIn != int64(cfg.JWT.AccessTTL.Seconds()) {
		t.Fatalf("expected ExpiresIn %d, got %d", int64(cfg.JWT.AccessTTL.Seconds()), result.ExpiresIn)
	}

	identity, err := engine.VerifyAccess(result.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess failed: %v", err)
	}
	if identity.UserID != "u-alice" || identity.Role != "user" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
	if identity.PrivilegeLevel != authz.PrivilegeUser {
		t.Fatalf("expected user privilege, got %d", identity.PrivilegeLevel)
	}
	if identity.MFAVerified {
		t.Fatal("password login must not set mfaVerified")
	}
	if !authz.HasPermission(identity, authz.PermissionAll, "profile:read") {
		t.Fatal("expected resolved permissions in snapshot")
	}

	if _, ok := users.lastLogin["u-alice"]; !ok {
		t.Fatal("expected last login to be recorded")
	}
	if engine.MetricValue(MetricLoginSuccess) != 1 {
		t.Fatal("expected login success counter")
	}
}

func TestLoginRejectsBadCredentialsUniformly(t *testing.T) {
	engine, _, _ := newTestEngine(t, testEngineConfig())

	if _, err := engine.Login(context.Background(), "nobody@example.com", "whatever", testMeta()); err != ErrInvalidCredentials {
		t.Fatalf("unknown identifier: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := engine.Login(context.Background(), "alice@example.com", "wrong-password", testMeta()); err != ErrInvalidCredentials {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if engine.MetricValue(MetricLoginFailure) != 2 {
		t.Fatalf("expected 2 login failures, got %d", engine.MetricValue(MetricLoginFailure))
	}
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	cfg := testEngineConfig()
	engine, users, _ := newTestEngine(t, cfg)

	users.add("gone@example.com", &UserRecord{
		ID:           "u-gone",
		Email:        "gone@example.com",
		Role:         "user",
		PasswordHash: hashPassword(t, cfg, "gone-password-123"),
		Active:       false,
	})

	if _, err := engine.Login(context.Background(), "gone@example.com", "gone-password-123", testMeta()); err != ErrUserInactive {
		t.Fatalf("expected ErrUserInactive, got %v", err)
	}
}

func TestAdminPasswordLoginRefused(t *testing.T) {
	engine, _, _ := newTestEngine(t, testEngineConfig())

	_, err := engine.Login(context.Background(), "root@example.com", "root-password-123", testMeta())
	if err != ErrAdminLoginRequired {
		t.Fatalf("expected ErrAdminLoginRequired, got %v", err)
	}
}

func TestAdminOTPLoginRefused(t *testing.T) {
	engine, _, _ := newTestEngine(t, testEngineConfig())

	// a correct one-time code must not open a side door around the MFA
	// challenge flow
	if _, err := engine.LoginWithOTP(context.Background(), "root@example.com", "424242", testMeta()); err != ErrAdminLoginRequired {
		t.Fatalf("expected ErrAdminLoginRequired, got %v", err)
	}
}

func TestAdminRolesConfigNormalized(t *testing.T) {
	cfg := testEngineConfig()
	cfg.AdminRoles = []string{"Admin", "Superadmin"}
	engine, _, _ := newTestEngine(t, cfg)

	if _, err := engine.Login(context.Background(), "root@example.com", "root-password-123", testMeta()); err != ErrAdminLoginRequired {
		t.Fatalf("expected ErrAdminLoginRequired with mixed-case config, got %v", err)
	}
	if _, err := engine.LoginWithOTP(context.Background(), "root@example.com", "424242", testMeta()); err != ErrAdminLoginRequired {
		t.Fatalf("expected ErrAdminLoginRequired on OTP path, got %v", err)
	}
}

func TestBuilderBuildsOnce(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	builder := New().
		WithConfig(testEngineConfig()).
		WithRedis(client).
		WithUserStore(newMemoryUserStore()).
		WithPermissionResolver(&staticResolver{perms: map[string][]string{}})

	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := builder.Build(); err == nil {
		t.Fatal("second Build must fail")
	}
}

func TestRequirePrivilege(t *testing.T) {
	admin := authz.Identity{PrivilegeLevel: authz.PrivilegeAdmin}
	if err := RequirePrivilege(admin, authz.PrivilegeUser); err != nil {
		t.Fatalf("admin above user gate: %v", err)
	}

	user := authz.Identity{PrivilegeLevel: authz.PrivilegeUser}
	if err := RequirePrivilege(user, authz.PrivilegeAdmin); err != ErrInsufficientPrivilege {
		t.Fatalf("expected ErrInsufficientPrivilege, got %v", err)
	}
}

func TestLoginWithOTP(t *testing.T) {
	engine, _, otp := newTestEngine(t, testEngineConfig())

	if err := engine.SendOTP(context.Background(), "alice@example.com", testMeta()); err != nil {
		t.Fatalf("SendOTP failed: %v", err)
	}
	if len(otp.sent) != 1 || otp.sent[0] != "alice@example.com" {
		t.Fatalf("unexpected OTP deliveries: %v", otp.sent)
	}

	// unknown identifiers are absorbed, not reported
	if err := engine.SendOTP(context.Background(), "nobody@example.com", testMeta()); err != nil {
		t.Fatalf("SendOTP(unknown) failed: %v", err)
	}
	if len(otp.sent) != 1 {
		t.Fatal("OTP must not be delivered for unknown identifiers")
	}

	if _, err := engine.LoginWithOTP(context.Background(), "alice@example.com", "000000", testMeta()); err != ErrOTPInvalid {
		t.Fatalf("expected ErrOTPInvalid, got %v", err)
	}

	result, err := engine.LoginWithOTP(context.Background(), "alice@example.com", "424242", testMeta())
	if err != nil {
		t.Fatalf("LoginWithOTP failed: %v", err)
	}

	identity, err := engine.VerifyAccess(result.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess failed: %v", err)
	}
	if identity.MFAVerified {
		t.Fatal("OTP login is a primary factor, mfaVerified must stay false")
	}
	if authz.RequireAdminMFA(identity) {
		t.Fatal("OTP login must not satisfy the admin MFA gate")
	}
}

func TestVerifyAccessDistinguishesExpired(t *testing.T) {
	cfg := testEngineConfig()

	engine, _, _ := newTestEngine(t, cfg)

	if _, err := engine.VerifyAccess("garbage"); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}

	// a second engine whose clock sits in the past mints aged tokens
	// with the same secrets
	past := func() time.Time { return time.Now().Add(-time.Hour) }
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	users := newMemoryUserStore()
	users.add("alice@example.com", &UserRecord{
		ID:           "u-alice",
		Email:        "alice@example.com",
		Role:         "user",
		PasswordHash: hashPassword(t, cfg, "alice-password-123"),
		Active:       true,
	})

	oldEngine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserStore(users).
		WithPermissionResolver(&staticResolver{perms: map[string][]string{}}).
		WithClock(past).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(oldEngine.Close)

	stale, err := oldEngine.Login(context.Background(), "alice@example.com", "alice-password-123", testMeta())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if _, err := engine.VerifyAccess(stale.AccessToken); err != ErrTokenExpired {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestRefreshTokenRejectedAsAccess(t *testing.T) {
	engine, _, _ := newTestEngine(t, testEngineConfig())

	result, err := engine.Login(context.Background(), "alice@example.com", "alice-password-123", testMeta())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if _, err := engine.VerifyAccess(result.RefreshToken); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid for refresh-as-access, got %v", err)
	}
}
