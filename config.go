package authcore

import (
	"errors"
	"net/http"
	"time"
)

// Config is the engine configuration. Instances are fixed at Build
// time; the engine keeps its own clone.
type Config struct {
	JWT      JWTConfig
	AdminMFA AdminMFAConfig
	Refresh  RefreshConfig
	Password PasswordConfig
	Cookie   CookieConfig
	Audit    AuditConfig
	Metrics  MetricsConfig

	// AdminRoles are the role names that must complete the MFA
	// challenge flow before receiving tokens. Entries are matched
	// case-insensitively.
	AdminRoles []string
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds the token signing material and lifetimes. Access and
// refresh secrets must be distinct so a refresh token can never pass
// access verification.
type JWTConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
}

/*
====================================
ADMIN MFA CONFIG
====================================
*/

// AdminMFAConfig drives the admin login challenge flow. BaseSecret is
// the server-side key material the per-admin code keys derive from.
type AdminMFAConfig struct {
	BaseSecret   []byte
	ChallengeTTL time.Duration
	Digits       int
	StepSeconds  int
	Skew         int
	MaxAttempts  int
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls rotation-family persistence.
type RefreshConfig struct {
	// RevokeFamilyOnLogout revokes the whole family when one token of
	// it is presented to Logout, not just the presented record.
	RevokeFamilyOnLogout bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the Argon2id cost parameters.
type PasswordConfig struct {
	MemoryKB       uint32
	Iterations     uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig shapes the cookies SessionCookies produces. Paths scope
// where the browser sends each token.
type CookieConfig struct {
	Domain      string
	AccessPath  string
	RefreshPath string
	Secure      bool
	SameSite    http.SameSite
	CSRFTTL     time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counter set.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the baseline configuration. The JWT secrets
// and the admin MFA base secret must be filled in before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Leeway:     30 * time.Second,
		},
		AdminMFA: AdminMFAConfig{
			ChallengeTTL: 5 * time.Minute,
			Digits:       6,
			StepSeconds:  30,
			Skew:         1,
			MaxAttempts:  5,
		},
		Refresh: RefreshConfig{
			RevokeFamilyOnLogout: true,
		},
		Password: PasswordConfig{
			MemoryKB:       65536,
			Iterations:     3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Cookie: CookieConfig{
			AccessPath:  "/api/v1",
			RefreshPath: "/api/v1/auth",
			Secure:      true,
			SameSite:    http.SameSiteStrictMode,
			CSRFTTL:     24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		AdminRoles: []string{"admin", "superadmin"},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	out.AdminMFA.BaseSecret = cloneBytes(cfg.AdminMFA.BaseSecret)
	out.AdminRoles = append([]string(nil), cfg.AdminRoles...)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.AccessSecret) < 32 {
		return errors.New("JWT AccessSecret must be at least 32 bytes")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		return errors.New("JWT RefreshSecret must be at least 32 bytes")
	}
	if string(c.JWT.AccessSecret) == string(c.JWT.RefreshSecret) {
		return errors.New("JWT AccessSecret and RefreshSecret must differ")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must exceed AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2 minutes")
	}

	// Admin MFA
	if len(c.AdminMFA.BaseSecret) < 16 {
		return errors.New("AdminMFA BaseSecret must be at least 16 bytes")
	}
	if c.AdminMFA.ChallengeTTL <= 0 {
		return errors.New("AdminMFA ChallengeTTL must be > 0")
	}
	if c.AdminMFA.Digits < 6 || c.AdminMFA.Digits > 8 {
		return errors.New("AdminMFA Digits must be between 6 and 8")
	}
	if c.AdminMFA.StepSeconds <= 0 {
		return errors.New("AdminMFA StepSeconds must be > 0")
	}
	if c.AdminMFA.Skew < 0 || c.AdminMFA.Skew > 2 {
		return errors.New("AdminMFA Skew must be between 0 and 2")
	}
	if c.AdminMFA.MaxAttempts <= 0 {
		return errors.New("AdminMFA MaxAttempts must be > 0")
	}

	// Password
	if c.Password.MemoryKB < 8*1024 {
		return errors.New("Password MemoryKB must be at least 8192")
	}
	if c.Password.Iterations < 1 {
		return errors.New("Password Iterations must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 || c.Password.KeyLength < 16 {
		return errors.New("Password SaltLength and KeyLength must be at least 16")
	}

	// Cookies
	if c.Cookie.AccessPath == "" || c.Cookie.RefreshPath == "" {
		return errors.New("Cookie paths must be set")
	}
	if c.Cookie.CSRFTTL <= 0 {
		return errors.New("Cookie CSRFTTL must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	if len(c.AdminRoles) == 0 {
		return errors.New("AdminRoles must not be empty")
	}

	return nil
}
