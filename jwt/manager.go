package jwt

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token type discriminators carried in the typ claim.
const (
	TypeAccess    = "access"
	TypeRefresh   = "refresh"
	TypeChallenge = "admin_mfa"
)

var (
	// ErrTokenExpired means the token was well formed and correctly
	// signed but its exp has passed.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid covers every other verification failure: bad
	// signature, wrong key, wrong typ, malformed claims, future iat.
	ErrTokenInvalid = errors.New("token invalid")
)

// Config holds the signing material and lifetimes for all token kinds.
// AccessSecret and RefreshSecret must differ; challenge tokens share
// the access secret since both gate the same surface.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ChallengeTTL  time.Duration
	Issuer        string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
}

// AccessClaims is the payload of an access token. The snapshot fields
// (role, permissions, features) are authoritative for the token's
// lifetime; no datastore lookup happens at verification.
type AccessClaims struct {
	UserID         string   `json:"userId"`
	Email          string   `json:"email"`
	Role           string   `json:"role"`
	PrivilegeLevel int      `json:"privilegeLevel"`
	Permissions    []string `json:"permissions,omitempty"`
	Features       []string `json:"features,omitempty"`
	MFAVerified    bool     `json:"mfaVerified"`
	TokenType      string   `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token. TokenID names the
// stored record; FamilyID names the rotation chain it belongs to.
type RefreshClaims struct {
	UserID    string `json:"userId"`
	TokenID   string `json:"tokenId"`
	FamilyID  string `json:"familyId"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// ChallengeClaims is the payload of the intermediate token returned by
// admin login initiation. Fingerprint binds it to the initiating device.
type ChallengeClaims struct {
	UserID      string `json:"userId"`
	ChallengeID string `json:"challengeId"`
	Fingerprint string `json:"fingerprint"`
	TokenType   string `json:"typ"`
	jwt.RegisteredClaims
}

// Manager signs and verifies tokens. Immutable after construction and
// safe for concurrent use.
type Manager struct {
	config Config
}

func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) < 32 || len(cfg.RefreshSecret) < 32 {
		return nil, errors.New("jwt secrets must be at least 32 bytes")
	}
	if len(cfg.AccessSecret) == len(cfg.RefreshSecret) &&
		subtle.ConstantTimeCompare(cfg.AccessSecret, cfg.RefreshSecret) == 1 {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 || cfg.ChallengeTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}

	return &Manager{config: cfg}, nil
}

// AccessTTL exposes the configured access lifetime for cookie and
// expires-in plumbing.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

func (m *Manager) ChallengeTTL() time.Duration { return m.config.ChallengeTTL }

func (m *Manager) CreateAccess(claims AccessClaims, now time.Time) (string, error) {
	claims.TokenType = TypeAccess
	claims.RegisteredClaims = m.registered(now, m.config.AccessTTL)
	return m.sign(claims, m.config.AccessSecret)
}

func (m *Manager) CreateRefresh(claims RefreshClaims, now time.Time) (string, error) {
	claims.TokenType = TypeRefresh
	claims.RegisteredClaims = m.registered(now, m.config.RefreshTTL)
	return m.sign(claims, m.config.RefreshSecret)
}

func (m *Manager) CreateChallenge(claims ChallengeClaims, now time.Time) (string, error) {
	claims.TokenType = TypeChallenge
	claims.RegisteredClaims = m.registered(now, m.config.ChallengeTTL)
	return m.sign(claims, m.config.AccessSecret)
}

// ParseAccess verifies signature, lifetime, issuer, and typ, returning
// ErrTokenExpired only for the expiry case so callers can tell clients
// to refresh rather than re-authenticate.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(tokenStr, claims, m.config.AccessSecret); err != nil {
		return nil, err
	}
	if claims.TokenType != TypeAccess {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (m *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(tokenStr, claims, m.config.RefreshSecret); err != nil {
		return nil, err
	}
	if claims.TokenType != TypeRefresh || claims.TokenID == "" || claims.FamilyID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (m *Manager) ParseChallenge(tokenStr string) (*ChallengeClaims, error) {
	claims := &ChallengeClaims{}
	if err := m.parse(tokenStr, claims, m.config.AccessSecret); err != nil {
		return nil, err
	}
	if claims.TokenType != TypeChallenge || claims.ChallengeID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (m *Manager) registered(now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    m.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (m *Manager) sign(claims jwt.Claims, secret []byte) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

type iatCarrier interface {
	jwt.Claims
	issuedAt() *jwt.NumericDate
}

func (c *AccessClaims) issuedAt() *jwt.NumericDate    { return c.IssuedAt }
func (c *RefreshClaims) issuedAt() *jwt.NumericDate   { return c.IssuedAt }
func (c *ChallengeClaims) issuedAt() *jwt.NumericDate { return c.IssuedAt }

func (m *Manager) parse(tokenStr string, claims iatCarrier, secret []byte) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	if !token.Valid {
		return ErrTokenInvalid
	}

	if iat := claims.issuedAt(); iat != nil && iat.Time.After(time.Now().Add(m.config.MaxFutureIAT)) {
		return ErrTokenInvalid
	}

	return nil
}
