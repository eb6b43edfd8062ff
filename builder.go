package authcore

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mindhaven/authcore/internal/audit"
	"github.com/mindhaven/authcore/internal/metrics"
	"github.com/mindhaven/authcore/internal/stores"
	"github.com/mindhaven/authcore/jwt"
	"github.com/mindhaven/authcore/password"
)

// Builder assembles an Engine. Exactly one token backend (Redis or
// Postgres) must be provided.
type Builder struct {
	config Config

	redis    redis.UniversalClient
	postgres *sql.DB

	users       UserStore
	permissions PermissionResolver
	otp         OTPVerifier
	auditSink   AuditSink
	clock       func() time.Time

	built bool
}

// New returns a Builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. Zero-value fields are
// not backfilled; start from New()'s defaults and override instead if
// only a few knobs matter.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithPostgres(db *sql.DB) *Builder {
	b.postgres = db
	return b
}

func (b *Builder) WithUserStore(users UserStore) *Builder {
	b.users = users
	return b
}

func (b *Builder) WithPermissionResolver(resolver PermissionResolver) *Builder {
	b.permissions = resolver
	return b
}

// WithOTPVerifier enables the passwordless login path. Optional.
func (b *Builder) WithOTPVerifier(verifier OTPVerifier) *Builder {
	b.otp = verifier
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithClock overrides the engine's time source. Test hook.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// Build validates the configuration, wires the stores, and returns a
// ready Engine. A Builder can only build once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.users == nil {
		return nil, errors.New("user store required")
	}
	if b.permissions == nil {
		return nil, errors.New("permission resolver required")
	}
	if b.redis == nil && b.postgres == nil {
		return nil, errors.New("a redis client or postgres handle is required")
	}
	if b.redis != nil && b.postgres != nil {
		return nil, errors.New("configure exactly one token backend")
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		ChallengeTTL:  cfg.AdminMFA.ChallengeTTL,
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
		MaxFutureIAT:  cfg.JWT.MaxFutureIAT,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(password.Params{
		MemoryKB:    cfg.Password.MemoryKB,
		Iterations:  cfg.Password.Iterations,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	var (
		refreshStore   stores.RefreshStore
		challengeStore stores.ChallengeStore
	)
	if b.redis != nil {
		refreshStore = stores.NewRedisRefreshStore(b.redis)
		challengeStore = stores.NewRedisChallengeStore(b.redis)
	} else {
		refreshStore = stores.NewPostgresRefreshStore(b.postgres)
		challengeStore = stores.NewPostgresChallengeStore(b.postgres)
	}

	// role lookups always happen on normalized names
	adminRoles := make(map[string]struct{}, len(cfg.AdminRoles))
	for _, role := range cfg.AdminRoles {
		adminRoles[strings.ToLower(role)] = struct{}{}
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	b.built = true

	return &Engine{
		config:         cfg,
		tokens:         tokens,
		hasher:         hasher,
		codes:          newCodeManager(cfg.AdminMFA),
		refreshStore:   refreshStore,
		challengeStore: challengeStore,
		users:          b.users,
		permissions:    b.permissions,
		otp:            b.otp,
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		metrics: metrics.New(metrics.Config{
			Enabled:       cfg.Metrics.Enabled,
			EnableLatency: cfg.Metrics.EnableLatencyHistograms,
		}),
		clock:      clock,
		adminRoles: adminRoles,
	}, nil
}
