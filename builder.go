package blogauth

import (
	"errors"
	"time"

	"github.com/MrEthical07/blogauth/domain"
	"github.com/MrEthical07/blogauth/internal"
	"github.com/MrEthical07/blogauth/internal/audit"
	"github.com/MrEthical07/blogauth/internal/consent"
	internalflows "github.com/MrEthical07/blogauth/internal/flows"
	"github.com/MrEthical07/blogauth/internal/limiters"
	"github.com/MrEthical07/blogauth/internal/stores"
	"github.com/MrEthical07/blogauth/internal/tokens"
	"github.com/MrEthical07/blogauth/password"
	"github.com/MrEthical07/blogauth/twofactor"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an Engine. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  domain.Store

	logger    *zap.Logger
	mailer    Mailer
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis backs the engine with the built-in Redis store under
// Config.Redis.Prefix.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore backs the engine with any domain.Store. It takes precedence over
// WithRedis.
func (b *Builder) WithStore(store domain.Store) *Builder {
	b.store = store
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMailer sets the delivery channel for verification and reset tokens.
// Without one, messages are written to the logger.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithAuditSink sets the audit destination. Without one, events go to the
// logger through a ZapSink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock replaces time.Now for every time-dependent component. Tests use
// it to step through lock and token expiry.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := b.store
	if store == nil {
		if b.redis == nil {
			return nil, errors.New("store or redis client required")
		}
		store = stores.NewRedis(b.redis, cfg.Redis.Prefix, cfg.attemptRetention())
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// -------- CREDENTIALS --------
	argon, err := password.NewArgon2(password.Config(cfg.argon2()))
	if err != nil {
		return nil, err
	}
	hasher := password.NewMulti(argon, password.NewBcrypt(cfg.Password.BcryptCost))

	filler, err := internal.NewToken()
	if err != nil {
		return nil, err
	}
	dummyDigest, err := hasher.Hash(filler)
	if err != nil {
		return nil, err
	}

	// -------- TWO-FACTOR --------
	tf, err := twofactor.New(cfg.twoFactor(), store, now)
	if err != nil {
		return nil, err
	}

	var codeThrottle *limiters.CodeThrottle
	if b.redis != nil {
		codeThrottle = limiters.NewCodeThrottle(b.redis, cfg.Redis.Prefix, cfg.TwoFactor.CodeThrottle, now)
	}

	// -------- METRICS / AUDIT --------
	metrics := NewMetrics(cfg.Metrics)
	sink := b.auditSink
	if sink == nil {
		sink = NewZapSink(logger)
	}
	dispatcher := audit.NewDispatcher(cfg.auditConfig(), sink,
		audit.WithDropHook(func() { metrics.Inc(MetricAuditDropped) }),
		audit.WithClock(now),
	)

	mailer := b.mailer
	if mailer == nil {
		mailer = NewLogMailer(logger)
	}

	engine := &Engine{
		config:      cfg,
		store:       store,
		hasher:      hasher,
		dummyDigest: dummyDigest,
		tokens: tokens.NewIssuer(store, tokens.Config{
			VerificationTTL: cfg.Tokens.VerificationTTL,
			ResetTTL:        cfg.Tokens.ResetTTL,
		}, now),
		twoFactor:   tf,
		rateLimiter: limiters.NewRateLimiter(store, cfg.rateLimits(), now),
		lockPolicy: limiters.NewLockPolicy(store, limiters.LockConfig{
			Threshold: cfg.Lockout.Threshold,
			Duration:  cfg.Lockout.Duration,
		}, now),
		consent:      consent.NewLedger(store, store, now),
		codeThrottle: codeThrottle,
		mailer:       mailer,
		audit:        dispatcher,
		metrics:      metrics,
		logger:       logger,
		now:          now,
		newID:        uuid.NewString,
	}

	// -------- FLOWS --------
	engine.flows = internalflows.New(internalflows.Deps{
		Login:             engine.loginFlowDeps(),
		Registration:      engine.registrationFlowDeps(),
		EmailVerification: engine.emailVerificationFlowDeps(),
		PasswordReset:     engine.passwordResetFlowDeps(),
		TwoFactor:         engine.twoFactorFlowDeps(),
	})

	b.built = true

	return engine, nil
}
