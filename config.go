package blogauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/blogauth/internal/audit"
	"github.com/MrEthical07/blogauth/internal/limiters"
	"github.com/MrEthical07/blogauth/internal/tokens"
	"github.com/MrEthical07/blogauth/password"
	"github.com/MrEthical07/blogauth/twofactor"
)

// Config is consumed once by the Builder and treated as immutable afterwards.
type Config struct {
	Password  PasswordConfig  `yaml:"password"`
	Tokens    TokensConfig    `yaml:"tokens"`
	TwoFactor TwoFactorConfig `yaml:"two_factor"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Lockout   LockoutConfig   `yaml:"lockout"`
	Federated FederatedConfig `yaml:"federated"`
	Audit     AuditConfig     `yaml:"audit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Redis     RedisConfig     `yaml:"redis"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id costs, the legacy bcrypt cost, and the
// strength policy applied at registration and reset.
type PasswordConfig struct {
	Memory      uint32 `yaml:"memory_kb"`
	Time        uint32 `yaml:"time"`
	Parallelism uint8  `yaml:"parallelism"`
	SaltLength  uint32 `yaml:"salt_length"`
	KeyLength   uint32 `yaml:"key_length"`
	BcryptCost  int    `yaml:"bcrypt_cost"`

	// UpgradeOnLogin rehashes bcrypt and weaker argon2 digests after a
	// successful login.
	UpgradeOnLogin bool `yaml:"upgrade_on_login"`

	Policy password.Policy `yaml:"policy"`
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokensConfig sets the lifetime of emailed tokens.
type TokensConfig struct {
	VerificationTTL time.Duration `yaml:"verification_ttl"`
	ResetTTL        time.Duration `yaml:"reset_ttl"`
}

/*
====================================
TWO-FACTOR CONFIG
====================================
*/

// TwoFactorConfig defines TOTP parameters and the backup code batch size.
type TwoFactorConfig struct {
	Issuer          string `yaml:"issuer"`
	Digits          int    `yaml:"digits"`
	Period          int    `yaml:"period"`
	Algorithm       string `yaml:"algorithm"`
	Skew            int    `yaml:"skew"`
	BackupCodeCount int    `yaml:"backup_code_count"`

	// CodeThrottle limits wrong codes on confirm, disable and backup code
	// regeneration. It needs a Redis client.
	CodeThrottle limiters.CodeThrottleConfig `yaml:"code_throttle"`
}

/*
====================================
RATE LIMIT AND LOCKOUT CONFIG
====================================
*/

// RateLimitConfig holds one sliding window per action class. Windows count
// failed attempts per source IP.
type RateLimitConfig struct {
	Login         limiters.WindowPolicy `yaml:"login"`
	PasswordReset limiters.WindowPolicy `yaml:"password_reset"`
	Registration  limiters.WindowPolicy `yaml:"registration"`
}

// LockoutConfig is the per-account failure threshold.
type LockoutConfig struct {
	Threshold int           `yaml:"threshold"`
	Duration  time.Duration `yaml:"duration"`
}

/*
====================================
FEDERATED CONFIG
====================================
*/

// FederatedConfig controls provider logins.
type FederatedConfig struct {
	// AutoProvision creates a social-only account for an unknown email.
	AutoProvision bool `yaml:"auto_provision"`
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"latency_histograms"`
}

/*
====================================
REDIS CONFIG
====================================
*/

// RedisConfig shapes the Redis key space used by the built-in store.
type RedisConfig struct {
	Prefix string `yaml:"prefix"`
	// AttemptRetention bounds the attempt index. It must cover the longest
	// rate-limit window; zero derives it from RateLimit.
	AttemptRetention time.Duration `yaml:"attempt_retention"`
}

// DefaultConfig returns production defaults: argon2id at 64 MiB, 24h
// verification and 1h reset tokens, RFC 6238 TOTP with two steps of skew,
// LOGIN 5 per 15m, PASSWORD_RESET 3 per hour, REGISTRATION 5 per hour, and a
// 30 minute lock after 5 failures.
func DefaultConfig() Config {
	pw := password.DefaultConfig()
	tf := twofactor.DefaultConfig()
	rl := limiters.DefaultRateLimitConfig()
	lk := limiters.DefaultLockConfig()
	tk := tokens.DefaultConfig()

	return Config{
		Password: PasswordConfig{
			Memory:         pw.Memory,
			Time:           pw.Time,
			Parallelism:    pw.Parallelism,
			SaltLength:     pw.SaltLength,
			KeyLength:      pw.KeyLength,
			BcryptCost:     password.DefaultBcryptCost,
			UpgradeOnLogin: true,
			Policy:         password.DefaultPolicy(),
		},
		Tokens: TokensConfig{
			VerificationTTL: tk.VerificationTTL,
			ResetTTL:        tk.ResetTTL,
		},
		TwoFactor: TwoFactorConfig{
			Issuer:          tf.Issuer,
			Digits:          tf.Digits,
			Period:          tf.Period,
			Algorithm:       tf.Algorithm,
			Skew:            tf.Skew,
			BackupCodeCount: tf.BackupCodeCount,
			CodeThrottle: limiters.CodeThrottleConfig{
				MaxFailures: 5,
				Window:      5 * time.Minute,
			},
		},
		RateLimit: RateLimitConfig{
			Login:         rl.Login,
			PasswordReset: rl.PasswordReset,
			Registration:  rl.Registration,
		},
		Lockout: LockoutConfig{
			Threshold: lk.Threshold,
			Duration:  lk.Duration,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Redis: RedisConfig{
			Prefix: "blogauth",
		},
	}
}

// Validate reports the first setting that cannot produce a working engine.
func (c *Config) Validate() error {
	// Password
	if err := c.argon2().validate(); err != nil {
		return err
	}
	if c.Password.BcryptCost != 0 && (c.Password.BcryptCost < 10 || c.Password.BcryptCost > 31) {
		return errors.New("Password BcryptCost must be between 10 and 31")
	}
	if c.Password.Policy.MinLength < 8 {
		return errors.New("Password Policy MinLength must be >= 8")
	}

	// Tokens
	if c.Tokens.VerificationTTL <= 0 {
		return errors.New("Tokens VerificationTTL must be > 0")
	}
	if c.Tokens.ResetTTL <= 0 {
		return errors.New("Tokens ResetTTL must be > 0")
	}
	if c.Tokens.ResetTTL > c.Tokens.VerificationTTL {
		return errors.New("Tokens ResetTTL must not exceed VerificationTTL")
	}

	// Two-factor
	if err := c.twoFactor().Validate(); err != nil {
		return fmt.Errorf("TwoFactor: %w", err)
	}
	if c.TwoFactor.CodeThrottle.MaxFailures < 0 || c.TwoFactor.CodeThrottle.Window < 0 {
		return errors.New("TwoFactor CodeThrottle values must be >= 0")
	}

	// Rate limits
	for name, p := range map[string]limiters.WindowPolicy{
		"Login":         c.RateLimit.Login,
		"PasswordReset": c.RateLimit.PasswordReset,
		"Registration":  c.RateLimit.Registration,
	} {
		if p.Window <= 0 {
			return fmt.Errorf("RateLimit %s Window must be > 0", name)
		}
		if p.Max <= 0 {
			return fmt.Errorf("RateLimit %s Max must be > 0", name)
		}
	}

	// Lockout
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	// Redis
	if c.Redis.Prefix == "" {
		return errors.New("Redis Prefix must not be empty")
	}
	if c.Redis.AttemptRetention != 0 && c.Redis.AttemptRetention < c.rateLimits().LongestWindow() {
		return errors.New("Redis AttemptRetention must cover the longest rate-limit window")
	}

	return nil
}

type argon2Params password.Config

func (p argon2Params) validate() error {
	switch {
	case p.Memory < 8*1024:
		return errors.New("Password Memory must be >= 8192 KB")
	case p.Time < 1:
		return errors.New("Password Time must be >= 1")
	case p.Parallelism < 1:
		return errors.New("Password Parallelism must be >= 1")
	case p.SaltLength < 16:
		return errors.New("Password SaltLength must be >= 16")
	case p.KeyLength < 16:
		return errors.New("Password KeyLength must be >= 16")
	}
	return nil
}

func (c *Config) argon2() argon2Params {
	return argon2Params{
		Memory:      c.Password.Memory,
		Time:        c.Password.Time,
		Parallelism: c.Password.Parallelism,
		SaltLength:  c.Password.SaltLength,
		KeyLength:   c.Password.KeyLength,
	}
}

func (c *Config) twoFactor() twofactor.Config {
	d := twofactor.DefaultConfig()
	return twofactor.Config{
		Issuer:          c.TwoFactor.Issuer,
		Digits:          c.TwoFactor.Digits,
		Period:          c.TwoFactor.Period,
		Algorithm:       c.TwoFactor.Algorithm,
		Skew:            c.TwoFactor.Skew,
		BackupCodeCount: c.TwoFactor.BackupCodeCount,
		BackupCodeBytes: d.BackupCodeBytes,
	}
}

func (c *Config) rateLimits() limiters.RateLimitConfig {
	return limiters.RateLimitConfig{
		Login:         c.RateLimit.Login,
		PasswordReset: c.RateLimit.PasswordReset,
		Registration:  c.RateLimit.Registration,
	}
}

func (c *Config) attemptRetention() time.Duration {
	if c.Redis.AttemptRetention > 0 {
		return c.Redis.AttemptRetention
	}
	return c.rateLimits().LongestWindow()
}

func (c *Config) auditConfig() audit.Config {
	return audit.Config{
		Enabled:    c.Audit.Enabled,
		BufferSize: c.Audit.BufferSize,
		DropIfFull: c.Audit.DropIfFull,
	}
}
