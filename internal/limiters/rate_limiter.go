package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/blogauth/domain"
)

// ErrRateLimiterUnavailable indicates the attempt log could not be read.
var ErrRateLimiterUnavailable = errors.New("rate limiter backend unavailable")

// WindowPolicy is the sliding-window budget of one action class.
type WindowPolicy struct {
	Window time.Duration `yaml:"window"`
	Max    int           `yaml:"max"`
}

// RateLimitConfig is the policy table, one entry per action class.
type RateLimitConfig struct {
	Login         WindowPolicy `yaml:"login"`
	PasswordReset WindowPolicy `yaml:"password_reset"`
	Registration  WindowPolicy `yaml:"registration"`
}

// DefaultRateLimitConfig returns LOGIN 15m/5, PASSWORD_RESET 60m/3 and
// REGISTRATION 60m/5.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Login:         WindowPolicy{Window: 15 * time.Minute, Max: 5},
		PasswordReset: WindowPolicy{Window: time.Hour, Max: 3},
		Registration:  WindowPolicy{Window: time.Hour, Max: 5},
	}
}

// Policy returns the window policy for action.
func (c RateLimitConfig) Policy(action domain.ActionClass) (WindowPolicy, bool) {
	switch action {
	case domain.ActionLogin:
		return c.Login, true
	case domain.ActionPasswordReset:
		return c.PasswordReset, true
	case domain.ActionRegistration:
		return c.Registration, true
	}
	return WindowPolicy{}, false
}

// LongestWindow is the retention an attempt log needs to answer every policy.
func (c RateLimitConfig) LongestWindow() time.Duration {
	longest := c.Login.Window
	for _, w := range []time.Duration{c.PasswordReset.Window, c.Registration.Window} {
		if w > longest {
			longest = w
		}
	}
	return longest
}

// Decision is the outcome of a rate-limit check. ResetAt is the earliest
// instant a denied caller can succeed again; for an allowed caller it is
// now plus the window.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RateLimiter throttles a source IP by counting its failed attempts in a
// trailing window of the attempt log. There is no counter of its own: the
// log is the only state, so recording an attempt is what spends budget.
type RateLimiter struct {
	log    domain.AttemptLog
	config RateLimitConfig
	now    func() time.Time
}

// NewRateLimiter builds a RateLimiter over log.
func NewRateLimiter(log domain.AttemptLog, cfg RateLimitConfig, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{log: log, config: cfg, now: now}
}

// Check reports whether ip may attempt action now.
func (l *RateLimiter) Check(ctx context.Context, ip string, action domain.ActionClass) (Decision, error) {
	if l == nil {
		return Decision{Allowed: true}, nil
	}
	policy, ok := l.config.Policy(action)
	if !ok {
		return Decision{}, fmt.Errorf("unknown action class %q", action)
	}

	now := l.now()
	since := now.Add(-policy.Window)

	failures, err := l.log.CountFailures(ctx, ip, action, since)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRateLimiterUnavailable, err)
	}

	if failures < policy.Max {
		return Decision{
			Allowed:   true,
			Remaining: policy.Max - failures,
			ResetAt:   now.Add(policy.Window),
		}, nil
	}

	// The caller is admitted once failures-max+1 records have aged out, which
	// happens when the (failures-max)-th oldest one leaves the window.
	resetAt := now.Add(policy.Window)
	if at, err := l.log.NthFailureAt(ctx, ip, action, since, failures-policy.Max); err == nil {
		resetAt = at.Add(policy.Window)
	}
	return Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
}
