package blogauth

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidLoginRequest is returned for a login without email or password.
	ErrInvalidLoginRequest = errors.New("invalid login request")
	// ErrInvalidRequest is returned when a non-login request is malformed.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrRateLimited is the sentinel wrapped by RateLimitError.
	ErrRateLimited = errors.New("rate limited")
	// ErrTokenInvalid covers unknown, expired, used and malformed tokens alike.
	ErrTokenInvalid = errors.New("invalid or expired token")
	// ErrTwoFactorAlreadyEnabled is returned when setup is started or confirmed twice.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor already enabled")
	// ErrTwoFactorNotPending is returned when confirming without a pending secret.
	ErrTwoFactorNotPending = errors.New("two-factor setup not started")
	// ErrTwoFactorNotEnabled is returned when disabling or regenerating codes
	// for an account without two-factor.
	ErrTwoFactorNotEnabled = errors.New("two-factor not enabled")
	// ErrTwoFactorCodeInvalid is returned for a wrong authenticator or backup code.
	ErrTwoFactorCodeInvalid = errors.New("invalid two-factor code")
	// ErrAccountExists is returned when registering a taken email.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountNotFound is returned by account-scoped operations.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountDeletionRequested blocks registration reuse of an email pending erasure.
	ErrAccountDeletionRequested = errors.New("account deletion requested")
	// ErrWeakPassword is the sentinel wrapped by PasswordPolicyError.
	ErrWeakPassword = errors.New("password does not meet policy")
	// ErrConsentRequired is returned when registering without GDPR consent.
	ErrConsentRequired = errors.New("gdpr consent required")
	// ErrInvalidConsentType is returned for a consent type outside the closed set.
	ErrInvalidConsentType = errors.New("invalid consent type")
	// ErrStoreUnavailable wraps every persistence failure. Access is denied.
	ErrStoreUnavailable = errors.New("auth store unavailable")
	// ErrEngineNotReady is returned by a zero or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// RateLimitError reports when the caller may retry.
type RateLimitError struct {
	RetryAt time.Time
}

func (e *RateLimitError) Error() string {
	if e.RetryAt.IsZero() {
		return ErrRateLimited.Error()
	}
	return fmt.Sprintf("%s until %s", ErrRateLimited, e.RetryAt.UTC().Format(time.RFC3339))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// PasswordPolicyError carries every violated rule, not just the first.
type PasswordPolicyError struct {
	Violations []string
}

func (e *PasswordPolicyError) Error() string {
	if len(e.Violations) == 0 {
		return ErrWeakPassword.Error()
	}
	return ErrWeakPassword.Error() + ": " + strings.Join(e.Violations, "; ")
}

func (e *PasswordPolicyError) Unwrap() error { return ErrWeakPassword }

func storeUnavailable(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
