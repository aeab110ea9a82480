// Package tokens issues and verifies the single-use opaque tokens that back
// email verification and password reset.
//
// Only the SHA-256 of a token is stored. Password-reset tokens supersede any
// earlier reset token for the same email; email-verification tokens are burned
// by the verification that wins the delete.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/blogauth/domain"
	"github.com/MrEthical07/blogauth/internal"
)

const (
	DefaultVerificationTTL = 24 * time.Hour
	DefaultResetTTL        = time.Hour
)

var (
	// ErrUnknownKind is returned for a TokenKind the issuer does not manage.
	ErrUnknownKind = errors.New("unknown token kind")
	// ErrStoreUnavailable wraps token store failures.
	ErrStoreUnavailable = errors.New("token store unavailable")
)

// Config holds token lifetimes.
type Config struct {
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

// DefaultConfig returns the standard lifetimes.
func DefaultConfig() Config {
	return Config{
		VerificationTTL: DefaultVerificationTTL,
		ResetTTL:        DefaultResetTTL,
	}
}

// Issuer mints and checks tokens against a domain.TokenStore.
type Issuer struct {
	store  domain.TokenStore
	config Config
	now    func() time.Time
}

// NewIssuer builds an Issuer. Zero TTLs fall back to the defaults and a nil
// clock means time.Now.
func NewIssuer(store domain.TokenStore, cfg Config, now func() time.Time) *Issuer {
	if cfg.VerificationTTL <= 0 {
		cfg.VerificationTTL = DefaultVerificationTTL
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = DefaultResetTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{store: store, config: cfg, now: now}
}

func (i *Issuer) ttl(kind domain.TokenKind) (time.Duration, error) {
	switch kind {
	case domain.TokenEmailVerification:
		return i.config.VerificationTTL, nil
	case domain.TokenPasswordReset:
		return i.config.ResetTTL, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// Issue creates a token for email and returns the plaintext. The plaintext is
// never stored.
func (i *Issuer) Issue(ctx context.Context, kind domain.TokenKind, email string) (string, error) {
	ttl, err := i.ttl(kind)
	if err != nil {
		return "", err
	}

	token, err := internal.NewToken()
	if err != nil {
		return "", err
	}

	now := i.now().UTC()
	rec := domain.TokenRecord{
		Kind:      kind,
		Hash:      internal.HashToken(token),
		Email:     email,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	if kind == domain.TokenPasswordReset {
		err = i.store.ReplaceTokensForEmail(ctx, rec)
	} else {
		err = i.store.SaveToken(ctx, rec)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return token, nil
}

// Verify reports the email a live token belongs to. An email-verification
// token is deleted here, and only the caller whose delete succeeded gets
// ok=true. Reset tokens survive Verify; call Consume once the new credential
// is committed. Malformed, unknown and expired tokens yield ok=false with a
// nil error.
func (i *Issuer) Verify(ctx context.Context, kind domain.TokenKind, token string) (string, bool, error) {
	if _, err := i.ttl(kind); err != nil {
		return "", false, err
	}
	if !internal.WellFormedToken(token) {
		return "", false, nil
	}

	hash := internal.HashToken(token)
	rec, err := i.store.FindToken(ctx, kind, hash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if rec.Expired(i.now()) {
		return "", false, nil
	}

	if kind == domain.TokenEmailVerification {
		deleted, err := i.store.DeleteToken(ctx, kind, hash)
		if err != nil {
			return "", false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if !deleted {
			return "", false, nil
		}
	}
	return rec.Email, true, nil
}

// Consume deletes the token and reports whether this call removed it.
func (i *Issuer) Consume(ctx context.Context, kind domain.TokenKind, token string) (bool, error) {
	if !internal.WellFormedToken(token) {
		return false, nil
	}
	deleted, err := i.store.DeleteToken(ctx, kind, internal.HashToken(token))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return deleted, nil
}

// Revoke drops every outstanding token of kind for email.
func (i *Issuer) Revoke(ctx context.Context, kind domain.TokenKind, email string) error {
	if _, err := i.store.DeleteTokensForEmail(ctx, kind, email); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
