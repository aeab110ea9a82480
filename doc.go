// Package blogauth is the authentication and account-security core of a blog
// platform: credential and federated login, registration, email
// verification, password reset, TOTP two-factor with backup codes, per-IP
// rate limiting, per-account lockout, and a GDPR consent ledger.
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build]. All state lives in the store (Redis by default, any
// [domain.Store] otherwise); nothing is held in memory between requests.
//
// # Login
//
// [Engine.Login] evaluates checks in a fixed order and stops at the first
// failure: RATE_LIMITED, INVALID_CREDENTIALS, ACCOUNT_LOCKED,
// ACCOUNT_DELETION_REQUESTED, EMAIL_NOT_VERIFIED, GDPR_CONSENT_REQUIRED,
// TWO_FACTOR_REQUIRED, INVALID_TWO_FACTOR. Rate limiting runs before the
// account is looked up, and the password is checked before anything that
// would reveal account state. Every outcome writes one LoginAttempt.
//
// The engine does not mint sessions. A [LoginSuccess] carries an
// [IdentityAssertion] for the session layer; the jwt package provides one.
//
// # Architecture boundaries
//
// blogauth is the public surface. Flow orchestration, the Redis store, the
// limiters, the token issuer and audit dispatch live under internal/. The
// httpapi package mounts the Engine on gin, and sqlstore provides a gorm
// backed [domain.Store].
package blogauth
