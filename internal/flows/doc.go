// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunLogin, RunRegister, RunResetPassword, etc.) accepts a
// typed dependency struct of function fields and returns results without
// side-effects beyond those dependencies. Tests drive the flows with plain
// closures, and the Engine type stays thin.
//
// # Login ordering
//
// RunLogin evaluates RATE_CHECK, ACCOUNT_LOOKUP, LOCK_CHECK, DELETION_CHECK,
// PASSWORD_CHECK, VERIFICATION_CHECK, CONSENT_CHECK and TWOFACTOR_CHECK in that
// order; the first failing stage names the rejection. Exactly one LOGIN
// attempt is appended per call.
//
// # Architecture boundaries
//
// Flow functions coordinate the store, token issuer, limiters, two-factor
// engine, audit dispatcher and metrics. They do NOT own any of these
// resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import blogauth (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
package flows
