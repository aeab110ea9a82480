// Package internal contains helpers that are private to blogauth, starting
// with token generation and hashing.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - consent: the append-only consent ledger
//   - flows: flow orchestrators for every Engine operation
//   - limiters: sliding-window rate limiting and account lockout
//   - logging: zap logger construction
//   - metrics: lock-free counters and latency histograms
//   - stores: the Redis implementation of domain.Store
//   - tokens: issuing and verifying single-use tokens
//
// # What this package must NOT do
//
//   - Export types that appear in the public blogauth API.
//   - Be imported by any package outside the blogauth module.
package internal
