// Package limiters holds the three throttles of the auth core.
//
//   - [RateLimiter]: a sliding window over the attempt log, per source IP and
//     action class. It counts failed attempts only.
//   - [LockPolicy]: the per-account failure counter and timed lock. It is
//     independent of the source address.
//   - [CodeThrottle]: a fixed-window Redis counter on wrong two-factor codes
//     for the management operations.
//
// All three are nil-safe on their read paths. They count and decide; the flow
// functions own the consequences.
package limiters
