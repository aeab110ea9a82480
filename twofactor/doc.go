// Package twofactor implements the second authentication factor: RFC 6238
// time-based one-time codes and single-use backup codes.
//
// Secrets are 160-bit, base32 without padding. Codes are checked across a
// window of ±Skew steps to absorb clock drift between the authenticator and
// the server.
//
// Backup codes are stored only as SHA-256 hashes bound to the account ID.
// [Engine.ConsumeBackupCode] delegates removal to the store, which must make it
// atomic: two concurrent consumers of one code see at most one success.
package twofactor
