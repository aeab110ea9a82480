// Package password implements credential hashing, verification, and strength
// validation.
//
// # Output format
//
// New digests are argon2id PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Multi] also verifies bcrypt digests ($2a$, $2b$, $2y$) written before the
// move to argon2id. Both bcrypt digests and argon2id digests with weaker
// parameters report [Multi.NeedsUpgrade] so the caller can rehash after the
// next successful login.
//
// # Strength policy
//
// [ValidateStrength] returns every violated rule of a [Policy], not only the
// first, so forms can render the full checklist.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive digests.
//   - Import any other blogauth package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
