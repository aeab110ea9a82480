package password

import (
	"errors"
	"strings"
)

var (
	ErrEmptyPassword   = errors.New("password must not be empty")
	ErrMalformedDigest = errors.New("malformed password digest")
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
)

// Hasher is the credential hashing contract consumed by the engine.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// Multi hashes new credentials with argon2id and verifies both argon2id and
// legacy bcrypt digests. A bcrypt digest always reports NeedsUpgrade so it
// is replaced on the next successful login.
type Multi struct {
	primary *Argon2
	legacy  *Bcrypt
}

// NewMulti pairs the primary argon2id hasher with a bcrypt verifier.
// legacy may be nil, in which case bcrypt digests fail verification.
func NewMulti(primary *Argon2, legacy *Bcrypt) *Multi {
	return &Multi{primary: primary, legacy: legacy}
}

func (m *Multi) Hash(password string) (string, error) {
	return m.primary.Hash(password)
}

func (m *Multi) Verify(password, encodedHash string) (bool, error) {
	switch {
	case strings.HasPrefix(encodedHash, argon2Prefix):
		return m.primary.Verify(password, encodedHash)
	case isBcryptDigest(encodedHash) && m.legacy != nil:
		return m.legacy.Verify(password, encodedHash)
	default:
		return false, ErrMalformedDigest
	}
}

func (m *Multi) NeedsUpgrade(encodedHash string) (bool, error) {
	switch {
	case strings.HasPrefix(encodedHash, argon2Prefix):
		return m.primary.NeedsUpgrade(encodedHash)
	case isBcryptDigest(encodedHash):
		return true, nil
	default:
		return false, ErrMalformedDigest
	}
}
