package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Floors below which NewArgon2 refuses to build a hasher and Verify refuses
// to trust a stored digest.
const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16

	algorithmID  = "argon2id"
	argon2Prefix = "$" + algorithmID + "$"
)

// DefaultMaxPasswordBytes bounds the input fed to argon2 when Config leaves
// MaxPasswordBytes at zero.
const DefaultMaxPasswordBytes = 1024

// Config holds argon2id cost parameters. Memory is in KiB.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	MaxPasswordBytes uint32
}

// DefaultConfig returns parameters that cost tens of milliseconds per hash
// on commodity hardware.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Config) validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("password memory must be >= %d KB", minMemoryKB)
	case c.Time < minTimeCost:
		return fmt.Errorf("password time must be >= %d", minTimeCost)
	case c.Parallelism < minParallelism:
		return fmt.Errorf("password parallelism must be >= %d", minParallelism)
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("password salt length must be >= %d", minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("password key length must be >= %d", minKeyLength)
	}
	return nil
}

// Argon2 hashes with argon2id and encodes results as PHC strings.
type Argon2 struct {
	config Config
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{config: cfg}, nil
}

// Hash returns a salted PHC digest. Plaintext is hashed as raw bytes with no
// Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > int(a.config.MaxPasswordBytes) {
		return "", ErrPasswordTooLong
	}

	d := phcDigest{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        make([]byte, a.config.SaltLength),
	}
	if _, err := io.ReadFull(rand.Reader, d.salt); err != nil {
		return "", err
	}
	d.key = d.derive(password, a.config.KeyLength)
	return d.String(), nil
}

// Verify recomputes the digest with the parameters stored in encodedHash and
// compares in constant time. A malformed digest yields false and an error
// wrapping ErrMalformedDigest.
func (a *Argon2) Verify(password string, encodedHash string) (bool, error) {
	if len(password) > int(a.config.MaxPasswordBytes) {
		return false, ErrPasswordTooLong
	}
	d, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	computed := d.derive(password, uint32(len(d.key)))
	return subtle.ConstantTimeCompare(computed, d.key) == 1, nil
}

// NeedsUpgrade reports whether encodedHash is weaker than the current
// configuration or uses a different key length.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	d, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	weaker := d.memory < a.config.Memory ||
		d.time < a.config.Time ||
		d.parallelism < a.config.Parallelism
	return weaker || uint32(len(d.key)) != a.config.KeyLength, nil
}

// phcDigest is one decoded $argon2id$ string.
type phcDigest struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (d phcDigest) derive(password string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), d.salt, d.time, d.memory, d.parallelism, keyLen)
}

func (d phcDigest) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version,
		d.memory, d.time, d.parallelism,
		base64.StdEncoding.EncodeToString(d.salt),
		base64.StdEncoding.EncodeToString(d.key),
	)
}

func malformed(reason string) error {
	return fmt.Errorf("%w: %s", ErrMalformedDigest, reason)
}

// parsePHC decodes a digest written by Hash. Parameters must appear in
// m,t,p order and may not fall below the package floors.
func parsePHC(encoded string) (phcDigest, error) {
	var d phcDigest

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return d, malformed("expected 5 fields")
	}
	if parts[1] != algorithmID {
		return d, malformed("unsupported algorithm " + parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return d, malformed("missing argon2 version")
	}
	if version != argon2.Version {
		return d, malformed(fmt.Sprintf("unsupported argon2 version %d", version))
	}

	var m, t, p uint64
	n, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &p)
	if err != nil || n != 3 || fmt.Sprintf("m=%d,t=%d,p=%d", m, t, p) != parts[3] {
		return d, malformed("invalid parameters")
	}
	if m < uint64(minMemoryKB) || m > 1<<32-1 {
		return d, malformed("invalid memory parameter")
	}
	if t < uint64(minTimeCost) || t > 1<<32-1 {
		return d, malformed("invalid time parameter")
	}
	if p < uint64(minParallelism) || p > 255 {
		return d, malformed("invalid parallelism parameter")
	}
	d.memory, d.time, d.parallelism = uint32(m), uint32(t), uint8(p)

	if d.salt, err = base64.StdEncoding.DecodeString(parts[4]); err != nil {
		return d, malformed("invalid salt encoding")
	}
	if len(d.salt) < int(minSaltLength) {
		return d, malformed("salt too short")
	}
	if d.key, err = base64.StdEncoding.DecodeString(parts[5]); err != nil {
		return d, malformed("invalid hash encoding")
	}
	if len(d.key) == 0 {
		return d, malformed("empty hash")
	}
	return d, nil
}
