package twofactor

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/blogauth/domain"
)

const secretBytes = 20

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Config controls code generation and verification.
type Config struct {
	Issuer          string `yaml:"issuer"`
	Digits          int    `yaml:"digits"`
	Period          int    `yaml:"period"`
	Algorithm       string `yaml:"algorithm"`
	Skew            int    `yaml:"skew"`
	BackupCodeCount int    `yaml:"backup_code_count"`
	BackupCodeBytes int    `yaml:"backup_code_bytes"`
}

// DefaultConfig returns 6-digit SHA1 codes on a 30s step with two steps of
// tolerance either side, and ten 8-character backup codes.
func DefaultConfig() Config {
	return Config{
		Issuer:          "Modern Blog",
		Digits:          6,
		Period:          30,
		Algorithm:       "SHA1",
		Skew:            2,
		BackupCodeCount: 10,
		BackupCodeBytes: 4,
	}
}

// Validate rejects configurations that cannot produce verifiable codes.
func (c Config) Validate() error {
	if c.Issuer == "" {
		return errors.New("twofactor issuer must not be empty")
	}
	if c.Digits < 6 || c.Digits > 8 {
		return errors.New("twofactor digits must be between 6 and 8")
	}
	if c.Period <= 0 {
		return errors.New("twofactor period must be > 0")
	}
	if c.Skew < 0 || c.Skew > 10 {
		return errors.New("twofactor skew must be between 0 and 10")
	}
	if _, err := hmacFunc(c.Algorithm); err != nil {
		return err
	}
	if c.BackupCodeCount <= 0 {
		return errors.New("twofactor backup code count must be > 0")
	}
	if c.BackupCodeBytes < 4 || c.BackupCodeBytes > 16 {
		return errors.New("twofactor backup code bytes must be between 4 and 16")
	}
	return nil
}

// Setup is a freshly generated, not yet active, second factor.
type Setup struct {
	Secret          string
	ProvisioningURI string
	BackupCodes     []string
}

// Engine generates and verifies time-based codes and consumes backup codes.
type Engine struct {
	config Config
	codes  domain.BackupCodeStore
	now    func() time.Time
}

// New returns an Engine. codes may be nil when the caller never consumes
// backup codes through this Engine; now defaults to time.Now.
func New(cfg Config, codes domain.BackupCodeStore, now func() time.Time) (*Engine, error) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{config: cfg, codes: codes, now: now}, nil
}

// GenerateSecret creates a 160-bit secret, its provisioning URI, and a batch
// of backup codes. Nothing is persisted.
func (e *Engine) GenerateSecret(label string) (Setup, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return Setup{}, err
	}
	secret := secretEncoding.EncodeToString(raw)

	codes, err := e.NewBackupCodes()
	if err != nil {
		return Setup{}, err
	}

	return Setup{
		Secret:          secret,
		ProvisioningURI: e.ProvisionURI(secret, label),
		BackupCodes:     codes,
	}, nil
}

// ProvisionURI renders the otpauth:// URI an authenticator app scans.
func (e *Engine) ProvisionURI(secret, label string) string {
	issuer := e.config.Issuer
	path := url.PathEscape(issuer + ":" + label)

	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	v.Set("period", strconv.Itoa(e.config.Period))
	v.Set("digits", strconv.Itoa(e.config.Digits))
	v.Set("algorithm", strings.ToUpper(e.config.Algorithm))

	return "otpauth://totp/" + path + "?" + v.Encode()
}

// VerifyCode checks code against the base32 secret at the current time.
// Malformed codes or secrets are reported as false.
func (e *Engine) VerifyCode(code, secret string) bool {
	return e.VerifyCodeAt(code, secret, e.now())
}

// VerifyCodeAt is VerifyCode at an explicit instant.
func (e *Engine) VerifyCodeAt(code, secret string, at time.Time) bool {
	key, err := DecodeSecret(secret)
	if err != nil {
		return false
	}
	return e.verify(key, code, at)
}

// CodeAt returns the code an authenticator shows for secret at the given
// instant.
func (e *Engine) CodeAt(secret string, at time.Time) (string, error) {
	key, err := DecodeSecret(secret)
	if err != nil {
		return "", err
	}
	return hotpCode(key, at.Unix()/int64(e.config.Period), e.config.Digits, e.config.Algorithm)
}

// LooksLikeCode reports whether s has the shape of a time-based code.
func (e *Engine) LooksLikeCode(s string) bool {
	s = strings.TrimSpace(s)
	return len(s) == e.config.Digits && isNumericString(s)
}

func (e *Engine) verify(key []byte, code string, at time.Time) bool {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != e.config.Digits || !isNumericString(trimmed) {
		return false
	}
	if len(key) == 0 {
		return false
	}

	base := at.Unix() / int64(e.config.Period)
	for step := -e.config.Skew; step <= e.config.Skew; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		generated, err := hotpCode(key, counter, e.config.Digits, e.config.Algorithm)
		if err != nil {
			return false
		}
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return true
		}
	}
	return false
}

// DecodeSecret parses a base32 secret, tolerating lower case, spaces, and
// padding as authenticator apps display them.
func DecodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
	s = strings.TrimRight(s, "=")
	if s == "" {
		return nil, errors.New("empty totp secret")
	}
	return secretEncoding.DecodeString(s)
}

func hotpCode(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, errors.New("unsupported totp algorithm")
	}
}

func isNumericString(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
