package twofactor

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrNoBackupCodeStore is returned when ConsumeBackupCode is called on an
// Engine built without a store.
var ErrNoBackupCodeStore = errors.New("backup code store not configured")

// NewBackupCodes returns a fresh batch of upper-case hex codes formatted as
// two dash-separated halves.
func (e *Engine) NewBackupCodes() ([]string, error) {
	codes := make([]string, 0, e.config.BackupCodeCount)
	raw := make([]byte, e.config.BackupCodeBytes)
	for i := 0; i < e.config.BackupCodeCount; i++ {
		if _, err := rand.Read(raw); err != nil {
			return nil, err
		}
		codes = append(codes, FormatBackupCode(strings.ToUpper(hex.EncodeToString(raw))))
	}
	return codes, nil
}

// HashBackupCodes returns the storable hashes of codes for accountID.
func (e *Engine) HashBackupCodes(accountID string, codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		out = append(out, BackupCodeHash(accountID, CanonicalizeBackupCode(c)))
	}
	return out
}

// ConsumeBackupCode removes code from the account's unused set. It reports
// true exactly once per issued code.
func (e *Engine) ConsumeBackupCode(ctx context.Context, accountID, code string) (bool, error) {
	if e.codes == nil {
		return false, ErrNoBackupCodeStore
	}
	canonical := CanonicalizeBackupCode(code)
	if !e.wellFormedBackupCode(canonical) {
		return false, nil
	}
	return e.codes.ConsumeBackupCode(ctx, accountID, BackupCodeHash(accountID, canonical))
}

func (e *Engine) wellFormedBackupCode(canonical string) bool {
	if len(canonical) != 2*e.config.BackupCodeBytes {
		return false
	}
	_, err := hex.DecodeString(canonical)
	return err == nil
}

// FormatBackupCode splits a code into two halves for display.
func FormatBackupCode(code string) string {
	n := len(code)
	if n < 8 {
		return code
	}
	mid := n / 2
	return code[:mid] + "-" + code[mid:]
}

// CanonicalizeBackupCode strips separators and upper-cases user input.
func CanonicalizeBackupCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// BackupCodeHash binds a canonical code to its account so equal codes on two
// accounts never share a stored value.
func BackupCodeHash(accountID, canonicalCode string) string {
	data := make([]byte, 0, len(accountID)+1+len(canonicalCode))
	data = append(data, accountID...)
	data = append(data, 0)
	data = append(data, canonicalCode...)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
