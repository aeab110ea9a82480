package password

import (
	"strconv"
	"strings"
	"unicode"
)

// symbolClass is the set of characters that satisfy RequireSymbol.
const symbolClass = `!@#$%^&*(),.?":{}|<>`

var commonPasswords = map[string]struct{}{
	"password":    {},
	"123456":      {},
	"123456789":   {},
	"qwerty":      {},
	"abc123":      {},
	"password123": {},
	"admin":       {},
	"letmein":     {},
	"welcome":     {},
	"monkey":      {},
	"1234567890":  {},
}

// Policy configures ValidateStrength.
type Policy struct {
	MinLength     int  `yaml:"min_length"`
	RequireUpper  bool `yaml:"require_upper"`
	RequireLower  bool `yaml:"require_lower"`
	RequireDigit  bool `yaml:"require_digit"`
	RequireSymbol bool `yaml:"require_symbol"`
	RejectCommon  bool `yaml:"reject_common"`
}

// DefaultPolicy requires 12 characters, every character class, and rejects
// the common-password denylist.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:     12,
		RequireUpper:  true,
		RequireLower:  true,
		RequireDigit:  true,
		RequireSymbol: true,
		RejectCommon:  true,
	}
}

// Result lists every rule the candidate violated.
type Result struct {
	Valid      bool
	Violations []string
}

// ValidateStrength checks plaintext against every rule of p and reports all
// violations in a stable order.
func ValidateStrength(plaintext string, p Policy) Result {
	var violations []string

	if p.MinLength > 0 && len([]rune(plaintext)) < p.MinLength {
		violations = append(violations, "Password must be at least "+strconv.Itoa(p.MinLength)+" characters long")
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range plaintext {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
		if strings.ContainsRune(symbolClass, r) {
			hasSymbol = true
		}
	}

	if p.RequireUpper && !hasUpper {
		violations = append(violations, "Password must contain at least one uppercase letter")
	}
	if p.RequireLower && !hasLower {
		violations = append(violations, "Password must contain at least one lowercase letter")
	}
	if p.RequireDigit && !hasDigit {
		violations = append(violations, "Password must contain at least one number")
	}
	if p.RequireSymbol && !hasSymbol {
		violations = append(violations, "Password must contain at least one special character")
	}
	if p.RejectCommon {
		if _, ok := commonPasswords[strings.ToLower(plaintext)]; ok {
			violations = append(violations, "Password is too common, please choose a stronger password")
		}
	}

	return Result{Valid: len(violations) == 0, Violations: violations}
}
