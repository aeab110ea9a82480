package internaldefs

import (
	"github.com/MrEthical07/blogauth"
)

const namespace = "blogauth_"

type CounterDef struct {
	ID   blogauth.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   blogauth.MetricID
	Name string
	Help string
}

var counterHelp = map[blogauth.MetricID]string{
	blogauth.MetricLoginSuccess:             "Successful credential logins.",
	blogauth.MetricLoginRateLimited:         "Logins rejected with RATE_LIMITED.",
	blogauth.MetricLoginInvalidCredentials:  "Logins rejected with INVALID_CREDENTIALS.",
	blogauth.MetricLoginAccountLocked:       "Logins rejected with ACCOUNT_LOCKED.",
	blogauth.MetricLoginDeletionRequested:   "Logins rejected with ACCOUNT_DELETION_REQUESTED.",
	blogauth.MetricLoginEmailNotVerified:    "Logins rejected with EMAIL_NOT_VERIFIED.",
	blogauth.MetricLoginConsentRequired:     "Logins rejected with GDPR_CONSENT_REQUIRED.",
	blogauth.MetricLoginTwoFactorRequired:   "Logins rejected with TWO_FACTOR_REQUIRED.",
	blogauth.MetricLoginInvalidTwoFactor:    "Logins rejected with INVALID_TWO_FACTOR.",
	blogauth.MetricAccountLockTriggered:     "Failures that set an account lock.",
	blogauth.MetricBackupCodeUsed:           "Logins completed with a backup code.",
	blogauth.MetricPasswordRehashed:         "Password hashes upgraded on login.",
	blogauth.MetricFederatedLoginSuccess:    "Successful federated logins.",
	blogauth.MetricFederatedProvisioned:     "Accounts created by federated login.",
	blogauth.MetricRegistrationSuccess:      "Completed registrations.",
	blogauth.MetricRegistrationRateLimited:  "Registrations refused by the rate limiter.",
	blogauth.MetricRegistrationRejected:     "Registrations rejected for input, consent or duplicates.",
	blogauth.MetricEmailVerificationRequest: "Verification emails issued.",
	blogauth.MetricEmailVerificationSuccess: "Successful email verifications.",
	blogauth.MetricEmailVerificationFailure: "Failed email verifications.",
	blogauth.MetricPasswordResetRequest:     "Password reset requests.",
	blogauth.MetricPasswordResetSuccess:     "Completed password resets.",
	blogauth.MetricPasswordResetFailure:     "Failed password resets.",
	blogauth.MetricPasswordResetRateLimited: "Password reset calls refused by the rate limiter.",
	blogauth.MetricTwoFactorSetupStarted:    "Two-factor setups started.",
	blogauth.MetricTwoFactorEnabled:         "Two-factor setups confirmed.",
	blogauth.MetricTwoFactorDisabled:        "Two-factor disable operations.",
	blogauth.MetricTwoFactorCodeRejected:    "Rejected two-factor codes outside login.",
	blogauth.MetricBackupCodesRegenerated:   "Backup code regenerations.",
	blogauth.MetricAccountUnlocked:          "Administrative unlocks.",
	blogauth.MetricDeletionRequested:        "Account deletion requests.",
	blogauth.MetricConsentRecorded:          "Consent ledger entries.",
	blogauth.MetricAuditDropped:             "Audit events dropped under dispatcher backpressure.",
}

// CounterDefs covers every engine counter; the latency histogram is in
// HistogramDefs.
var CounterDefs = buildCounterDefs()

var HistogramDefs = []HistogramDef{
	{ID: blogauth.MetricLoginLatency, Name: namespace + "login_latency_seconds", Help: "Login latency histogram."},
}

func buildCounterDefs() []CounterDef {
	ids := blogauth.MetricIDs()
	defs := make([]CounterDef, 0, len(ids))
	for _, id := range ids {
		if id == blogauth.MetricLoginLatency {
			continue
		}
		defs = append(defs, CounterDef{ID: id, Name: namespace + id.String() + "_total", Help: counterHelp[id]})
	}
	return defs
}

// HistogramBounds are the upper bounds, in seconds, of the engine's latency
// buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix names the same bounds for exporters that cannot use
// labels.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
