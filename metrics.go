package blogauth

import (
	"time"

	internalmetrics "github.com/MrEthical07/blogauth/internal/metrics"
)

// MetricID identifies one engine counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginRateLimited
	MetricLoginInvalidCredentials
	MetricLoginAccountLocked
	MetricLoginDeletionRequested
	MetricLoginEmailNotVerified
	MetricLoginConsentRequired
	MetricLoginTwoFactorRequired
	MetricLoginInvalidTwoFactor
	MetricAccountLockTriggered
	MetricBackupCodeUsed
	MetricPasswordRehashed
	MetricFederatedLoginSuccess
	MetricFederatedProvisioned
	MetricRegistrationSuccess
	MetricRegistrationRateLimited
	MetricRegistrationRejected
	MetricEmailVerificationRequest
	MetricEmailVerificationSuccess
	MetricEmailVerificationFailure
	MetricPasswordResetRequest
	MetricPasswordResetSuccess
	MetricPasswordResetFailure
	MetricPasswordResetRateLimited
	MetricTwoFactorSetupStarted
	MetricTwoFactorEnabled
	MetricTwoFactorDisabled
	MetricTwoFactorCodeRejected
	MetricBackupCodesRegenerated
	MetricAccountUnlocked
	MetricDeletionRequested
	MetricConsentRecorded
	MetricAuditDropped
	// MetricLoginLatency is the only histogram.
	MetricLoginLatency
	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricLoginSuccess:             "login_success",
	MetricLoginRateLimited:         "login_rate_limited",
	MetricLoginInvalidCredentials:  "login_invalid_credentials",
	MetricLoginAccountLocked:       "login_account_locked",
	MetricLoginDeletionRequested:   "login_deletion_requested",
	MetricLoginEmailNotVerified:    "login_email_not_verified",
	MetricLoginConsentRequired:     "login_consent_required",
	MetricLoginTwoFactorRequired:   "login_two_factor_required",
	MetricLoginInvalidTwoFactor:    "login_invalid_two_factor",
	MetricAccountLockTriggered:     "account_lock_triggered",
	MetricBackupCodeUsed:           "backup_code_used",
	MetricPasswordRehashed:         "password_rehashed",
	MetricFederatedLoginSuccess:    "federated_login_success",
	MetricFederatedProvisioned:     "federated_provisioned",
	MetricRegistrationSuccess:      "registration_success",
	MetricRegistrationRateLimited:  "registration_rate_limited",
	MetricRegistrationRejected:     "registration_rejected",
	MetricEmailVerificationRequest: "email_verification_request",
	MetricEmailVerificationSuccess: "email_verification_success",
	MetricEmailVerificationFailure: "email_verification_failure",
	MetricPasswordResetRequest:     "password_reset_request",
	MetricPasswordResetSuccess:     "password_reset_success",
	MetricPasswordResetFailure:     "password_reset_failure",
	MetricPasswordResetRateLimited: "password_reset_rate_limited",
	MetricTwoFactorSetupStarted:    "two_factor_setup_started",
	MetricTwoFactorEnabled:         "two_factor_enabled",
	MetricTwoFactorDisabled:        "two_factor_disabled",
	MetricTwoFactorCodeRejected:    "two_factor_code_rejected",
	MetricBackupCodesRegenerated:   "backup_codes_regenerated",
	MetricAccountUnlocked:          "account_unlocked",
	MetricDeletionRequested:        "deletion_requested",
	MetricConsentRecorded:          "consent_recorded",
	MetricAuditDropped:             "audit_dropped",
	MetricLoginLatency:             "login_latency",
}

// String returns the snake_case metric name used by exporters.
func (id MetricID) String() string {
	if id >= metricIDCount {
		return "unknown"
	}
	return metricNames[id]
}

// MetricIDs lists every defined metric in declaration order.
func MetricIDs() []MetricID {
	ids := make([]MetricID, 0, int(metricIDCount))
	for id := MetricID(0); id < metricIDCount; id++ {
		ids = append(ids, id)
	}
	return ids
}

// Metrics is a fixed set of lock-free counters indexed by MetricID.
type Metrics struct {
	set *internalmetrics.Set
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns counters honoring cfg. Latency histograms need Enabled.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{set: internalmetrics.NewSet(int(metricIDCount), cfg.Enabled, cfg.Enabled && cfg.EnableLatencyHistograms)}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.set.Enabled()
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil {
		return
	}
	m.set.Inc(int(id))
}

func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || id != MetricLoginLatency {
		return
	}
	m.set.Observe(int(id), d)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil {
		return 0
	}
	return m.set.Value(int(id))
}

// Snapshot copies every counter and, when latency tracking is on, the login
// latency buckets.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if !m.Enabled() {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = m.set.Value(int(id))
	}
	if m.set.LatencyEnabled() {
		s.Histograms[MetricLoginLatency] = m.set.Buckets(int(MetricLoginLatency))
	}
	return s
}
