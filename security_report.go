package blogauth

import "time"

// SecurityReport summarizes the effective security posture of a built Engine.
// It contains no secrets and is safe to log at startup.
type SecurityReport struct {
	Argon2                PasswordConfigReport `json:"argon2"`
	BcryptCost            int                  `json:"bcrypt_cost"`
	UpgradeOnLogin        bool                 `json:"upgrade_on_login"`
	PasswordMinLength     int                  `json:"password_min_length"`
	RejectCommonPasswords bool                 `json:"reject_common_passwords"`
	VerificationTTL       time.Duration        `json:"verification_ttl"`
	ResetTTL              time.Duration        `json:"reset_ttl"`
	TwoFactorAlgorithm    string               `json:"two_factor_algorithm"`
	TwoFactorSkew         int                  `json:"two_factor_skew"`
	BackupCodeCount       int                  `json:"backup_code_count"`
	LoginWindow           time.Duration        `json:"login_window"`
	LoginMaxFailures      int                  `json:"login_max_failures"`
	LockThreshold         int                  `json:"lock_threshold"`
	LockDuration          time.Duration        `json:"lock_duration"`
	FederatedProvisioning bool                 `json:"federated_provisioning"`
	AuditEnabled          bool                 `json:"audit_enabled"`
	MetricsEnabled        bool                 `json:"metrics_enabled"`
}

type PasswordConfigReport struct {
	Memory      uint32 `json:"memory"`
	Time        uint32 `json:"time"`
	Parallelism uint8  `json:"parallelism"`
	SaltLength  uint32 `json:"salt_length"`
	KeyLength   uint32 `json:"key_length"`
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		BcryptCost:            e.config.Password.BcryptCost,
		UpgradeOnLogin:        e.config.Password.UpgradeOnLogin,
		PasswordMinLength:     e.config.Password.Policy.MinLength,
		RejectCommonPasswords: e.config.Password.Policy.RejectCommon,
		VerificationTTL:       e.config.Tokens.VerificationTTL,
		ResetTTL:              e.config.Tokens.ResetTTL,
		TwoFactorAlgorithm:    e.config.TwoFactor.Algorithm,
		TwoFactorSkew:         e.config.TwoFactor.Skew,
		BackupCodeCount:       e.config.TwoFactor.BackupCodeCount,
		LoginWindow:           e.config.RateLimit.Login.Window,
		LoginMaxFailures:      e.config.RateLimit.Login.Max,
		LockThreshold:         e.config.Lockout.Threshold,
		LockDuration:          e.config.Lockout.Duration,
		FederatedProvisioning: e.config.Federated.AutoProvision,
		AuditEnabled:          e.config.Audit.Enabled,
		MetricsEnabled:        e.config.Metrics.Enabled,
	}
}
