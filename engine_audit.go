package blogauth

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess             = "login_success"
	auditEventLoginRejected            = "login_rejected"
	auditEventLoginError               = "login_error"
	auditEventAccountLocked            = "account_locked"
	auditEventBackupCodeUsed           = "backup_code_used"
	auditEventFederatedLoginSuccess    = "federated_login_success"
	auditEventFederatedProvisioned     = "federated_account_provisioned"
	auditEventRegistrationSuccess      = "registration_success"
	auditEventRegistrationRejected     = "registration_rejected"
	auditEventEmailVerificationRequest = "email_verification_request"
	auditEventEmailVerificationConfirm = "email_verification_confirm"
	auditEventEmailVerificationFailure = "email_verification_failure"
	auditEventPasswordResetRequest     = "password_reset_request"
	auditEventPasswordResetConfirm     = "password_reset_confirm"
	auditEventPasswordResetFailure     = "password_reset_failure"
	auditEventTwoFactorSetupRequested  = "two_factor_setup_requested"
	auditEventTwoFactorEnabled         = "two_factor_enabled"
	auditEventTwoFactorDisabled        = "two_factor_disabled"
	auditEventTwoFactorCodeRejected    = "two_factor_code_rejected"
	auditEventBackupCodesRegenerated   = "backup_codes_regenerated"
	auditEventAccountUnlocked          = "account_unlocked"
	auditEventAccountDeletionRequested = "account_deletion_requested"
	auditEventConsentRecorded          = "consent_recorded"
	auditEventAccountDataExported      = "account_data_exported"
)

// AuditErrorCode is the stable error label written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidRequest    AuditErrorCode = "invalid_request"
	auditErrRateLimited       AuditErrorCode = "rate_limited"
	auditErrInvalidToken      AuditErrorCode = "invalid_token"
	auditErrAccountExists     AuditErrorCode = "account_exists"
	auditErrAccountNotFound   AuditErrorCode = "account_not_found"
	auditErrDeletionRequested AuditErrorCode = "deletion_requested"
	auditErrPasswordPolicy    AuditErrorCode = "password_policy"
	auditErrConsentRequired   AuditErrorCode = "consent_required"
	auditErrTwoFactorInvalid  AuditErrorCode = "two_factor_invalid"
	auditErrTwoFactorState    AuditErrorCode = "two_factor_state"
	auditErrUnavailable       AuditErrorCode = "backend_unavailable"
	auditErrInternal          AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	email string,
	reason string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		Email:     email,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Reason:    reason,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidLoginRequest),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidConsentType):
		return auditErrInvalidRequest
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrAccountExists):
		return auditErrAccountExists
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrAccountDeletionRequested):
		return auditErrDeletionRequested
	case errors.Is(err, ErrWeakPassword):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrConsentRequired):
		return auditErrConsentRequired
	case errors.Is(err, ErrTwoFactorCodeInvalid):
		return auditErrTwoFactorInvalid
	case errors.Is(err, ErrTwoFactorAlreadyEnabled),
		errors.Is(err, ErrTwoFactorNotPending),
		errors.Is(err, ErrTwoFactorNotEnabled):
		return auditErrTwoFactorState
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
