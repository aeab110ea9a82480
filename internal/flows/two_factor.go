package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/blogauth/domain"
)

// TwoFactorSetup is what the user needs to enrol an authenticator. The
// secret stays pending until a code is confirmed.
type TwoFactorSetup struct {
	Secret          string
	ProvisioningURI string
	BackupCodes     []string
}

// TwoFactorMetrics carries metric IDs for two-factor management.
type TwoFactorMetrics struct {
	SetupStarted      int
	Enabled           int
	Disabled          int
	CodeRejected      int
	BackupRegenerated int
}

// TwoFactorEvents carries audit event names for two-factor management.
type TwoFactorEvents struct {
	SetupStarted      string
	Enabled           string
	Disabled          string
	CodeRejected      string
	BackupRegenerated string
}

// TwoFactorErrors carries host-level sentinel errors for two-factor management.
type TwoFactorErrors struct {
	EngineNotReady   error
	AccountNotFound  error
	AlreadyEnabled   error
	NotPending       error
	NotEnabled       error
	CodeInvalid      error
	StoreUnavailable error
	// RateLimited builds the error returned while the code throttle is closed.
	RateLimited func(retryAt time.Time) error
}

// TwoFactorDeps captures two-factor management dependencies.
type TwoFactorDeps struct {
	FindAccountByID func(ctx context.Context, id string) (*domain.Account, error)

	GenerateSecret  func(label string) (TwoFactorSetup, error)
	NewBackupCodes  func() ([]string, error)
	HashBackupCodes func(accountID string, codes []string) []string
	LooksLikeTOTP   func(code string) bool
	VerifyTOTP      func(code, secret string) bool
	ConsumeBackup   func(ctx context.Context, accountID, code string) (bool, error)

	SetSecret          func(ctx context.Context, accountID, secret string) error
	EnableTwoFactor    func(ctx context.Context, accountID string) error
	DisableTwoFactor   func(ctx context.Context, accountID string) error
	ReplaceBackupCodes func(ctx context.Context, accountID string, hashes []string) error

	// Optional per-account throttle on wrong codes.
	CodeAllowed       func(ctx context.Context, accountID string) (bool, time.Time, error)
	RecordCodeFailure func(ctx context.Context, accountID string) error
	ResetCodeFailures func(ctx context.Context, accountID string) error

	MetricInc func(int)
	Warn      func(msg string, keysAndValues ...any)
	EmitAudit func(ctx context.Context, event string, success bool, accountID, email, reason string, err error, meta func() map[string]string)

	Metrics TwoFactorMetrics
	Events  TwoFactorEvents
	Errors  TwoFactorErrors
}

func normalizeTwoFactorDeps(deps *TwoFactorDeps) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, string, error, func() map[string]string) {}
	}
	if deps.LooksLikeTOTP == nil {
		deps.LooksLikeTOTP = func(string) bool { return false }
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
}

func twoFactorDepsReady(deps TwoFactorDeps) bool {
	return deps.FindAccountByID != nil &&
		deps.GenerateSecret != nil &&
		deps.HashBackupCodes != nil &&
		deps.VerifyTOTP != nil &&
		deps.SetSecret != nil &&
		deps.EnableTwoFactor != nil &&
		deps.DisableTwoFactor != nil &&
		deps.ReplaceBackupCodes != nil
}

func (deps *TwoFactorDeps) load(ctx context.Context, accountID string) (*domain.Account, error) {
	account, err := deps.FindAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, deps.Errors.AccountNotFound
		}
		return nil, storeErr(deps.Errors.StoreUnavailable, err)
	}
	return account, nil
}

// throttled runs before any code comparison.
func (deps *TwoFactorDeps) throttled(ctx context.Context, accountID string) error {
	if deps.CodeAllowed == nil {
		return nil
	}
	ok, retryAt, err := deps.CodeAllowed(ctx, accountID)
	if err != nil {
		return storeErr(deps.Errors.StoreUnavailable, err)
	}
	if !ok {
		if deps.Errors.RateLimited != nil {
			return deps.Errors.RateLimited(retryAt)
		}
		return deps.Errors.CodeInvalid
	}
	return nil
}

func (deps *TwoFactorDeps) acceptCode(ctx context.Context, accountID string) {
	if deps.ResetCodeFailures == nil {
		return
	}
	if err := deps.ResetCodeFailures(ctx, accountID); err != nil {
		deps.Warn("two-factor throttle reset failed", "account_id", accountID, "error", err)
	}
}

func (deps *TwoFactorDeps) rejectCode(ctx context.Context, account *domain.Account, op string) error {
	if deps.RecordCodeFailure != nil {
		if err := deps.RecordCodeFailure(ctx, account.ID); err != nil {
			deps.Warn("two-factor throttle write failed", "account_id", account.ID, "error", err)
		}
	}
	deps.MetricInc(deps.Metrics.CodeRejected)
	deps.EmitAudit(ctx, deps.Events.CodeRejected, false, account.ID, account.Email, "INVALID_TWO_FACTOR", deps.Errors.CodeInvalid, func() map[string]string {
		return map[string]string{"operation": op}
	})
	return deps.Errors.CodeInvalid
}

// RunBeginTwoFactorSetup stores a fresh pending secret and a fresh batch of
// backup codes. Calling it again before confirmation replaces both.
func RunBeginTwoFactorSetup(ctx context.Context, accountID string, deps TwoFactorDeps) (*TwoFactorSetup, error) {
	normalizeTwoFactorDeps(&deps)
	if !twoFactorDepsReady(deps) {
		return nil, deps.Errors.EngineNotReady
	}

	account, err := deps.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.TwoFactorEnabled {
		return nil, deps.Errors.AlreadyEnabled
	}

	setup, err := deps.GenerateSecret(account.Email)
	if err != nil {
		return nil, err
	}
	if err := deps.SetSecret(ctx, account.ID, setup.Secret); err != nil {
		return nil, storeErr(deps.Errors.StoreUnavailable, err)
	}
	if err := deps.ReplaceBackupCodes(ctx, account.ID, deps.HashBackupCodes(account.ID, setup.BackupCodes)); err != nil {
		return nil, storeErr(deps.Errors.StoreUnavailable, err)
	}

	deps.MetricInc(deps.Metrics.SetupStarted)
	deps.EmitAudit(ctx, deps.Events.SetupStarted, true, account.ID, account.Email, "", nil, nil)
	return &setup, nil
}

// RunConfirmTwoFactorSetup enables two-factor once the user proves the
// authenticator produces valid codes for the pending secret.
func RunConfirmTwoFactorSetup(ctx context.Context, accountID, code string, deps TwoFactorDeps) error {
	normalizeTwoFactorDeps(&deps)
	if !twoFactorDepsReady(deps) {
		return deps.Errors.EngineNotReady
	}

	account, err := deps.load(ctx, accountID)
	if err != nil {
		return err
	}
	if account.TwoFactorEnabled {
		return deps.Errors.AlreadyEnabled
	}
	if account.TwoFactorSecret == "" {
		return deps.Errors.NotPending
	}
	if err := deps.throttled(ctx, account.ID); err != nil {
		return err
	}
	if !deps.VerifyTOTP(strings.TrimSpace(code), account.TwoFactorSecret) {
		return deps.rejectCode(ctx, account, "confirm")
	}
	deps.acceptCode(ctx, account.ID)

	if err := deps.EnableTwoFactor(ctx, account.ID); err != nil {
		return storeErr(deps.Errors.StoreUnavailable, err)
	}
	deps.MetricInc(deps.Metrics.Enabled)
	deps.EmitAudit(ctx, deps.Events.Enabled, true, account.ID, account.Email, "", nil, nil)
	return nil
}

// RunDisableTwoFactor turns two-factor off after a valid TOTP or backup code,
// clearing the secret and every remaining backup code.
func RunDisableTwoFactor(ctx context.Context, accountID, code string, deps TwoFactorDeps) error {
	normalizeTwoFactorDeps(&deps)
	if !twoFactorDepsReady(deps) {
		return deps.Errors.EngineNotReady
	}

	account, err := deps.load(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.TwoFactorEnabled {
		return deps.Errors.NotEnabled
	}

	if err := deps.throttled(ctx, account.ID); err != nil {
		return err
	}

	code = strings.TrimSpace(code)
	valid := false
	if deps.LooksLikeTOTP(code) {
		valid = deps.VerifyTOTP(code, account.TwoFactorSecret)
	} else if deps.ConsumeBackup != nil && code != "" {
		valid, err = deps.ConsumeBackup(ctx, account.ID, code)
		if err != nil {
			return storeErr(deps.Errors.StoreUnavailable, err)
		}
	}
	if !valid {
		return deps.rejectCode(ctx, account, "disable")
	}
	deps.acceptCode(ctx, account.ID)

	if err := deps.DisableTwoFactor(ctx, account.ID); err != nil {
		return storeErr(deps.Errors.StoreUnavailable, err)
	}
	if err := deps.ReplaceBackupCodes(ctx, account.ID, nil); err != nil {
		return storeErr(deps.Errors.StoreUnavailable, err)
	}
	deps.MetricInc(deps.Metrics.Disabled)
	deps.EmitAudit(ctx, deps.Events.Disabled, true, account.ID, account.Email, "", nil, nil)
	return nil
}

// RunRegenerateBackupCodes replaces the backup code batch. A current TOTP
// code is required; a backup code cannot mint new backup codes.
func RunRegenerateBackupCodes(ctx context.Context, accountID, code string, deps TwoFactorDeps) ([]string, error) {
	normalizeTwoFactorDeps(&deps)
	if !twoFactorDepsReady(deps) || deps.NewBackupCodes == nil {
		return nil, deps.Errors.EngineNotReady
	}

	account, err := deps.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.TwoFactorEnabled {
		return nil, deps.Errors.NotEnabled
	}
	if err := deps.throttled(ctx, account.ID); err != nil {
		return nil, err
	}
	if !deps.VerifyTOTP(strings.TrimSpace(code), account.TwoFactorSecret) {
		return nil, deps.rejectCode(ctx, account, "regenerate_backup_codes")
	}
	deps.acceptCode(ctx, account.ID)

	codes, err := deps.NewBackupCodes()
	if err != nil {
		return nil, err
	}
	if err := deps.ReplaceBackupCodes(ctx, account.ID, deps.HashBackupCodes(account.ID, codes)); err != nil {
		return nil, storeErr(deps.Errors.StoreUnavailable, err)
	}
	deps.MetricInc(deps.Metrics.BackupRegenerated)
	deps.EmitAudit(ctx, deps.Events.BackupRegenerated, true, account.ID, account.Email, "", nil, nil)
	return codes, nil
}
