package blogauth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/blogauth/domain"
	"github.com/MrEthical07/blogauth/internal/audit"
	"github.com/MrEthical07/blogauth/internal/consent"
	internalflows "github.com/MrEthical07/blogauth/internal/flows"
	"github.com/MrEthical07/blogauth/internal/limiters"
	"github.com/MrEthical07/blogauth/internal/tokens"
	"github.com/MrEthical07/blogauth/password"
	"github.com/MrEthical07/blogauth/twofactor"
	"go.uber.org/zap"
)

// Engine is the authentication and account-security core. Build one with
// New().WithConfig(...).WithRedis(...).Build(). An Engine holds no
// per-request state and is safe for concurrent use.
type Engine struct {
	config Config
	store  domain.Store

	hasher       password.Hasher
	dummyDigest  string
	tokens       *tokens.Issuer
	twoFactor    *twofactor.Engine
	rateLimiter  *limiters.RateLimiter
	lockPolicy   *limiters.LockPolicy
	codeThrottle *limiters.CodeThrottle
	consent      *consent.Ledger

	mailer  Mailer
	audit   *audit.Dispatcher
	metrics *Metrics
	logger  *zap.Logger

	now   func() time.Time
	newID func() string

	flows internalflows.Service
}

// Close drains the audit dispatcher. The store is owned by the caller.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	if e.logger != nil {
		_ = e.logger.Sync()
	}
}

// AuditDropped reports how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// flowMetricInc receives the int IDs handed to the flows package. Negative
// IDs mean "no counter" and are ignored.
func (e *Engine) flowMetricInc(id int) {
	if id < 0 {
		return
	}
	e.metricInc(MetricID(id))
}

func (e *Engine) ready() bool {
	return e != nil && e.store != nil && e.flows.Initialized()
}

func (e *Engine) warn(msg string, keysAndValues ...any) {
	if e == nil || e.logger == nil {
		return
	}
	e.logger.Sugar().Warnw(msg, keysAndValues...)
}

// Login runs the credential state machine. Every rejection is a
// LoginRejected with a nil error; an error means the request could not be
// evaluated and access is denied.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (LoginOutcome, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := e.now()
	defer func() {
		e.metrics.Observe(MetricLoginLatency, e.now().Sub(start))
	}()

	result, err := e.flows.Login(ctx, internalflows.LoginInput{
		Email:         req.Email,
		Password:      req.Password,
		TwoFactorCode: req.TwoFactorCode,
	})
	if err != nil {
		return nil, err
	}
	return outcomeOf(result), nil
}

// LoginFederated admits an identity a provider has already authenticated.
// Password and second-factor checks are skipped; every other stage runs in
// the same order as Login. An existing account is matched only when it was
// provisioned from the same provider and subject; an email match alone is
// rejected with ReasonInvalidCredentials.
func (e *Engine) LoginFederated(ctx context.Context, id FederatedIdentity) (LoginOutcome, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	result, err := e.flows.FederatedLogin(ctx, internalflows.FederatedInput{
		Provider:      id.Provider,
		Subject:       id.Subject,
		Email:         id.Email,
		EmailVerified: id.EmailVerified,
		Name:          id.Name,
	})
	if err != nil {
		return nil, err
	}
	return outcomeOf(result), nil
}

func outcomeOf(r internalflows.LoginResult) LoginOutcome {
	if !r.Success() {
		return LoginRejected{Reason: r.Reason, RetryAt: r.RetryAt}
	}
	return LoginSuccess{
		Assertion:      assertionFor(r.Account),
		UsedBackupCode: r.UsedBackupCode,
		Provisioned:    r.Provisioned,
	}
}

func (e *Engine) loginFlowDeps() internalflows.LoginDeps {
	return internalflows.LoginDeps{
		AutoProvisionFederated: e.config.Federated.AutoProvision,
		ClientIPFromContext:    clientIPFromContext,
		UserAgentFromContext:   userAgentFromContext,
		Now:                    e.now,
		NewID:                  e.newID,
		CheckRate:              e.rateCheck(domain.ActionLogin),
		FindAccount:            e.store.AccountByEmail,
		CreateAccount:          e.store.CreateAccount,
		IsLocked:               e.lockPolicy.IsLocked,
		RecordFailure:          e.lockPolicy.RecordFailure,
		RecordSuccess:          e.lockPolicy.RecordSuccess,
		VerifyPassword:         e.verifyPassword,
		DummyVerify:            e.dummyVerify,
		PasswordNeedsUpgrade:   e.passwordNeedsUpgrade,
		HashPassword:           e.hasher.Hash,
		UpdatePasswordHash:     e.store.UpdatePasswordHash,
		LooksLikeTOTP:          e.twoFactor.LooksLikeCode,
		VerifyTOTP:             e.twoFactor.VerifyCode,
		ConsumeBackupCode:      e.twoFactor.ConsumeBackupCode,
		AppendAttempt:          e.store.AppendAttempt,
		MetricInc:              e.flowMetricInc,
		EmitAudit:              e.emitAudit,
		Warn:                   e.warn,
		Metrics: internalflows.LoginMetrics{
			Success:              int(MetricLoginSuccess),
			RateLimited:          int(MetricLoginRateLimited),
			InvalidCredentials:   int(MetricLoginInvalidCredentials),
			AccountLocked:        int(MetricLoginAccountLocked),
			DeletionRequested:    int(MetricLoginDeletionRequested),
			EmailNotVerified:     int(MetricLoginEmailNotVerified),
			ConsentRequired:      int(MetricLoginConsentRequired),
			TwoFactorRequired:    int(MetricLoginTwoFactorRequired),
			InvalidTwoFactor:     int(MetricLoginInvalidTwoFactor),
			LockTriggered:        int(MetricAccountLockTriggered),
			BackupCodeUsed:       int(MetricBackupCodeUsed),
			PasswordRehashed:     int(MetricPasswordRehashed),
			FederatedSuccess:     int(MetricFederatedLoginSuccess),
			FederatedProvisioned: int(MetricFederatedProvisioned),
		},
		Events: internalflows.LoginEvents{
			Success:              auditEventLoginSuccess,
			Rejected:             auditEventLoginRejected,
			LockTriggered:        auditEventAccountLocked,
			BackupCodeUsed:       auditEventBackupCodeUsed,
			FederatedSuccess:     auditEventFederatedLoginSuccess,
			FederatedProvisioned: auditEventFederatedProvisioned,
			SystemError:          auditEventLoginError,
		},
		Errors: internalflows.LoginErrors{
			EngineNotReady:   ErrEngineNotReady,
			InvalidRequest:   ErrInvalidLoginRequest,
			StoreUnavailable: ErrStoreUnavailable,
		},
	}
}

// rateCheck adapts the limiter to the flows' (allowed, retryAt, err) shape.
func (e *Engine) rateCheck(action domain.ActionClass) func(context.Context, string) (bool, time.Time, error) {
	return func(ctx context.Context, ip string) (bool, time.Time, error) {
		d, err := e.rateLimiter.Check(ctx, ip, action)
		if err != nil {
			return false, time.Time{}, err
		}
		return d.Allowed, d.ResetAt, nil
	}
}

func rateLimitError(retryAt time.Time) error {
	return &RateLimitError{RetryAt: retryAt}
}

func weakPasswordError(violations []string) error {
	return &PasswordPolicyError{Violations: violations}
}

func (e *Engine) validateStrength(plaintext string) []string {
	return password.ValidateStrength(plaintext, e.config.Password.Policy).Violations
}

// verifyPassword maps a malformed digest to a mismatch.
func (e *Engine) verifyPassword(plaintext, digest string) (bool, error) {
	ok, err := e.hasher.Verify(plaintext, digest)
	if err != nil {
		return false, nil
	}
	return ok, nil
}

// dummyVerify spends the same work as a real verification so an unknown
// email is not distinguishable by timing.
func (e *Engine) dummyVerify(plaintext string) {
	if e.dummyDigest == "" {
		return
	}
	_, _ = e.hasher.Verify(plaintext, e.dummyDigest)
}

func (e *Engine) passwordNeedsUpgrade(digest string) (bool, error) {
	if !e.config.Password.UpgradeOnLogin {
		return false, nil
	}
	return e.hasher.NeedsUpgrade(digest)
}

func (e *Engine) deliver(ctx context.Context, msg Message) error {
	if e.mailer == nil {
		return errors.New("no mailer configured")
	}
	return e.mailer.Deliver(ctx, msg)
}
