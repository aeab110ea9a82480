package flows

import (
	"context"

	"github.com/MrEthical07/blogauth/domain"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return loginDepsReady(s.deps.Login)
}

func (s Service) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	return RunLogin(ctx, in, s.deps.Login)
}

func (s Service) FederatedLogin(ctx context.Context, in FederatedInput) (LoginResult, error) {
	return RunFederatedLogin(ctx, in, s.deps.Login)
}

func (s Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	return RunRegister(ctx, in, s.deps.Registration)
}

func (s Service) VerifyEmail(ctx context.Context, token string) (*domain.Account, error) {
	return RunVerifyEmail(ctx, token, s.deps.EmailVerification)
}

func (s Service) RequestEmailVerification(ctx context.Context, email string) error {
	return RunRequestEmailVerification(ctx, email, s.deps.EmailVerification)
}

func (s Service) RequestPasswordReset(ctx context.Context, email string) error {
	return RunRequestPasswordReset(ctx, email, s.deps.PasswordReset)
}

func (s Service) ResetPassword(ctx context.Context, token, newPassword string) (*domain.Account, error) {
	return RunResetPassword(ctx, token, newPassword, s.deps.PasswordReset)
}

func (s Service) BeginTwoFactorSetup(ctx context.Context, accountID string) (*TwoFactorSetup, error) {
	return RunBeginTwoFactorSetup(ctx, accountID, s.deps.TwoFactor)
}

func (s Service) ConfirmTwoFactorSetup(ctx context.Context, accountID, code string) error {
	return RunConfirmTwoFactorSetup(ctx, accountID, code, s.deps.TwoFactor)
}

func (s Service) DisableTwoFactor(ctx context.Context, accountID, code string) error {
	return RunDisableTwoFactor(ctx, accountID, code, s.deps.TwoFactor)
}

func (s Service) RegenerateBackupCodes(ctx context.Context, accountID, code string) ([]string, error) {
	return RunRegenerateBackupCodes(ctx, accountID, code, s.deps.TwoFactor)
}
