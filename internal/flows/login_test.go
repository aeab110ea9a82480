package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/blogauth/domain"
	"github.com/stretchr/testify/require"
)

var (
	errNotReady     = errors.New("not ready")
	errInvalidReq   = errors.New("invalid request")
	errStoreUnavail = errors.New("store unavailable")
)

type loginHarness struct {
	now         time.Time
	accounts    map[string]*domain.Account
	attempts    []domain.LoginAttempt
	rateAllowed bool
	rateRetryAt time.Time
	rateErr     error
	findErr     error
	appendErr   error
	failures    int
	successes   int
	dummyCalls  int
	backupCodes map[string]bool
	validTOTP   string
	rehashed    string
	events      []string
	autoProv    bool
}

func newLoginHarness() *loginHarness {
	return &loginHarness{
		now:         time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC),
		accounts:    map[string]*domain.Account{},
		rateAllowed: true,
		backupCodes: map[string]bool{},
		validTOTP:   "123456",
	}
}

func (h *loginHarness) add(a *domain.Account) *domain.Account {
	h.accounts[a.Email] = a
	return a
}

func (h *loginHarness) ready(email string) *domain.Account {
	verified := h.now.Add(-time.Hour)
	return h.add(&domain.Account{
		ID:              "id-" + email,
		Email:           email,
		PasswordHash:    "hash:correct",
		Role:            domain.RoleUser,
		EmailVerifiedAt: &verified,
		GDPRConsent:     true,
	})
}

func (h *loginHarness) deps() LoginDeps {
	return LoginDeps{
		AutoProvisionFederated: h.autoProv,
		ClientIPFromContext:    func(context.Context) string { return "198.51.100.7" },
		UserAgentFromContext:   func(context.Context) string { return "test-agent" },
		Now:                    func() time.Time { return h.now },
		NewID:                  func() string { return "generated" },
		CheckRate: func(context.Context, string) (bool, time.Time, error) {
			return h.rateAllowed, h.rateRetryAt, h.rateErr
		},
		FindAccount: func(_ context.Context, email string) (*domain.Account, error) {
			if h.findErr != nil {
				return nil, h.findErr
			}
			a, ok := h.accounts[email]
			if !ok {
				return nil, domain.ErrNotFound
			}
			return a, nil
		},
		CreateAccount: func(_ context.Context, a *domain.Account) error {
			if _, ok := h.accounts[a.Email]; ok {
				return domain.ErrConflict
			}
			h.accounts[a.Email] = a
			return nil
		},
		IsLocked: func(a *domain.Account, now time.Time) bool {
			return a.LockedUntil != nil && now.Before(*a.LockedUntil)
		},
		RecordFailure: func(_ context.Context, a *domain.Account) (domain.LockState, error) {
			h.failures++
			a.FailedLoginAttempts++
			st := domain.LockState{FailedAttempts: a.FailedLoginAttempts}
			if a.FailedLoginAttempts >= 5 {
				until := h.now.Add(30 * time.Minute)
				a.LockedUntil = &until
				st.LockedUntil = &until
			}
			return st, nil
		},
		RecordSuccess: func(_ context.Context, a *domain.Account) error {
			h.successes++
			a.FailedLoginAttempts = 0
			a.LockedUntil = nil
			return nil
		},
		VerifyPassword: func(plain, digest string) (bool, error) {
			if digest == "malformed" {
				return false, errors.New("bad digest")
			}
			return digest == "hash:"+plain || digest == "legacy:"+plain, nil
		},
		DummyVerify:          func(string) { h.dummyCalls++ },
		PasswordNeedsUpgrade: func(d string) (bool, error) { return len(d) > 7 && d[:7] == "legacy:", nil },
		HashPassword:         func(p string) (string, error) { return "hash:" + p, nil },
		UpdatePasswordHash: func(_ context.Context, _ string, hash string) error {
			h.rehashed = hash
			return nil
		},
		LooksLikeTOTP: func(code string) bool {
			if len(code) != 6 {
				return false
			}
			for _, c := range code {
				if c < '0' || c > '9' {
					return false
				}
			}
			return true
		},
		VerifyTOTP: func(code, secret string) bool { return secret != "" && code == h.validTOTP },
		ConsumeBackupCode: func(_ context.Context, _ string, code string) (bool, error) {
			if h.backupCodes[code] {
				delete(h.backupCodes, code)
				return true, nil
			}
			return false, nil
		},
		AppendAttempt: func(_ context.Context, a domain.LoginAttempt) error {
			if h.appendErr != nil {
				return h.appendErr
			}
			h.attempts = append(h.attempts, a)
			return nil
		},
		EmitAudit: func(_ context.Context, event string, _ bool, _, _, _ string, _ error, _ func() map[string]string) {
			h.events = append(h.events, event)
		},
		Events: LoginEvents{
			Success:              "login_success",
			Rejected:             "login_rejected",
			LockTriggered:        "account_locked",
			BackupCodeUsed:       "backup_code_used",
			FederatedSuccess:     "federated_success",
			FederatedProvisioned: "federated_provisioned",
			SystemError:          "login_error",
		},
		Errors: LoginErrors{
			EngineNotReady:   errNotReady,
			InvalidRequest:   errInvalidReq,
			StoreUnavailable: errStoreUnavail,
		},
	}
}

func (h *loginHarness) login(t *testing.T, email, password, code string) LoginResult {
	t.Helper()
	res, err := RunLogin(context.Background(), LoginInput{Email: email, Password: password, TwoFactorCode: code}, h.deps())
	require.NoError(t, err)
	return res
}

func TestRunLogin_Success(t *testing.T) {
	h := newLoginHarness()
	a := h.ready("reader@example.com")
	a.FailedLoginAttempts = 3

	res := h.login(t, " Reader@Example.com ", "correct", "")
	require.True(t, res.Success())
	require.Equal(t, a.ID, res.Account.ID)
	require.Equal(t, 1, h.successes)
	require.Zero(t, a.FailedLoginAttempts)

	require.Len(t, h.attempts, 1)
	at := h.attempts[0]
	require.True(t, at.Success)
	require.Equal(t, domain.ActionLogin, at.Action)
	require.Equal(t, "reader@example.com", at.Email)
	require.Equal(t, "198.51.100.7", at.IP)
	require.Equal(t, "test-agent", at.UserAgent)
}

func TestRunLogin_MalformedInputTouchesNothing(t *testing.T) {
	h := newLoginHarness()
	h.ready("reader@example.com")

	for _, in := range []LoginInput{{Email: "", Password: "x"}, {Email: "reader@example.com", Password: ""}, {Email: "   ", Password: "x"}} {
		_, err := RunLogin(context.Background(), in, h.deps())
		require.ErrorIs(t, err, errInvalidReq)
	}
	require.Empty(t, h.attempts)
	require.Zero(t, h.failures)
}

func TestRunLogin_NotReady(t *testing.T) {
	_, err := RunLogin(context.Background(), LoginInput{Email: "a@b.c", Password: "x"}, LoginDeps{Errors: LoginErrors{EngineNotReady: errNotReady}})
	require.ErrorIs(t, err, errNotReady)
}

func TestRunLogin_RateLimitedBeforeLookup(t *testing.T) {
	h := newLoginHarness()
	h.rateAllowed = false
	h.rateRetryAt = h.now.Add(7 * time.Minute)
	h.findErr = errors.New("must not be called")

	res := h.login(t, "nobody@example.com", "whatever", "")
	require.Equal(t, ReasonRateLimited, res.Reason)
	require.Equal(t, h.rateRetryAt, res.RetryAt)
	require.Len(t, h.attempts, 1)
	require.Equal(t, ReasonRateLimited, h.attempts[0].Reason)
}

func TestRunLogin_UnknownAccountLooksLikeWrongPassword(t *testing.T) {
	h := newLoginHarness()
	h.ready("reader@example.com")

	unknown := h.login(t, "ghost@example.com", "correct", "")
	wrong := h.login(t, "reader@example.com", "wrong", "")

	require.Equal(t, ReasonInvalidCredentials, unknown.Reason)
	require.Equal(t, ReasonInvalidCredentials, wrong.Reason)
	require.Equal(t, unknown.RetryAt, wrong.RetryAt)
	require.Equal(t, 1, h.dummyCalls, "unknown account runs a dummy verification")
	require.Equal(t, 1, h.failures, "only the real account is charged")
	require.Len(t, h.attempts, 2)
}

func TestRunLogin_SocialOnlyAccountIsInvalidCredentials(t *testing.T) {
	h := newLoginHarness()
	a := h.ready("social@example.com")
	a.PasswordHash = ""

	res := h.login(t, "social@example.com", "anything", "")
	require.Equal(t, ReasonInvalidCredentials, res.Reason)
	require.Zero(t, h.failures)
}

func TestRunLogin_MalformedDigestIsMismatch(t *testing.T) {
	h := newLoginHarness()
	a := h.ready("reader@example.com")
	a.PasswordHash = "malformed"

	res := h.login(t, "reader@example.com", "correct", "")
	require.Equal(t, ReasonInvalidCredentials, res.Reason)
	require.Equal(t, 1, h.failures)
}

func TestRunLogin_ReasonOrdering(t *testing.T) {
	future := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)

	cases := []struct {
		name     string
		mutate   func(a *domain.Account)
		password string
		code     string
		want     string
	}{
		{"locked beats wrong password", func(a *domain.Account) { a.LockedUntil = &future }, "wrong", "", ReasonAccountLocked},
		{"locked with correct password", func(a *domain.Account) { a.LockedUntil = &future }, "correct", "", ReasonAccountLocked},
		{"deletion beats wrong password", func(a *domain.Account) { a.DeletionRequested = true }, "wrong", "", ReasonAccountDeletionRequested},
		{"wrong password beats unverified", func(a *domain.Account) { a.EmailVerifiedAt = nil }, "wrong", "", ReasonInvalidCredentials},
		{"unverified regardless of 2fa", func(a *domain.Account) {
			a.EmailVerifiedAt = nil
			a.TwoFactorEnabled = true
			a.TwoFactorSecret = "S"
		}, "correct", "", ReasonEmailNotVerified},
		{"unverified beats no consent", func(a *domain.Account) {
			a.EmailVerifiedAt = nil
			a.GDPRConsent = false
		}, "correct", "", ReasonEmailNotVerified},
		{"no consent beats 2fa", func(a *domain.Account) {
			a.GDPRConsent = false
			a.TwoFactorEnabled = true
			a.TwoFactorSecret = "S"
		}, "correct", "", ReasonGDPRConsentRequired},
		{"2fa required", func(a *domain.Account) {
			a.TwoFactorEnabled = true
			a.TwoFactorSecret = "S"
		}, "correct", "", ReasonTwoFactorRequired},
		{"2fa prompt never before password", func(a *domain.Account) {
			a.TwoFactorEnabled = true
			a.TwoFactorSecret = "S"
		}, "wrong", "", ReasonInvalidCredentials},
		{"invalid 2fa", func(a *domain.Account) {
			a.TwoFactorEnabled = true
			a.TwoFactorSecret = "S"
		}, "correct", "000000", ReasonInvalidTwoFactor},
		{"expired lock admits", func(a *domain.Account) {
			past := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
			a.LockedUntil = &past
		}, "correct", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newLoginHarness()
			a := h.ready("reader@example.com")
			tc.mutate(a)

			res := h.login(t, "reader@example.com", tc.password, tc.code)
			require.Equal(t, tc.want, res.Reason)
			require.Len(t, h.attempts, 1, "exactly one attempt per outcome")
		})
	}
}

func TestRunLogin_LockedRetryAt(t *testing.T) {
	h := newLoginHarness()
	a := h.ready("reader@example.com")
	until := h.now.Add(10 * time.Minute)
	a.LockedUntil = &until

	res := h.login(t, "reader@example.com", "correct", "")
	require.Equal(t, ReasonAccountLocked, res.Reason)
	require.Equal(t, until, res.RetryAt)
	require.Zero(t, h.failures, "a locked rejection does not extend the lock")
}

func TestRunLogin_FiveFailuresThenCorrectStillLocked(t *testing.T) {
	h := newLoginHarness()
	h.ready("reader@example.com")

	for i := 0; i < 5; i++ {
		res := h.login(t, "reader@example.com", "wrong", "")
		require.Equal(t, ReasonInvalidCredentials, res.Reason)
	}
	require.Contains(t, h.events, "account_locked")

	res := h.login(t, "reader@example.com", "correct", "")
	require.Equal(t, ReasonAccountLocked, res.Reason)

	h.now = h.now.Add(31 * time.Minute)
	res = h.login(t, "reader@example.com", "correct", "")
	require.True(t, res.Success())
}

func TestRunLogin_TOTPAndBackupCodes(t *testing.T) {
	h := newLoginHarness()
	a := h.ready("reader@example.com")
	a.TwoFactorEnabled = true
	a.TwoFactorSecret = "SECRET"
	h.backupCodes["ABCD-1234"] = true

	res := h.login(t, "reader@example.com", "correct", "123456")
	require.True(t, res.Success())
	require.False(t, res.UsedBackupCode)

	res = h.login(t, "reader@example.com", "correct", "ABCD-1234")
	require.True(t, res.Success())
	require.True(t, res.UsedBackupCode)
	require.Contains(t, h.events, "backup_code_used")

	res = h.login(t, "reader@example.com", "correct", "ABCD-1234")
	require.Equal(t, ReasonInvalidTwoFactor, res.Reason, "backup codes are single use")
	require.Equal(t, 1, h.failures, "invalid second factor counts as a failure")
}

func TestRunLogin_RehashesLegacyDigest(t *testing.T) {
	h := newLoginHarness()
	a := h.ready("reader@example.com")
	a.PasswordHash = "legacy:correct"

	res := h.login(t, "reader@example.com", "correct", "")
	require.True(t, res.Success())
	require.Equal(t, "hash:correct", h.rehashed)
}

func TestRunLogin_StoreErrorsDeny(t *testing.T) {
	h := newLoginHarness()
	h.ready("reader@example.com")
	h.findErr = errors.New("connection refused")

	res, err := RunLogin(context.Background(), LoginInput{Email: "reader@example.com", Password: "correct"}, h.deps())
	require.ErrorIs(t, err, errStoreUnavail)
	require.False(t, res.Success())
	require.Len(t, h.attempts, 1)
	require.Equal(t, "SYSTEM_ERROR", h.attempts[0].Reason)

	h = newLoginHarness()
	h.rateErr = errors.New("timeout")
	_, err = RunLogin(context.Background(), LoginInput{Email: "reader@example.com", Password: "correct"}, h.deps())
	require.ErrorIs(t, err, errStoreUnavail)
}

func TestRunLogin_AttemptWriteFailure(t *testing.T) {
	h := newLoginHarness()
	h.ready("reader@example.com")
	h.appendErr = errors.New("log down")

	// A rejection still reports its reason.
	res := h.login(t, "reader@example.com", "wrong", "")
	require.Equal(t, ReasonInvalidCredentials, res.Reason)

	// A success without its record is denied.
	res, err := RunLogin(context.Background(), LoginInput{Email: "reader@example.com", Password: "correct"}, h.deps())
	require.ErrorIs(t, err, errStoreUnavail)
	require.False(t, res.Success())
}

func TestRunFederatedLogin(t *testing.T) {
	t.Run("existing consented account", func(t *testing.T) {
		h := newLoginHarness()
		a := h.ready("fed@example.com")
		a.TwoFactorEnabled = true
		a.TwoFactorSecret = "S"
		a.PasswordHash = ""
		a.FederatedProvider, a.FederatedSubject = "github", "42"

		res, err := RunFederatedLogin(context.Background(), FederatedInput{Provider: "github", Subject: "42", Email: "fed@example.com"}, h.deps())
		require.NoError(t, err)
		require.True(t, res.Success(), "federated path skips password and second factor")
		require.Len(t, h.attempts, 1)
	})

	t.Run("deletion requested", func(t *testing.T) {
		h := newLoginHarness()
		a := h.ready("fed@example.com")
		a.FederatedProvider, a.FederatedSubject = "github", "42"
		a.DeletionRequested = true

		res, err := RunFederatedLogin(context.Background(), FederatedInput{Provider: "github", Subject: "42", Email: "fed@example.com"}, h.deps())
		require.NoError(t, err)
		require.Equal(t, ReasonAccountDeletionRequested, res.Reason)
	})

	t.Run("provisioned account needs consent", func(t *testing.T) {
		h := newLoginHarness()
		h.autoProv = true

		res, err := RunFederatedLogin(context.Background(), FederatedInput{
			Provider: "google", Subject: "s-1", Email: "New@Example.com", EmailVerified: true, Name: "New",
		}, h.deps())
		require.NoError(t, err)
		require.Equal(t, ReasonGDPRConsentRequired, res.Reason)
		require.True(t, res.Provisioned)

		created := h.accounts["new@example.com"]
		require.NotNil(t, created)
		require.False(t, created.HasPassword())
		require.True(t, created.EmailVerified())
		require.False(t, created.GDPRConsent)
		require.Equal(t, domain.RoleUser, created.Role)
		require.True(t, created.LinkedTo("google", "s-1"))
	})

	t.Run("email match alone does not admit", func(t *testing.T) {
		h := newLoginHarness()
		h.autoProv = true
		a := h.ready("reader@example.com")

		for _, in := range []FederatedInput{
			{Provider: "any-provider", Subject: "attacker", Email: "reader@example.com"},
			{Provider: "any-provider", Subject: "attacker", Email: "Reader@Example.com", EmailVerified: true},
		} {
			res, err := RunFederatedLogin(context.Background(), in, h.deps())
			require.NoError(t, err)
			require.Equal(t, ReasonInvalidCredentials, res.Reason)
			require.Nil(t, res.Account)
			require.False(t, res.Provisioned)
		}
		require.Zero(t, a.FailedLoginAttempts)
		require.Empty(t, a.FederatedProvider)
		require.Len(t, h.accounts, 1)
	})

	t.Run("linked account rejects another subject", func(t *testing.T) {
		h := newLoginHarness()
		a := h.ready("fed@example.com")
		a.FederatedProvider, a.FederatedSubject = "github", "42"

		for _, in := range []FederatedInput{
			{Provider: "github", Subject: "43", Email: "fed@example.com"},
			{Provider: "gitlab", Subject: "42", Email: "fed@example.com"},
		} {
			res, err := RunFederatedLogin(context.Background(), in, h.deps())
			require.NoError(t, err)
			require.Equal(t, ReasonInvalidCredentials, res.Reason)
		}
	})

	t.Run("unknown without provisioning", func(t *testing.T) {
		h := newLoginHarness()
		res, err := RunFederatedLogin(context.Background(), FederatedInput{Provider: "google", Subject: "s", Email: "x@example.com"}, h.deps())
		require.NoError(t, err)
		require.Equal(t, ReasonInvalidCredentials, res.Reason)
		require.Empty(t, h.accounts)
	})

	t.Run("malformed", func(t *testing.T) {
		h := newLoginHarness()
		_, err := RunFederatedLogin(context.Background(), FederatedInput{Email: "x@example.com"}, h.deps())
		require.ErrorIs(t, err, errInvalidReq)
	})
}
