package sqlstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/blogauth/domain"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(Config{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedAccount(t *testing.T, s *Store, id, email string) *domain.Account {
	t.Helper()

	a := &domain.Account{
		ID:           id,
		Email:        email,
		Name:         "Reader",
		PasswordHash: "$argon2id$stub",
		Role:         domain.RoleUser,
		CreatedAt:    t0,
		UpdatedAt:    t0,
	}
	require.NoError(t, s.CreateAccount(context.Background(), a))
	return a
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"}, nil)
	require.Error(t, err)
}

func TestCreateAndLookupAccount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedAccount(t, s, "a1", "  Reader@Example.COM ")

	got, err := s.AccountByEmail(ctx, "reader@example.com")
	require.NoError(t, err)
	require.Equal(t, "a1", got.ID)
	require.Equal(t, "reader@example.com", got.Email)
	require.Equal(t, domain.RoleUser, got.Role)
	require.Nil(t, got.EmailVerifiedAt)
	require.True(t, got.CreatedAt.Equal(t0))

	_, err = s.AccountByID(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	err = s.CreateAccount(ctx, &domain.Account{ID: "a2", Email: "READER@example.com", Role: domain.RoleUser})
	require.ErrorIs(t, err, domain.ErrConflict)
	require.False(t, got.LinkedTo("github", ""))
}

func TestFederatedLinkPersists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateAccount(ctx, &domain.Account{
		ID: "s1", Email: "social@example.com", Role: domain.RoleUser,
		FederatedProvider: "github", FederatedSubject: "gh-42",
		CreatedAt: t0, UpdatedAt: t0,
	}))

	got, err := s.AccountByEmail(ctx, "social@example.com")
	require.NoError(t, err)
	require.True(t, got.LinkedTo("github", "gh-42"))
	require.False(t, got.LinkedTo("github", "gh-43"))
	require.False(t, got.HasPassword())
}

func TestIncrementFailedLoginsLocksAtThreshold(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAccount(t, s, "a1", "reader@example.com")

	lockUntil := t0.Add(30 * time.Minute)
	for i := 1; i <= 4; i++ {
		st, err := s.IncrementFailedLogins(ctx, "a1", t0, 5, lockUntil)
		require.NoError(t, err)
		require.Equal(t, i, st.FailedAttempts)
		require.Nil(t, st.LockedUntil)
	}

	st, err := s.IncrementFailedLogins(ctx, "a1", t0, 5, lockUntil)
	require.NoError(t, err)
	require.Equal(t, 5, st.FailedAttempts)
	require.NotNil(t, st.LockedUntil)
	require.True(t, st.LockedUntil.Equal(lockUntil))

	// An active lock is never extended by further failures.
	st, err = s.IncrementFailedLogins(ctx, "a1", t0.Add(time.Minute), 5, lockUntil.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 6, st.FailedAttempts)
	require.True(t, st.LockedUntil.Equal(lockUntil))

	// Once the lock has expired the counter starts over.
	st, err = s.IncrementFailedLogins(ctx, "a1", lockUntil, 5, lockUntil.Add(30*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, st.FailedAttempts)
	require.Nil(t, st.LockedUntil)

	_, err = s.IncrementFailedLogins(ctx, "nobody", t0, 5, lockUntil)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLoginSuccessAndUnlockClearCounter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAccount(t, s, "a1", "reader@example.com")

	for i := 0; i < 5; i++ {
		_, err := s.IncrementFailedLogins(ctx, "a1", t0, 5, t0.Add(time.Hour))
		require.NoError(t, err)
	}
	require.NoError(t, s.UnlockAccount(ctx, "a1"))
	got, err := s.AccountByID(ctx, "a1")
	require.NoError(t, err)
	require.Zero(t, got.FailedLoginAttempts)
	require.Nil(t, got.LockedUntil)

	_, err = s.IncrementFailedLogins(ctx, "a1", t0, 5, t0.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, s.RecordLoginSuccess(ctx, "a1", t0.Add(time.Minute)))
	got, err = s.AccountByID(ctx, "a1")
	require.NoError(t, err)
	require.Zero(t, got.FailedLoginAttempts)
	require.NotNil(t, got.LastLoginAt)
	require.True(t, got.LastLoginAt.Equal(t0.Add(time.Minute)))

	require.ErrorIs(t, s.UnlockAccount(ctx, "nobody"), domain.ErrNotFound)
}

func TestAccountFieldUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAccount(t, s, "a1", "reader@example.com")

	require.NoError(t, s.MarkEmailVerified(ctx, "a1", t0))
	require.NoError(t, s.MarkEmailVerified(ctx, "a1", t0.Add(time.Hour)))
	require.NoError(t, s.SetTwoFactorSecret(ctx, "a1", "SECRET"))
	require.NoError(t, s.UpdatePasswordHash(ctx, "a1", "$argon2id$new"))
	require.NoError(t, s.UpdateConsent(ctx, "a1", domain.ConsentGDPR, true, t0))
	require.NoError(t, s.UpdateConsent(ctx, "a1", domain.ConsentMarketing, true, t0))
	require.NoError(t, s.UpdateConsent(ctx, "a1", domain.ConsentCookies, false, t0))
	require.NoError(t, s.RequestDeletion(ctx, "a1", t0))
	require.NoError(t, s.RequestDeletion(ctx, "a1", t0.Add(time.Hour)))

	got, err := s.AccountByID(ctx, "a1")
	require.NoError(t, err)
	require.True(t, got.EmailVerifiedAt.Equal(t0), "first verification timestamp is kept")
	require.Equal(t, "SECRET", got.TwoFactorSecret)
	require.False(t, got.TwoFactorEnabled)
	require.Equal(t, "$argon2id$new", got.PasswordHash)
	require.True(t, got.GDPRConsent)
	require.True(t, got.GDPRConsentAt.Equal(t0))
	require.True(t, got.MarketingConsent)
	require.True(t, got.DeletionRequested)
	require.True(t, got.DeletionRequestedAt.Equal(t0))

	require.NoError(t, s.EnableTwoFactor(ctx, "a1"))
	got, err = s.AccountByID(ctx, "a1")
	require.NoError(t, err)
	require.True(t, got.TwoFactorEnabled)

	require.NoError(t, s.DisableTwoFactor(ctx, "a1"))
	got, err = s.AccountByID(ctx, "a1")
	require.NoError(t, err)
	require.False(t, got.TwoFactorEnabled)
	require.Empty(t, got.TwoFactorSecret)

	require.ErrorIs(t, s.UpdateConsent(ctx, "nobody", domain.ConsentCookies, true, t0), domain.ErrNotFound)
	require.ErrorIs(t, s.EnableTwoFactor(ctx, "nobody"), domain.ErrNotFound)
}

func TestBackupCodesConsumeOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceBackupCodes(ctx, "a1", []string{"h1", "h2", "h3", "h1"}))
	n, err := s.CountBackupCodes(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ConsumeBackupCode(ctx, "a1", "h2")
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, wins.Load())

	ok, err := s.ConsumeBackupCode(ctx, "a2", "h1")
	require.NoError(t, err)
	require.False(t, ok, "codes are scoped to their account")

	require.NoError(t, s.ReplaceBackupCodes(ctx, "a1", nil))
	n, err = s.CountBackupCodes(ctx, "a1")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestTokens(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := func(hash string) domain.TokenRecord {
		return domain.TokenRecord{
			Kind:      domain.TokenPasswordReset,
			Hash:      hash,
			Email:     "Reader@example.com",
			ExpiresAt: t0.Add(time.Hour),
			CreatedAt: t0,
		}
	}

	require.NoError(t, s.SaveToken(ctx, rec("h1")))
	require.NoError(t, s.SaveToken(ctx, rec("h2")))
	require.NoError(t, s.ReplaceTokensForEmail(ctx, rec("h3")))

	_, err := s.FindToken(ctx, domain.TokenPasswordReset, "h1")
	require.ErrorIs(t, err, domain.ErrNotFound)
	got, err := s.FindToken(ctx, domain.TokenPasswordReset, "h3")
	require.NoError(t, err)
	require.Equal(t, "reader@example.com", got.Email)
	require.True(t, got.ExpiresAt.Equal(t0.Add(time.Hour)))

	_, err = s.FindToken(ctx, domain.TokenEmailVerification, "h3")
	require.ErrorIs(t, err, domain.ErrNotFound, "kinds do not share a namespace")

	ok, err := s.DeleteToken(ctx, domain.TokenPasswordReset, "h3")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.DeleteToken(ctx, domain.TokenPasswordReset, "h3")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.SaveToken(ctx, rec("h4")))
	require.NoError(t, s.SaveToken(ctx, rec("h5")))
	n, err := s.DeleteTokensForEmail(ctx, domain.TokenPasswordReset, "READER@example.com")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestAttemptWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fail := func(ip string, at time.Time) {
		require.NoError(t, s.AppendAttempt(ctx, domain.LoginAttempt{
			Email:     "reader@example.com",
			IP:        ip,
			Action:    domain.ActionLogin,
			Reason:    "INVALID_CREDENTIALS",
			CreatedAt: at,
		}))
	}

	for i := 0; i < 4; i++ {
		fail("203.0.113.1", t0.Add(time.Duration(i)*time.Minute))
	}
	fail("203.0.113.2", t0)
	require.NoError(t, s.AppendAttempt(ctx, domain.LoginAttempt{
		Email: "reader@example.com", IP: "203.0.113.1", Action: domain.ActionLogin, Success: true, CreatedAt: t0.Add(5 * time.Minute),
	}))
	require.NoError(t, s.AppendAttempt(ctx, domain.LoginAttempt{
		IP: "203.0.113.1", Action: domain.ActionPasswordReset, CreatedAt: t0,
	}))

	n, err := s.CountFailures(ctx, "203.0.113.1", domain.ActionLogin, t0)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	n, err = s.CountFailures(ctx, "203.0.113.1", domain.ActionLogin, t0.Add(90*time.Second))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	at, err := s.NthFailureAt(ctx, "203.0.113.1", domain.ActionLogin, t0, 1)
	require.NoError(t, err)
	require.True(t, at.Equal(t0.Add(time.Minute)))

	_, err = s.NthFailureAt(ctx, "203.0.113.1", domain.ActionLogin, t0, 9)
	require.ErrorIs(t, err, domain.ErrNotFound)

	recent, err := s.RecentAttempts(ctx, "reader@example.com", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "203.0.113.2", recent[0].IP)
	require.True(t, recent[1].Success)
	require.NotEmpty(t, recent[1].ID)

}

func TestPurgeRemovesExpiredTokensOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendAttempt(ctx, domain.LoginAttempt{
		Email: "reader@example.com", IP: "203.0.113.1", Action: domain.ActionLogin, Reason: "INVALID_CREDENTIALS", CreatedAt: t0,
	}))
	for hash, ttl := range map[string]time.Duration{"short": time.Minute, "long": 3 * time.Hour} {
		require.NoError(t, s.SaveToken(ctx, domain.TokenRecord{
			Kind: domain.TokenEmailVerification, Hash: hash, Email: "reader@example.com", ExpiresAt: t0.Add(ttl), CreatedAt: t0,
		}))
	}

	purged, err := s.Purge(ctx, t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, purged)

	_, err = s.FindToken(ctx, domain.TokenEmailVerification, "short")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.FindToken(ctx, domain.TokenEmailVerification, "long")
	require.NoError(t, err)

	recent, err := s.RecentAttempts(ctx, "reader@example.com", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	n, err := s.CountFailures(ctx, "203.0.113.1", domain.ActionLogin, t0)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestConsentHistoryOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, granted := range []bool{true, false, true} {
		require.NoError(t, s.AppendConsent(ctx, domain.ConsentLog{
			AccountID: "a1",
			Type:      domain.ConsentMarketing,
			Granted:   granted,
			IP:        "203.0.113.9",
			CreatedAt: t0,
		}))
	}

	history, err := s.ConsentHistory(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.True(t, history[0].Granted)
	require.False(t, history[1].Granted)
	require.True(t, history[2].Granted)

	none, err := s.ConsentHistory(ctx, "a2")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.AccountByID(context.Background(), "a1")
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, s.Ping(context.Background()), ErrUnavailable)
}
