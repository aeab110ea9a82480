package stores

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/blogauth/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newTestStore(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, rdb := newTestRedis(t)
	return NewRedis(rdb, "test", time.Hour), mr
}

func seedAccount(t *testing.T, s *Redis, email string) *domain.Account {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	a := &domain.Account{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         "Reader",
		PasswordHash: "$argon2id$stub",
		Role:         domain.RoleUser,
		GDPRConsent:  true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.CreateAccount(context.Background(), a))
	return a
}

func TestRedis_CreateAndLookupAccount(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	created := seedAccount(t, s, "Reader@Example.com ")

	byEmail, err := s.AccountByEmail(ctx, "reader@example.com")
	require.NoError(t, err)
	require.Equal(t, created.ID, byEmail.ID)
	require.Equal(t, "reader@example.com", byEmail.Email)
	require.Equal(t, domain.RoleUser, byEmail.Role)
	require.True(t, byEmail.GDPRConsent)
	require.Nil(t, byEmail.EmailVerifiedAt)
	require.Nil(t, byEmail.LockedUntil)
	require.True(t, created.CreatedAt.Equal(byEmail.CreatedAt))

	_, err = s.AccountByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.AccountByID(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRedis_FederatedLinkRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	a := &domain.Account{
		ID: uuid.NewString(), Email: "social@example.com", Role: domain.RoleUser,
		FederatedProvider: "google", FederatedSubject: "g-1",
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateAccount(ctx, a))

	got, err := s.AccountByID(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, got.LinkedTo("google", "g-1"))
	require.False(t, got.LinkedTo("google", "g-2"))
}

func TestRedis_CreateAccountRejectsDuplicateEmail(t *testing.T) {
	s, _ := newTestStore(t)
	seedAccount(t, s, "dup@example.com")

	err := s.CreateAccount(context.Background(), &domain.Account{ID: uuid.NewString(), Email: "DUP@example.com"})
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestRedis_IncrementFailedLogins_LocksAtThreshold(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s, "lock@example.com")

	now := time.Now()
	lockUntil := now.Add(30 * time.Minute)
	for i := 1; i <= 4; i++ {
		st, err := s.IncrementFailedLogins(ctx, a.ID, now, 5, lockUntil)
		require.NoError(t, err)
		require.Equal(t, i, st.FailedAttempts)
		require.Nil(t, st.LockedUntil)
	}

	st, err := s.IncrementFailedLogins(ctx, a.ID, now, 5, lockUntil)
	require.NoError(t, err)
	require.Equal(t, 5, st.FailedAttempts)
	require.NotNil(t, st.LockedUntil)
	require.Equal(t, lockUntil.UnixNano(), st.LockedUntil.UnixNano())

	got, err := s.AccountByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, 5, got.FailedLoginAttempts)
	require.NotNil(t, got.LockedUntil)
}

func TestRedis_IncrementFailedLogins_ExpiredLockRestartsCount(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s, "relock@example.com")

	now := time.Now()
	for i := 0; i < 5; i++ {
		_, err := s.IncrementFailedLogins(ctx, a.ID, now, 5, now.Add(time.Minute))
		require.NoError(t, err)
	}

	later := now.Add(2 * time.Minute)
	st, err := s.IncrementFailedLogins(ctx, a.ID, later, 5, later.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, st.FailedAttempts)
	require.Nil(t, st.LockedUntil)
}

func TestRedis_IncrementFailedLogins_ConcurrentIncrementsAllCounted(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s, "race@example.com")

	const workers = 12
	now := time.Now()
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.IncrementFailedLogins(ctx, a.ID, now, 0, now)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.AccountByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, workers, got.FailedLoginAttempts)
}

func TestRedis_RecordLoginSuccessResetsState(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s, "ok@example.com")

	now := time.Now()
	for i := 0; i < 5; i++ {
		_, err := s.IncrementFailedLogins(ctx, a.ID, now, 5, now.Add(time.Hour))
		require.NoError(t, err)
	}
	require.NoError(t, s.RecordLoginSuccess(ctx, a.ID, now))

	got, err := s.AccountByID(ctx, a.ID)
	require.NoError(t, err)
	require.Zero(t, got.FailedLoginAttempts)
	require.Nil(t, got.LockedUntil)
	require.NotNil(t, got.LastLoginAt)

	require.ErrorIs(t, s.RecordLoginSuccess(ctx, "missing", now), domain.ErrNotFound)
}

func TestRedis_AccountFlagUpdates(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s, "flags@example.com")
	now := time.Now()

	require.NoError(t, s.MarkEmailVerified(ctx, a.ID, now))
	require.NoError(t, s.SetTwoFactorSecret(ctx, a.ID, "JBSWY3DPEHPK3PXP"))
	require.NoError(t, s.UpdateConsent(ctx, a.ID, domain.ConsentMarketing, true, now))
	require.NoError(t, s.UpdateConsent(ctx, a.ID, domain.ConsentGDPR, false, now))

	got, err := s.AccountByID(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, got.EmailVerified())
	require.Equal(t, "JBSWY3DPEHPK3PXP", got.TwoFactorSecret)
	require.False(t, got.TwoFactorEnabled)
	require.True(t, got.MarketingConsent)
	require.False(t, got.GDPRConsent)

	require.NoError(t, s.EnableTwoFactor(ctx, a.ID))
	got, err = s.AccountByID(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, got.TwoFactorEnabled)

	require.NoError(t, s.DisableTwoFactor(ctx, a.ID))
	require.NoError(t, s.RequestDeletion(ctx, a.ID, now))
	got, err = s.AccountByID(ctx, a.ID)
	require.NoError(t, err)
	require.False(t, got.TwoFactorEnabled)
	require.Empty(t, got.TwoFactorSecret)
	require.True(t, got.DeletionRequested)
	require.NotNil(t, got.DeletionRequestedAt)
}

func TestRedis_BackupCodesConsumeOnce(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceBackupCodes(ctx, "acct", []string{"h1", "h2", "h3"}))

	ok, err := s.ConsumeBackupCode(ctx, "acct", "h2")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.ConsumeBackupCode(ctx, "acct", "h2")
	require.NoError(t, err)
	require.False(t, ok)

	n, err := s.CountBackupCodes(ctx, "acct")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.NoError(t, s.ReplaceBackupCodes(ctx, "acct", []string{"h9"}))
	ok, err = s.ConsumeBackupCode(ctx, "acct", "h1")
	require.NoError(t, err)
	require.False(t, ok, "replaced batch invalidates old codes")
}

func TestRedis_TokensReplaceAndDelete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first := domain.TokenRecord{Kind: domain.TokenPasswordReset, Hash: "aaa", Email: "r@example.com", ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	second := first
	second.Hash = "bbb"

	require.NoError(t, s.ReplaceTokensForEmail(ctx, first))
	require.NoError(t, s.ReplaceTokensForEmail(ctx, second))

	_, err := s.FindToken(ctx, domain.TokenPasswordReset, "aaa")
	require.ErrorIs(t, err, domain.ErrNotFound)

	rec, err := s.FindToken(ctx, domain.TokenPasswordReset, "bbb")
	require.NoError(t, err)
	require.Equal(t, "r@example.com", rec.Email)
	require.Equal(t, first.ExpiresAt.UnixNano(), rec.ExpiresAt.UnixNano())

	deleted, err := s.DeleteToken(ctx, domain.TokenPasswordReset, "bbb")
	require.NoError(t, err)
	require.True(t, deleted)
	deleted, err = s.DeleteToken(ctx, domain.TokenPasswordReset, "bbb")
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestRedis_DeleteTokensForEmail(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, h := range []string{"t1", "t2"} {
		require.NoError(t, s.SaveToken(ctx, domain.TokenRecord{
			Kind: domain.TokenEmailVerification, Hash: h, Email: "v@example.com",
			ExpiresAt: now.Add(24 * time.Hour), CreatedAt: now,
		}))
	}

	n, err := s.DeleteTokensForEmail(ctx, domain.TokenEmailVerification, "V@example.com")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, err = s.FindToken(ctx, domain.TokenEmailVerification, "t1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRedis_TokenExpiresWithKey(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.SaveToken(ctx, domain.TokenRecord{
		Kind: domain.TokenPasswordReset, Hash: "ttl", Email: "x@example.com",
		ExpiresAt: now.Add(time.Minute), CreatedAt: now,
	}))
	require.True(t, mr.Exists("test:tok:password-reset:ttl"))
	require.Greater(t, mr.TTL("test:tok:password-reset:ttl"), time.Duration(0))
}

func TestRedis_FailureWindowCounting(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendAttempt(ctx, domain.LoginAttempt{
			ID: uuid.NewString(), Email: "w@example.com", IP: "10.0.0.1",
			Action: domain.ActionLogin, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.AppendAttempt(ctx, domain.LoginAttempt{
		ID: uuid.NewString(), Email: "w@example.com", IP: "10.0.0.1",
		Action: domain.ActionLogin, Success: true, CreatedAt: base.Add(3 * time.Minute),
	}))
	require.NoError(t, s.AppendAttempt(ctx, domain.LoginAttempt{
		ID: uuid.NewString(), IP: "10.0.0.1", Action: domain.ActionRegistration, CreatedAt: base,
	}))

	n, err := s.CountFailures(ctx, "10.0.0.1", domain.ActionLogin, base)
	require.NoError(t, err)
	require.Equal(t, 3, n, "successes and other action classes are not counted")

	n, err = s.CountFailures(ctx, "10.0.0.1", domain.ActionLogin, base.Add(90*time.Second))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = s.CountFailures(ctx, "10.0.0.2", domain.ActionLogin, base)
	require.NoError(t, err)
	require.Zero(t, n)

	at, err := s.NthFailureAt(ctx, "10.0.0.1", domain.ActionLogin, base, 1)
	require.NoError(t, err)
	require.True(t, at.Equal(base.Add(time.Minute)), at)

	_, err = s.NthFailureAt(ctx, "10.0.0.1", domain.ActionLogin, base, 3)
	require.ErrorIs(t, err, domain.ErrNotFound)

	recent, err := s.RecentAttempts(ctx, "W@example.com", 10)
	require.NoError(t, err)
	require.Len(t, recent, 4)
	require.True(t, recent[3].Success)
}

func TestRedis_ConsentLedgerAppendOnly(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.AppendConsent(ctx, domain.ConsentLog{ID: "1", AccountID: "acct", Type: domain.ConsentGDPR, Granted: true, IP: "1.1.1.1", CreatedAt: now}))
	require.NoError(t, s.AppendConsent(ctx, domain.ConsentLog{ID: "2", AccountID: "acct", Type: domain.ConsentMarketing, Granted: false, CreatedAt: now}))

	history, err := s.ConsentHistory(ctx, "acct")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, domain.ConsentGDPR, history[0].Type)
	require.True(t, history[0].Granted)
	require.Equal(t, "1.1.1.1", history[0].IP)
	require.Equal(t, domain.ConsentMarketing, history[1].Type)
}
