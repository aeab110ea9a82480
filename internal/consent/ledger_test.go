package consent

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/blogauth/domain"
	"github.com/MrEthical07/blogauth/internal/stores"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) (*Ledger, *stores.Redis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := stores.NewRedis(rdb, "consent-test", time.Hour)
	return NewLedger(s, s, nil), s
}

func TestRecordAppendsAndMirrors(t *testing.T) {
	l, s := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, s.CreateAccount(ctx, &domain.Account{ID: "acct", Email: "c@example.com", Role: domain.RoleUser}))

	src := Source{IP: "192.0.2.1", UserAgent: "test-agent"}
	entry, err := l.Record(ctx, "acct", domain.ConsentGDPR, true, src)
	require.NoError(t, err)
	require.NotEmpty(t, entry.ID)
	require.Equal(t, "192.0.2.1", entry.IP)

	_, err = l.Record(ctx, "acct", domain.ConsentMarketing, true, src)
	require.NoError(t, err)
	_, err = l.Record(ctx, "acct", domain.ConsentAnalytics, true, src)
	require.NoError(t, err)
	_, err = l.Record(ctx, "acct", domain.ConsentMarketing, false, src)
	require.NoError(t, err)

	account, err := s.AccountByID(ctx, "acct")
	require.NoError(t, err)
	require.True(t, account.GDPRConsent)
	require.NotNil(t, account.GDPRConsentAt)
	require.False(t, account.MarketingConsent)

	history, err := l.History(ctx, "acct")
	require.NoError(t, err)
	require.Len(t, history, 4)
	require.Equal(t, domain.ConsentMarketing, history[1].Type)
	require.True(t, history[1].Granted, "earlier entries are never rewritten")

	current, err := l.Current(ctx, "acct")
	require.NoError(t, err)
	require.Equal(t, map[domain.ConsentType]bool{
		domain.ConsentGDPR:      true,
		domain.ConsentMarketing: false,
		domain.ConsentAnalytics: true,
	}, current)
}

func TestRecordRejectsUnknownType(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.Record(context.Background(), "acct", domain.ConsentType("NEWSLETTER"), true, Source{})
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestRecordUnknownAccountWritesNothing(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	for _, kind := range []domain.ConsentType{domain.ConsentGDPR, domain.ConsentAnalytics} {
		_, err := l.Record(ctx, "ghost", kind, true, Source{})
		require.ErrorIs(t, err, domain.ErrNotFound)
	}

	history, err := l.History(ctx, "ghost")
	require.NoError(t, err)
	require.Empty(t, history)
}
