package blogauth

import (
	"context"
	"testing"

	"github.com/MrEthical07/blogauth/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogMailerHidesTokenAboveDebug(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	m := NewLogMailer(zap.New(core))

	msg := verificationMessage(&domain.Account{Email: testEmail, Name: "Ada"}, "deadbeef")
	require.NoError(t, m.Deliver(context.Background(), msg))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	require.Equal(t, "mailer", entry.LoggerName)
	_, hasToken := entry.ContextMap()["token"]
	require.False(t, hasToken)
}

func TestLogMailerDebugIncludesToken(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	m := NewLogMailer(zap.New(core))

	require.NoError(t, m.Deliver(context.Background(), resetMessage(&domain.Account{Email: testEmail}, "cafebabe")))

	debug := logs.FilterMessage("email token").All()
	require.Len(t, debug, 1)
	require.Equal(t, "cafebabe", debug[0].ContextMap()["token"])
}

func TestMessagesAddressAccount(t *testing.T) {
	account := &domain.Account{Email: testEmail}

	msg := resetMessage(account, "t0k3n")
	require.Equal(t, MessagePasswordReset, msg.Kind)
	require.Equal(t, testEmail, msg.To)
	require.Contains(t, msg.Body, "t0k3n")
	require.Contains(t, msg.Body, testEmail)

	var got Message
	f := MailerFunc(func(_ context.Context, m Message) error {
		got = m
		return nil
	})
	require.NoError(t, f.Deliver(context.Background(), msg))
	require.Equal(t, msg, got)
}
