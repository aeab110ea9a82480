package blogauth

import (
	"context"
	"fmt"

	"github.com/MrEthical07/blogauth/domain"
	"go.uber.org/zap"
)

// MessageKind tells a Mailer which template to render.
type MessageKind string

const (
	MessageEmailVerification MessageKind = "email-verification"
	MessagePasswordReset     MessageKind = "password-reset"
)

// Message is one outbound email. Token is the plaintext single-use token;
// it exists nowhere else once the Engine returns.
type Message struct {
	Kind    MessageKind
	To      string
	Name    string
	Subject string
	Body    string
	Token   string
}

// Mailer delivers messages. Delivery failures are logged by the Engine and
// never fail the calling operation.
type Mailer interface {
	Deliver(ctx context.Context, msg Message) error
}

// MailerFunc adapts a function to Mailer.
type MailerFunc func(ctx context.Context, msg Message) error

func (f MailerFunc) Deliver(ctx context.Context, msg Message) error { return f(ctx, msg) }

// LogMailer writes messages to a zap logger instead of sending them. The
// token is only logged at debug level.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger.Named("mailer")}
}

func (m *LogMailer) Deliver(_ context.Context, msg Message) error {
	m.logger.Info("email queued",
		zap.String("kind", string(msg.Kind)),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	m.logger.Debug("email token", zap.String("to", msg.To), zap.String("token", msg.Token))
	return nil
}

func verificationMessage(account *domain.Account, token string) Message {
	return Message{
		Kind:    MessageEmailVerification,
		To:      account.Email,
		Name:    account.Name,
		Subject: "Verify your email address",
		Body:    fmt.Sprintf("Hi %s, confirm your email address with this code: %s", displayName(account), token),
		Token:   token,
	}
}

func resetMessage(account *domain.Account, token string) Message {
	return Message{
		Kind:    MessagePasswordReset,
		To:      account.Email,
		Name:    account.Name,
		Subject: "Reset your password",
		Body:    fmt.Sprintf("Hi %s, use this code to choose a new password: %s. If you did not ask for a reset you can ignore this email.", displayName(account), token),
		Token:   token,
	}
}

func displayName(a *domain.Account) string {
	if a.Name != "" {
		return a.Name
	}
	return a.Email
}
