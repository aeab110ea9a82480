package blogauth_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/blogauth"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ExampleNew builds an engine on Redis with a logging mailer.
func ExampleNew() {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	logger := zap.NewNop()

	engine, err := blogauth.New().
		WithConfig(blogauth.DefaultConfig()).
		WithRedis(rdb).
		WithLogger(logger).
		WithMailer(blogauth.NewLogMailer(logger)).
		Build()
	if err != nil {
		return
	}
	defer engine.Close()
}

// ExampleEngine_Login shows how to branch on the outcome.
func ExampleEngine_Login() {
	var engine *blogauth.Engine
	ctx := blogauth.WithClientIP(context.Background(), "203.0.113.9")

	out, err := engine.Login(ctx, blogauth.LoginRequest{Email: "reader@example.com", Password: "secret"})
	if err != nil {
		// store outages and malformed requests, never bad credentials
		return
	}
	switch o := out.(type) {
	case blogauth.LoginSuccess:
		fmt.Println("signed in", o.Assertion.AccountID)
	case blogauth.LoginRejected:
		fmt.Println("rejected", o.Reason)
	}
}

// ExampleEngine_Register shows the typed errors a sign-up can return.
func ExampleEngine_Register() {
	var engine *blogauth.Engine
	_, err := engine.Register(context.Background(), blogauth.RegisterRequest{
		Email:       "reader@example.com",
		Password:    "Correct-Horse-42!",
		GDPRConsent: true,
	})

	var weak *blogauth.PasswordPolicyError
	var limited *blogauth.RateLimitError
	switch {
	case errors.As(err, &weak):
		fmt.Println(weak.Violations)
	case errors.As(err, &limited):
		fmt.Println("retry at", limited.RetryAt)
	case errors.Is(err, blogauth.ErrAccountExists):
		fmt.Println("taken")
	}
}
