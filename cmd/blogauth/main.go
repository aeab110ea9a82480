// Command blogauth serves the blog authentication API.
//
// Configuration comes from an optional YAML file (-config), overlaid by the
// environment. A .env file in the working directory is loaded first when
// present.
package main

import (
	"context"
	"crypto/ed25519"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/blogauth"
	"github.com/MrEthical07/blogauth/httpapi"
	"github.com/MrEthical07/blogauth/internal/logging"
	"github.com/MrEthical07/blogauth/jwt"
	"github.com/MrEthical07/blogauth/metrics/export/prometheus"
	"github.com/MrEthical07/blogauth/sqlstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", os.Getenv("BLOGAUTH_CONFIG"), "path to a YAML config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("blogauth stopped", zap.Error(err))
	}
}

func run(cfg appConfig, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	builder := blogauth.New().
		WithConfig(cfg.Auth).
		WithLogger(log).
		WithMailer(blogauth.NewLogMailer(log))

	cleanup, err := attachStorage(ctx, cfg, builder, log)
	if err != nil {
		return err
	}
	defer cleanup()

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	report := engine.SecurityReport()
	log.Info("security posture",
		zap.Uint32("argon2_memory_kb", report.Argon2.Memory),
		zap.Uint32("argon2_time", report.Argon2.Time),
		zap.Int("password_min_length", report.PasswordMinLength),
		zap.Duration("login_window", report.LoginWindow),
		zap.Int("login_max_failures", report.LoginMaxFailures),
		zap.Int("lock_threshold", report.LockThreshold),
		zap.Duration("lock_duration", report.LockDuration),
		zap.Bool("federated_provisioning", report.FederatedProvisioning),
	)

	tokens, err := newTokenManager(cfg.Token)
	if err != nil {
		return err
	}

	if !cfg.Log.Dev {
		gin.SetMode(gin.ReleaseMode)
	}
	router, err := httpapi.NewRouter(httpapi.Options{
		Engine:         engine,
		Tokens:         tokens,
		Logger:         log,
		Metrics:        prometheus.NewExporter(engine).Handler(),
		FederationKey:  cfg.Server.FederationKey,
		TrustedProxies: cfg.Server.TrustedProxies,
	})
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr), zap.String("backend", cfg.Storage.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	return nil
}

// attachStorage connects the configured backend to the builder and returns a
// cleanup func. The SQL backend also starts the expired-row purge loop, which
// stops with ctx.
func attachStorage(ctx context.Context, cfg appConfig, b *blogauth.Builder, log *zap.Logger) (func(), error) {
	switch cfg.Storage.Backend {
	case backendSQL:
		store, err := sqlstore.Open(cfg.Storage.SQL, log)
		if err != nil {
			return nil, err
		}
		migrateCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if err := store.Migrate(migrateCtx); err != nil {
			_ = store.Close()
			return nil, err
		}
		b.WithStore(store)
		go purgeLoop(ctx, store, cfg.Storage.PurgeInterval, log)
		return func() { _ = store.Close() }, nil

	case backendInMemory:
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start embedded redis: %w", err)
		}
		log.Warn("using in-memory storage; all data is lost on exit", zap.String("addr", mr.Addr()))
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		b.WithRedis(client)
		return func() {
			_ = client.Close()
			mr.Close()
		}, nil

	default:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Storage.RedisAddr},
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.Storage.RedisAddr, err)
		}
		b.WithRedis(client)
		return func() { _ = client.Close() }, nil
	}
}

func purgeLoop(ctx context.Context, store *sqlstore.Store, every time.Duration, log *zap.Logger) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			tokens, err := store.Purge(ctx, time.Now())
			if err != nil {
				log.Warn("purge failed", zap.Error(err))
				continue
			}
			log.Debug("purged expired tokens", zap.Int64("tokens", tokens))
		}
	}
}

func newTokenManager(cfg tokenConfig) (*jwt.Manager, error) {
	key, err := decodeKey(cfg.Key)
	if err != nil {
		return nil, err
	}
	jc := jwt.Config{
		TTL:           cfg.TTL,
		SigningMethod: jwt.SigningMethod(cfg.Method),
		Issuer:        cfg.Issuer,
		Audience:      cfg.Audience,
		KeyID:         cfg.KeyID,
	}
	switch jc.SigningMethod {
	case jwt.MethodEd25519:
		if len(key) != ed25519.SeedSize {
			return nil, fmt.Errorf("ed25519 token key must be a %d byte seed", ed25519.SeedSize)
		}
		priv := ed25519.NewKeyFromSeed(key)
		jc.PrivateKey = priv
		jc.PublicKey = priv.Public().(ed25519.PublicKey)
	default:
		jc.PrivateKey = key
	}
	return jwt.NewManager(jc)
}
