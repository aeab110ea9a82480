package main

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/blogauth"
	"github.com/MrEthical07/blogauth/internal/logging"
	"github.com/MrEthical07/blogauth/sqlstore"
	"gopkg.in/yaml.v3"
)

// Backend values for StorageConfig.Backend.
const (
	backendRedis    = "redis"
	backendSQL      = "sql"
	backendInMemory = "memory"
)

type serverConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	TrustedProxies  []string      `yaml:"trusted_proxies"`
	FederationKey   string        `yaml:"federation_key"`
}

type storageConfig struct {
	// Backend is redis, sql or memory. memory runs an embedded miniredis and
	// loses everything on exit.
	Backend       string          `yaml:"backend"`
	RedisAddr     string          `yaml:"redis_addr"`
	RedisPassword string          `yaml:"redis_password"`
	RedisDB       int             `yaml:"redis_db"`
	SQL           sqlstore.Config `yaml:"sql"`
	PurgeInterval time.Duration   `yaml:"purge_interval"`
}

type tokenConfig struct {
	TTL      time.Duration `yaml:"ttl"`
	Method   string        `yaml:"method"`
	Issuer   string        `yaml:"issuer"`
	Audience string        `yaml:"audience"`
	KeyID    string        `yaml:"key_id"`
	// Key is the HS256 secret or the Ed25519 seed, hex or base64 encoded.
	Key string `yaml:"key"`
}

type appConfig struct {
	Server  serverConfig    `yaml:"server"`
	Storage storageConfig   `yaml:"storage"`
	Token   tokenConfig     `yaml:"token"`
	Log     logging.Config  `yaml:"log"`
	Auth    blogauth.Config `yaml:"auth"`
}

func defaultAppConfig() appConfig {
	return appConfig{
		Server: serverConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: storageConfig{
			Backend:       backendRedis,
			RedisAddr:     "127.0.0.1:6379",
			SQL:           sqlstore.Config{Driver: "postgres", MaxOpenConns: 20, MaxIdleConns: 5, ConnMaxLifetime: time.Hour},
			PurgeInterval: 10 * time.Minute,
		},
		Token: tokenConfig{
			TTL:    15 * time.Minute,
			Method: "hs256",
			Issuer: "blogauth",
		},
		Log:  logging.Config{Level: "info"},
		Auth: blogauth.DefaultConfig(),
	}
}

// loadConfig layers defaults, the YAML file at path (optional) and then the
// environment. .env has already been loaded into the environment by main.
func loadConfig(path string) (appConfig, error) {
	cfg := defaultAppConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func applyEnv(cfg *appConfig) error {
	setString(&cfg.Server.Addr, "BLOGAUTH_ADDR")
	setString(&cfg.Server.FederationKey, "BLOGAUTH_FEDERATION_KEY")
	if v := os.Getenv("BLOGAUTH_TRUSTED_PROXIES"); v != "" {
		cfg.Server.TrustedProxies = splitList(v)
	}

	setString(&cfg.Storage.Backend, "BLOGAUTH_BACKEND")
	setString(&cfg.Storage.RedisAddr, "REDIS_ADDR")
	setString(&cfg.Storage.RedisPassword, "REDIS_PASSWORD")
	setString(&cfg.Storage.SQL.Driver, "BLOGAUTH_SQL_DRIVER")
	setString(&cfg.Storage.SQL.DSN, "DATABASE_URL")

	setString(&cfg.Token.Key, "BLOGAUTH_TOKEN_KEY")
	setString(&cfg.Token.Method, "BLOGAUTH_TOKEN_METHOD")
	setString(&cfg.Token.Issuer, "BLOGAUTH_TOKEN_ISSUER")
	if err := setDuration(&cfg.Token.TTL, "BLOGAUTH_TOKEN_TTL"); err != nil {
		return err
	}

	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.File.Path, "LOG_FILE")
	if os.Getenv("LOG_DEV") == "1" {
		cfg.Log.Dev = true
	}

	if v := os.Getenv("BLOGAUTH_AUTO_PROVISION"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BLOGAUTH_AUTO_PROVISION: %w", err)
		}
		cfg.Auth.Federated.AutoProvision = b
	}
	return nil
}

func (c appConfig) validate() error {
	switch c.Storage.Backend {
	case backendRedis, backendSQL, backendInMemory:
	default:
		return fmt.Errorf("storage.backend %q: want redis, sql or memory", c.Storage.Backend)
	}
	if c.Storage.Backend == backendSQL && c.Storage.SQL.DSN == "" {
		return errors.New("storage.sql.dsn is required for the sql backend")
	}
	if c.Token.Key == "" {
		return errors.New("token.key (BLOGAUTH_TOKEN_KEY) is required")
	}
	return c.Auth.Validate()
}

// decodeKey accepts hex first, then standard and URL-safe base64.
func decodeKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := hex.DecodeString(s); err == nil {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return nil, errors.New("token key is neither hex nor base64")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
