package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	require.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	require.Equal(t, zapcore.ErrorLevel, ParseLevel(" error "))
	require.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
}

func TestNewJSONWritesStructuredLines(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSON(zapcore.AddSync(&buf), zapcore.InfoLevel)

	logger.Debug("hidden")
	logger.Info("login", zap.String("reason", "RATE_LIMITED"))
	require.NoError(t, logger.Sync())

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "login", line["msg"])
	require.Equal(t, "RATE_LIMITED", line["reason"])
	require.Equal(t, "info", line["level"])
}

func TestNewWithFileRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blogauth.log")
	logger, err := New(Config{Level: "info", File: FileConfig{Path: path, MaxSizeMB: 1}})
	require.NoError(t, err)

	logger.Info("started")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"started"`)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_DEV", "1")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FILE", "/tmp/x.log")

	cfg := ConfigFromEnv()
	require.True(t, cfg.Dev)
	require.Equal(t, "debug", cfg.Level)
	require.Equal(t, "/tmp/x.log", cfg.File.Path)
}
