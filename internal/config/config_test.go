package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Environment)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "*", cfg.HTTP.CORSOrigin)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "metar.raw", cfg.NATS.Subject)
	assert.Equal(t, "metar.decoded", cfg.NATS.OutputSubject)
	assert.Empty(t, cfg.SQLite.Path)
	assert.False(t, cfg.ClickHouse.Enabled)
	assert.False(t, cfg.Postgres.Enabled)

	sc := cfg.Storage()
	assert.Equal(t, 9000, sc.ClickHouse.Port)
	assert.Equal(t, "metar_state", sc.Postgres.Database)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("API_KEY", "secret")
	t.Setenv("NATS_SUBJECT", "wx.metar")
	t.Setenv("SQLITE_PATH", "/tmp/reports.db")
	t.Setenv("POSTGRES_ENABLED", "true")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_PORT", "6543")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Environment)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "secret", cfg.HTTP.APIKey)
	assert.Equal(t, "wx.metar", cfg.NATS.Subject)
	assert.Equal(t, "/tmp/reports.db", cfg.SQLite.Path)
	assert.True(t, cfg.Postgres.Enabled)

	sc := cfg.Storage()
	assert.Equal(t, "db.internal", sc.Postgres.Host)
	assert.Equal(t, 6543, sc.Postgres.Port)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown environment", "APP_ENV", "staging"},
		{"unknown log level", "LOG_LEVEL", "verbose"},
		{"unknown log format", "LOG_FORMAT", "xml"},
		{"bad duration", "SHUTDOWN_TIMEOUT", "soon"},
		{"zero timeout", "SHUTDOWN_TIMEOUT", "0s"},
		{"port out of range", "CLICKHOUSE_PORT", "70000"},
		{"port not a number", "POSTGRES_PORT", "pg"},
		{"enabled feed without subject", "NATS_SUBJECT", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
