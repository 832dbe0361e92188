package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadClientDefaults(t *testing.T) {
	for _, k := range []string{"SCREENBREAKERS_API_URL", "USAGE_DEBOUNCE", "LOG_LEVEL", "REDIS_ADDR", "WATCH_ROSTER"} {
		t.Setenv(k, "")
	}
	cfg := LoadClient()
	assert.Equal(t, "http://localhost:8080", cfg.APIURL)
	assert.Equal(t, 30*time.Second, cfg.Debounce)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	assert.Empty(t, cfg.RedisAddr)
	assert.True(t, cfg.WatchRoster)
}

func TestLoadClientOverrides(t *testing.T) {
	t.Setenv("USAGE_DEBOUNCE", "5s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("WATCH_ROSTER", "false")

	cfg := LoadClient()
	assert.Equal(t, 5*time.Second, cfg.Debounce)
	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.False(t, cfg.WatchRoster)
}

func TestLoadServer(t *testing.T) {
	t.Setenv("SCREENBREAKERS_ENV", "production")
	t.Setenv("PORT", "9000")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRES_USER", "sb")
	t.Setenv("POSTGRES_PASSWORD", "pw")
	t.Setenv("PG_HOST", "db")
	t.Setenv("PG_PORT", "5433")
	t.Setenv("PG_DATABASE", "screenbreakers")
	t.Setenv("TOKEN_EXPIRE_TIME", "72h")

	cfg, err := LoadServer()
	require.NoError(t, err)
	assert.True(t, cfg.Production)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "postgres://sb:pw@db:5433/screenbreakers", cfg.DatabaseURL)
	assert.Equal(t, 72*time.Hour, cfg.TokenExpire)
}

func TestParseTokenExpire(t *testing.T) {
	for _, never := range []string{"", "0", "never"} {
		d, err := ParseTokenExpire(never)
		require.NoError(t, err)
		assert.Zero(t, d)
	}
	_, err := ParseTokenExpire("soon")
	assert.Error(t, err)
}
