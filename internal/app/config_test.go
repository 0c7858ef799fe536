package app

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoggerTagsServiceAndHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{AppEnv: "staging", LogFormat: "json", LogLevel: "warn"})

	logger.Info("posted")
	require.Zero(t, buf.Len())

	logger.Warn("drift detected")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, ServiceName, line["service"])
	require.Equal(t, "staging", line["env"])
	require.Equal(t, "drift detected", line["msg"])
}

func TestLoggerFallsBackToInfo(t *testing.T) {
	require.Equal(t, "INFO", parseLevel(&Config{LogLevel: "chatty"}).String())
	require.Equal(t, "INFO", parseLevel(nil).String())
	require.Equal(t, "DEBUG", parseLevel(&Config{LogLevel: "debug"}).String())
}

func TestConfigConnectionSettings(t *testing.T) {
	cfg := &Config{
		PGDSN:             "postgres://ledger@db:5432/ledger",
		PGMaxConns:        20,
		PGMinConns:        2,
		PGConnMaxLifetime: time.Hour,
		RedisAddr:         "cache:6379",
		RedisDB:           3,
	}

	pool := cfg.PoolConfig()
	require.Equal(t, cfg.PGDSN, pool.DSN)
	require.Equal(t, ServiceName, pool.ApplicationName)
	require.Equal(t, int32(20), pool.MaxConns)
	require.Equal(t, int32(2), pool.MinConns)
	require.Equal(t, time.Hour, pool.MaxConnLifetime)

	opts := cfg.CacheOptions()
	require.Equal(t, "cache:6379", opts.Addr)
	require.Equal(t, 3, opts.DB)
	require.Equal(t, ServiceName, opts.ClientName)
}

func TestRefreshTestMode(t *testing.T) {
	t.Setenv(TestModeEnv, "true")
	RefreshTestMode()
	require.True(t, InTestMode())

	t.Setenv(TestModeEnv, "nope")
	RefreshTestMode()
	require.False(t, InTestMode())
}
