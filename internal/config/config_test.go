package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV", "HTTP_PORT", "POSTGRES_DSN", "REDIS_URL", "REDIS_ADDR", "REDIS_USERNAME",
		"REDIS_PASSWORD", "LOCK_TTL", "SHUTDOWN_TIMEOUT", "REQUEST_TIMEOUT", "LOG_LEVEL",
		"LOG_FORMAT", "PORTAL_TIMEZONE", "SESSION_SECRET", "SESSION_TTL", "NOTIFY_DRIVER",
		"KAFKA_BROKERS", "KAFKA_ALERT_TOPIC", "SENDGRID_API_KEY",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadRequiresPostgresDSN(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_DSN")
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("POSTGRES_DSN", "postgres://localhost/portal")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
	assert.Equal(t, 5*time.Second, cfg.LockTTL)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, NotifyLog, cfg.NotifyDriver)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, devSessionSecret, cfg.SessionSecret)
	assert.Equal(t, time.UTC, cfg.Location)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("POSTGRES_DSN", "postgres://localhost/portal")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("REDIS_URL", "redis://user:pw@cache:6380")
	t.Setenv("LOCK_TTL", "3")
	t.Setenv("REQUEST_TIMEOUT", "750ms")
	t.Setenv("NOTIFY_DRIVER", "KAFKA")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("PORTAL_TIMEZONE", "America/New_York")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "cache:6380", cfg.RedisAddr)
	assert.Equal(t, "user", cfg.RedisUsername)
	assert.Equal(t, "pw", cfg.RedisPassword)
	assert.Equal(t, 3*time.Second, cfg.LockTTL)
	assert.Equal(t, 750*time.Millisecond, cfg.RequestTimeout)
	assert.Equal(t, NotifyKafka, cfg.NotifyDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "America/New_York", cfg.Location.String())
	assert.Equal(t, "s3cret", cfg.SessionSecret)
}

func TestLoadRejectsMissingSecretOutsideDev(t *testing.T) {
	clearEnv(t)
	t.Setenv("POSTGRES_DSN", "postgres://localhost/portal")
	t.Setenv("APP_ENV", "prod")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_SECRET")
}

func TestLoadRejectsUnknownNotifyDriver(t *testing.T) {
	clearEnv(t)
	t.Setenv("POSTGRES_DSN", "postgres://localhost/portal")
	t.Setenv("NOTIFY_DRIVER", "pigeon")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadSendGridNeedsKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("POSTGRES_DSN", "postgres://localhost/portal")
	t.Setenv("NOTIFY_DRIVER", "sendgrid")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("SENDGRID_API_KEY", "key")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, NotifySendGrid, cfg.NotifyDriver)
}

func TestGetDurationFallsBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_TTL", "soon")
	assert.Equal(t, time.Minute, getDuration("SOME_TTL", time.Minute))
}
