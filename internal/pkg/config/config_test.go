package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/env"
)

func withEnv(t *testing.T, values map[string]string) {
	t.Helper()
	prev := env.Env
	env.Env = values
	t.Cleanup(func() { env.Env = prev })
}

func TestLoadDefaults(t *testing.T) {
	withEnv(t, map[string]string{
		"WEBHOOK_SIGNATURE_KEY": "00ff",
	})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "3306", cfg.Database.Port)
	assert.Equal(t, GatewayNoop, cfg.Gateway.Strategy)
	assert.Equal(t, 5*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, 3, cfg.Gateway.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Gateway.BackoffBase)
	assert.Equal(t, 24*time.Hour, cfg.Idempotency.TTL)
	assert.Equal(t, 30*time.Second, cfg.Idempotency.Lease)
	assert.Equal(t, time.Minute, cfg.Reconciliation.Interval)
	assert.Equal(t, EventsLog, cfg.Events.Backend)
	assert.False(t, cfg.Webhook.AllowUnsigned)
	assert.Equal(t, 120, cfg.RateLimitMax)
}

func TestLoadPostgresDefaultPort(t *testing.T) {
	withEnv(t, map[string]string{
		"DB_DRIVER":             "postgres",
		"WEBHOOK_SIGNATURE_KEY": "00ff",
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "5432", cfg.Database.Port)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
	}{
		{"missing webhook key", map[string]string{}},
		{"non hex webhook key", map[string]string{"WEBHOOK_SIGNATURE_KEY": "zz"}},
		{"unknown driver", map[string]string{"WEBHOOK_SIGNATURE_KEY": "00", "DB_DRIVER": "oracle"}},
		{"unknown gateway", map[string]string{"WEBHOOK_SIGNATURE_KEY": "00", "GATEWAY_STRATEGY": "stripe"}},
		{"production without credentials", map[string]string{"WEBHOOK_SIGNATURE_KEY": "00", "GATEWAY_STRATEGY": "production"}},
		{"kafka without brokers", map[string]string{"WEBHOOK_SIGNATURE_KEY": "00", "EVENTS_BACKEND": "kafka"}},
		{"archive without bucket", map[string]string{"WEBHOOK_SIGNATURE_KEY": "00", "S3_ARCHIVE_ENABLED": "true", "S3_ACCESS_KEY_ID": "a", "S3_SECRET_ACCESS_KEY": "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withEnv(t, tt.values)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadAllowsUnsignedOptIn(t *testing.T) {
	withEnv(t, map[string]string{"WEBHOOK_ALLOW_UNSIGNED": "true"})

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Webhook.AllowUnsigned)
	assert.Empty(t, cfg.Webhook.SignatureKey)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, splitList(" a:9092, ,b:9092 "))
	assert.Nil(t, splitList(""))
}
