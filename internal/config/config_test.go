package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "a-secret-of-enough-length")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "data/circles.db", cfg.DBPath)
	assert.Equal(t, 168*time.Hour, cfg.InvitationTTL)
	assert.Equal(t, 12*time.Hour, cfg.NonceTTL)
	assert.Equal(t, 5, cfg.OutboxMaxAttempts)
	assert.Equal(t, "a-secret-of-enough-length", cfg.NonceSecret, "nonce secret falls back to JWT secret")
	assert.False(t, cfg.KafkaEnabled())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "a-secret-of-enough-length")
	t.Setenv("PORT", "9090")
	t.Setenv("BASE_URL", "https://circles.example/")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("OUTBOX_INTERVAL", "500ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "https://circles.example", cfg.BaseURL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 500*time.Millisecond, cfg.OutboxInterval)
	assert.True(t, cfg.KafkaEnabled())
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("INVITATION_TTL", "a week")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Port:              8080,
			JWTSecret:         "0123456789abcdef",
			NonceSecret:       "0123456789abcdef",
			InvitationTTL:     time.Hour,
			OutboxInterval:    time.Second,
			OutboxMaxAttempts: 1,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"short jwt secret", func(c *Config) { c.JWTSecret = "short" }},
		{"bad port", func(c *Config) { c.Port = 0 }},
		{"zero ttl", func(c *Config) { c.InvitationTTL = 0 }},
		{"bluesky half configured", func(c *Config) { c.BlueskyDID = "did:plc:abc" }},
	}

	ok := base()
	assert.NoError(t, ok.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, (&Config{LogLevel: "DEBUG"}).SlogLevel())
	assert.Equal(t, slog.LevelWarn, (&Config{LogLevel: "warn"}).SlogLevel())
	assert.Equal(t, slog.LevelInfo, (&Config{LogLevel: "verbose"}).SlogLevel())
}
