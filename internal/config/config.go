// Package config loads server configuration from the environment.
//
// A .env file in the working directory is read first (if present) so local
// development needs no exported variables; real environment variables always
// win over the file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every tunable of the server.
type Config struct {
	Port     int    `env:"PORT" envDefault:"8080"`
	DBPath   string `env:"DB_PATH" envDefault:"data/circles.db"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	BaseURL  string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	JWTSecret   string        `env:"JWT_SECRET"`
	SessionTTL  time.Duration `env:"SESSION_TTL" envDefault:"168h"`
	NonceSecret string        `env:"NONCE_SECRET"`
	NonceTTL    time.Duration `env:"NONCE_TTL" envDefault:"12h"`

	InvitationTTL time.Duration `env:"INVITATION_TTL" envDefault:"168h"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM" envDefault:"no-reply@circles.local"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"circles.notifications"`

	BlueskyServiceURL  string `env:"BLUESKY_SERVICE_URL" envDefault:"https://bsky.social"`
	BlueskyDID         string `env:"BLUESKY_DID"`
	BlueskyAccessToken string `env:"BLUESKY_ACCESS_TOKEN"`

	OutboxInterval    time.Duration `env:"OUTBOX_INTERVAL" envDefault:"2s"`
	OutboxBatchSize   int           `env:"OUTBOX_BATCH_SIZE" envDefault:"50"`
	OutboxMaxAttempts int           `env:"OUTBOX_MAX_ATTEMPTS" envDefault:"5"`
}

// Load reads .env (optional) and parses the environment into a Config.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load(".env")

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}
	if cfg.NonceSecret == "" {
		cfg.NonceSecret = cfg.JWTSecret
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	if len(c.NonceSecret) < 16 {
		errs = append(errs, errors.New("NONCE_SECRET must be at least 16 characters"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	if c.InvitationTTL <= 0 {
		errs = append(errs, errors.New("INVITATION_TTL must be positive"))
	}
	if c.OutboxInterval <= 0 {
		errs = append(errs, errors.New("OUTBOX_INTERVAL must be positive"))
	}
	if c.OutboxMaxAttempts < 1 {
		errs = append(errs, errors.New("OUTBOX_MAX_ATTEMPTS must be at least 1"))
	}
	if (c.BlueskyDID == "") != (c.BlueskyAccessToken == "") {
		errs = append(errs, errors.New("BLUESKY_DID and BLUESKY_ACCESS_TOKEN must be set together"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// SlogLevel maps LOG_LEVEL to a slog level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func (c *Config) SMTPEnabled() bool    { return c.SMTPHost != "" }
func (c *Config) KafkaEnabled() bool   { return len(c.KafkaBrokers) > 0 }
func (c *Config) BlueskyEnabled() bool { return c.BlueskyDID != "" && c.BlueskyAccessToken != "" }
