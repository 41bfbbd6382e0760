// Package main is the entry point for the circles server.
//
// main only reads configuration, picks the notification senders and starts
// the server; everything else lives under internal/.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/circles/internal/bluesky"
	"github.com/sakif/circles/internal/config"
	"github.com/sakif/circles/internal/model"
	"github.com/sakif/circles/internal/notify"
	"github.com/sakif/circles/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// modernc sqlite will not create missing parent directories.
	dbDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", dbDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	router := notify.NewRouter(notify.NewLogSender(logger), logger)

	if cfg.SMTPEnabled() {
		router.Route(model.ChannelEmail, notify.NewEmailSender(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}))
	} else {
		logger.Warn("SMTP_HOST not set, invitation emails will only be logged")
	}

	if cfg.BlueskyEnabled() {
		client, err := bluesky.NewClient(cfg.BlueskyServiceURL, cfg.BlueskyDID, cfg.BlueskyAccessToken)
		if err != nil {
			logger.Error("creating bluesky client", slog.String("error", err.Error()))
			os.Exit(1)
		}
		router.Route(model.ChannelBluesky, notify.NewBlueskySender(client, logger))
	}

	if cfg.KafkaEnabled() {
		kafka := notify.NewKafkaSender(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafka.Close()
		router.Mirror(kafka)
	}

	srv, err := server.New(cfg, router, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
