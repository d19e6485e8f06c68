package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/utafrali/tenantgate/internal/app"
	"github.com/utafrali/tenantgate/internal/config"
	"github.com/utafrali/tenantgate/internal/vault"
	"github.com/utafrali/tenantgate/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New(config.ServiceName, cfg.LogLevel)
	log.Info("starting tenant gateway",
		slog.String("environment", cfg.Environment),
		slog.Int("http_port", cfg.HTTPPort),
	)

	application, err := app.NewApp(cfg, log)
	if err != nil {
		var cfgErr *vault.ConfigError
		if errors.As(err, &cfgErr) {
			log.Error("invalid token encryption key", slog.String("error", err.Error()))
		} else {
			log.Error("failed to initialize application", slog.String("error", err.Error()))
		}
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := application.Run(ctx); err != nil {
		log.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("tenant gateway stopped")
}
