// Command clear-tokens deletes all verificator tokens that have expired, such
// as password reset tokens and channel verification codes. Run it from cron
// or a scheduler.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/veritoken/veritoken/internal/config"
	"github.com/veritoken/veritoken/internal/repository"
	"github.com/veritoken/veritoken/pkg/domain"
	"github.com/veritoken/veritoken/pkg/verify"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if cfg.DBDriver == "memory" {
		logger.Info("in-memory store holds no persistent tokens, nothing to clear")
		return
	}

	db, err := repository.NewDB(repository.Config{
		Driver:   cfg.DBDriver,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
		Path:     cfg.SQLitePath,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := repository.NewTokensRepository(db, cfg.DBDriver)
	tokens := verify.NewTokenVerificator(store, domain.SystemClock())

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deleted, err := tokens.DeleteExpiredTokens(ctx)
	if err != nil {
		logger.Error("failed to clear expired tokens", "error", err)
		os.Exit(1)
	}

	logger.Info("expired verificator tokens cleared", "deleted", deleted)
}
