package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/veritoken/veritoken/internal/config"
	internalhttp "github.com/veritoken/veritoken/internal/http"
	"github.com/veritoken/veritoken/internal/notification"
	"github.com/veritoken/veritoken/internal/repository"
	"github.com/veritoken/veritoken/pkg/domain"
	"github.com/veritoken/veritoken/pkg/verify"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	hashKey, err := verify.NewHashKey(cfg.HashKey)
	if err != nil {
		logger.Error("invalid hash key", "error", err)
		os.Exit(1)
	}

	store, closeDB, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("failed to open token store", "error", err)
		os.Exit(1)
	}
	defer closeDB()

	notifier := buildNotifier(cfg, logger)
	clock := domain.SystemClock()

	tokens := verify.NewTokenVerificator(store, clock)
	codes := verify.NewPinCodeVerificator(hashKey, store, notifier, clock)

	router := internalhttp.NewRouter(internalhttp.RouterConfig{
		Logger:           logger,
		Tokens:           tokens,
		Codes:            codes,
		Notifier:         notifier,
		JWTSecret:        []byte(cfg.JWTSecret),
		AppBaseURL:       cfg.AppBaseURL,
		PasswordResetTTL: cfg.PasswordResetTTL,
		TwoFactorTTL:     cfg.TwoFactorTTL,
		ChannelVerifyTTL: cfg.ChannelVerifyTTL,
		ReissueAfter:     cfg.ReissueAfter,
		RateLimit:        cfg.RateLimit,
	})

	addr := fmt.Sprintf("%s:%d", cfg.ServerAddr, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

func openStore(cfg *config.Config, logger *slog.Logger) (verify.TokenStore, func(), error) {
	if cfg.DBDriver == "memory" {
		logger.Warn("using in-memory token store, records do not survive a restart")
		return repository.NewMemoryTokensRepository(), func() {}, nil
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
		return nil, nil, err
	}
	logger.Info("connected to database", "driver", cfg.DBDriver)
	return repository.NewTokensRepository(db, cfg.DBDriver), func() { db.Close() }, nil
}

func buildNotifier(cfg *config.Config, logger *slog.Logger) verify.Notifier {
	var email, sms notification.ChannelSender
	if cfg.HasSMTP() {
		email = notification.NewEmailSender(notification.EmailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		})
		logger.Info("email channel enabled")
	}
	if cfg.HasSMS() {
		sms = notification.NewSMSSender(notification.SMSConfig{
			GatewayURL: cfg.SMSGatewayURL,
			Token:      cfg.SMSGatewayToken,
		})
		logger.Info("sms channel enabled")
	}

	if email == nil && sms == nil {
		logger.Warn("no notification channel configured, codes are logged instead")
		return notification.NewLogNotifier(logger)
	}
	return notification.NewDispatcher(logger, email, sms)
}
