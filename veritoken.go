// Package veritoken wires the verification-token engine into an embeddable
// service: verificators, storage, notification dispatch and an HTTP surface.
//
// Basic usage:
//
//	db, _ := sql.Open("postgres", "postgres://localhost/myapp?sslmode=disable")
//
//	svc, err := veritoken.New(veritoken.Config{
//	    DB:        db,
//	    DBDriver:  "postgres",
//	    HashKey:   "a-secret-of-at-least-32-characters!!",
//	    JWTSecret: "the-access-token-signing-key",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	r := chi.NewRouter()
//	r.Mount("/", svc.Router())
//	http.ListenAndServe(":8080", r)
//
// Without a DB the service keeps tokens in memory, which is only suitable for
// development and tests.
package veritoken

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/veritoken/veritoken/internal/config"
	internalhttp "github.com/veritoken/veritoken/internal/http"
	"github.com/veritoken/veritoken/internal/http/features/password"
	"github.com/veritoken/veritoken/internal/notification"
	"github.com/veritoken/veritoken/internal/repository"
	"github.com/veritoken/veritoken/pkg/domain"
	"github.com/veritoken/veritoken/pkg/verify"
)

// Config configures the embedded service. HashKey and JWTSecret are required;
// everything else has defaults.
type Config struct {
	// DB is an open database handle. Nil selects the in-memory store.
	DB       *sql.DB
	DBDriver string // "postgres" or "sqlite"; must match DB

	HashKey   string
	JWTSecret string

	// Users and Resetter enable the password-reset routes.
	Users    password.UserFinder
	Resetter password.PasswordResetter

	// Notifier overrides notification delivery. Nil selects log delivery.
	Notifier verify.Notifier

	// Clock overrides the time source. Nil selects the system clock.
	Clock domain.Clock

	Logger *slog.Logger

	AppBaseURL       string
	PasswordResetTTL time.Duration
	TwoFactorTTL     time.Duration
	ChannelVerifyTTL time.Duration
	ReissueAfter     time.Duration

	RateLimit config.RateLimitConfig
}

// Service bundles the verificators and their HTTP surface.
type Service struct {
	tokens *verify.TokenVerificator
	codes  *verify.PinCodeVerificator
	router http.Handler
}

// New creates a Service from the given configuration.
func New(cfg Config) (*Service, error) {
	hashKey, err := verify.NewHashKey(cfg.HashKey)
	if err != nil {
		return nil, err
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWTSecret is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}

	clock := cfg.Clock
	if clock == nil {
		clock = domain.SystemClock()
	}

	var store verify.TokenStore
	if cfg.DB != nil {
		store = repository.NewTokensRepository(cfg.DB, cfg.DBDriver)
	} else {
		store = repository.NewMemoryTokensRepository()
		logger.Warn("no database configured, tokens are kept in memory")
	}

	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notification.NewLogNotifier(logger)
	}

	tokens := verify.NewTokenVerificator(store, clock)
	codes := verify.NewPinCodeVerificator(hashKey, store, notifier, clock)

	router := internalhttp.NewRouter(internalhttp.RouterConfig{
		Logger:           logger,
		Tokens:           tokens,
		Codes:            codes,
		Notifier:         notifier,
		JWTSecret:        []byte(cfg.JWTSecret),
		Users:            cfg.Users,
		Resetter:         cfg.Resetter,
		AppBaseURL:       defaultString(cfg.AppBaseURL, "http://localhost:8080"),
		PasswordResetTTL: defaultDuration(cfg.PasswordResetTTL, time.Hour),
		TwoFactorTTL:     defaultDuration(cfg.TwoFactorTTL, 5*time.Minute),
		ChannelVerifyTTL: defaultDuration(cfg.ChannelVerifyTTL, 5*time.Minute),
		ReissueAfter:     defaultDuration(cfg.ReissueAfter, time.Minute),
		RateLimit:        cfg.RateLimit,
	})

	return &Service{tokens: tokens, codes: codes, router: router}, nil
}

// Router returns the HTTP surface for mounting into the host application.
func (s *Service) Router() http.Handler {
	return s.router
}

// Tokens returns the long-token verificator.
func (s *Service) Tokens() *verify.TokenVerificator {
	return s.tokens
}

// Codes returns the PIN code verificator.
func (s *Service) Codes() *verify.PinCodeVerificator {
	return s.codes
}

// ClearExpired deletes all expired tokens and codes and returns how many were
// removed. Intended for a scheduled job.
func (s *Service) ClearExpired(ctx context.Context) (int64, error) {
	tokens, err := s.tokens.DeleteExpiredTokens(ctx)
	if err != nil {
		return tokens, err
	}
	codes, err := s.codes.DeleteExpiredCodes(ctx)
	return tokens + codes, err
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func defaultDuration(v, fallback time.Duration) time.Duration {
	if v == 0 {
		return fallback
	}
	return v
}
