package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/veritoken/veritoken/internal/config"
	"github.com/veritoken/veritoken/internal/http/features/password"
	"github.com/veritoken/veritoken/internal/http/features/twofactor"
	"github.com/veritoken/veritoken/internal/http/features/verification"
	"github.com/veritoken/veritoken/internal/http/middleware"
	"github.com/veritoken/veritoken/internal/httputil"
	"github.com/veritoken/veritoken/pkg/verify"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger    *slog.Logger
	Tokens    *verify.TokenVerificator
	Codes     *verify.PinCodeVerificator
	Notifier  verify.Notifier
	JWTSecret []byte

	// Users and Resetter come from the surrounding application. The
	// password-reset routes mount only when both are provided.
	Users    password.UserFinder
	Resetter password.PasswordResetter

	AppBaseURL       string
	PasswordResetTTL time.Duration
	TwoFactorTTL     time.Duration
	ChannelVerifyTTL time.Duration
	ReissueAfter     time.Duration

	RateLimit config.RateLimitConfig
}

// NewRouter creates the HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	rateLimiters := middleware.CreateRateLimiters(cfg.RateLimit, cfg.Logger)
	auth := middleware.Auth(cfg.JWTSecret)

	if cfg.Users != nil && cfg.Resetter != nil {
		passwordHandler := password.NewHandler(password.Config{
			Logger:       cfg.Logger,
			Tokens:       cfg.Tokens,
			Notifier:     cfg.Notifier,
			Users:        cfg.Users,
			Resetter:     cfg.Resetter,
			AppBaseURL:   cfg.AppBaseURL,
			ResetTTL:     cfg.PasswordResetTTL,
			ReissueAfter: cfg.ReissueAfter,
		})
		r.Group(func(r chi.Router) {
			r.Use(rateLimiters["send"])
			r.Post("/v1/password/forgot", passwordHandler.Forgot)
		})
		r.Group(func(r chi.Router) {
			r.Use(rateLimiters["verify"])
			r.Get("/v1/password/reset", passwordHandler.Validate)
			r.Post("/v1/password/reset", passwordHandler.Reset)
		})
	} else {
		cfg.Logger.Info("password reset routes disabled: no user directory configured")
	}

	verificationHandler := verification.NewHandler(cfg.Logger, cfg.Codes, cfg.ChannelVerifyTTL, cfg.ReissueAfter)
	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(rateLimiters["send"])
		r.Post("/v1/verification/{channel}/send", verificationHandler.Send)
	})
	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(rateLimiters["verify"])
		r.Post("/v1/verification/{channel}/verify", verificationHandler.Verify)
	})

	twofactorHandler := twofactor.NewHandler(cfg.Logger, cfg.Codes, cfg.TwoFactorTTL, cfg.ReissueAfter)
	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(rateLimiters["send"])
		r.Post("/v1/twofactor/send", twofactorHandler.Send)
		r.Post("/v1/twofactor/resend", twofactorHandler.Resend)
	})
	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(rateLimiters["verify"])
		r.Post("/v1/twofactor/verify", twofactorHandler.Verify)
	})

	return r
}
