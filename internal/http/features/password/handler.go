// Package password exposes the forgot-password flow: requesting a reset link,
// validating it, and submitting a new password. User lookup and the actual
// password change stay behind caller-supplied interfaces.
package password

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/veritoken/veritoken/internal/httputil"
	"github.com/veritoken/veritoken/pkg/domain"
	"github.com/veritoken/veritoken/pkg/verify"
)

// UserFinder resolves users from the surrounding application.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

// PasswordResetter applies a new password to a user account.
type PasswordResetter interface {
	ResetPassword(ctx context.Context, userID, newPassword string) error
}

// Config holds the collaborators and settings of the password handler.
type Config struct {
	Logger       *slog.Logger
	Tokens       *verify.TokenVerificator
	Notifier     verify.Notifier
	Users        UserFinder
	Resetter     PasswordResetter
	AppBaseURL   string
	ResetTTL     time.Duration
	ReissueAfter time.Duration
}

// Handler handles forgot-password endpoints.
type Handler struct {
	cfg Config
}

// NewHandler creates a password handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{cfg: cfg}
}

// ForgotRequest asks for a reset link to be mailed.
type ForgotRequest struct {
	Email string `json:"email"`
}

// ResetRequest submits a new password for the account the token belongs to.
type ResetRequest struct {
	Token    string `json:"token"`
	User     string `json:"user"`
	Password string `json:"password"`
}

// Forgot handles a password reset request.
// POST /v1/password/forgot
//
// Unknown emails get the same response as known ones so the endpoint cannot
// be used to probe for accounts.
func (h *Handler) Forgot(w http.ResponseWriter, r *http.Request) {
	var req ForgotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		httputil.Error(w, http.StatusBadRequest, "email is required")
		return
	}

	user, err := h.cfg.Users.FindByEmail(r.Context(), req.Email)
	if err != nil {
		h.cfg.Logger.Error("failed to look up user", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "reset request failed")
		return
	}
	if user == nil {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	existing, err := h.cfg.Tokens.FindToken(r.Context(), domain.TokenTypePasswordReset, user.ID)
	if err != nil {
		h.cfg.Logger.Error("failed to check existing reset token", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "reset request failed")
		return
	}
	if existing != nil {
		if remaining, ok := h.cfg.Tokens.TokenIssuedLessThan(*existing, h.cfg.ReissueAfter); ok {
			httputil.JSON(w, http.StatusTooManyRequests, map[string]any{
				"error":    "a reset link was sent recently",
				"retry_in": int(remaining.Seconds()),
			})
			return
		}
	}

	metadata := map[string]string{
		"user":       req.Email,
		"ip":         r.RemoteAddr,
		"user_agent": r.UserAgent(),
	}
	token, err := h.cfg.Tokens.CreateToken(r.Context(), domain.TokenTypePasswordReset, user.ID, metadata, h.cfg.ResetTTL)
	if err != nil {
		h.cfg.Logger.Error("failed to create reset token", "error", err, "user_id", user.ID)
		httputil.Error(w, http.StatusInternalServerError, "reset request failed")
		return
	}

	resetURL := fmt.Sprintf("%s/v1/password/reset?token=%s", h.cfg.AppBaseURL, url.QueryEscape(token.ID))
	err = h.cfg.Notifier.Send(r.Context(), verify.Notification{
		Token:    token,
		User:     *user,
		URL:      resetURL,
		Channels: []string{domain.ChannelEmail},
	})
	if err != nil {
		h.cfg.Logger.Error("failed to send reset notification", "error", err, "user_id", user.ID)
		httputil.Error(w, http.StatusInternalServerError, "reset request failed")
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Validate checks a reset link before the reset form is shown.
// GET /v1/password/reset?token=...
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if _, err := h.cfg.Tokens.VerifyToken(r.Context(), token, domain.TokenTypePasswordReset); err != nil {
		var verr *domain.VerificationError
		if errors.As(err, &verr) {
			httputil.Error(w, http.StatusUnprocessableEntity, "the token has been expired or is invalid")
			return
		}
		h.cfg.Logger.Error("failed to verify reset token", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "reset failed")
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Reset verifies the token and applies the new password.
// POST /v1/password/reset
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" || req.User == "" || len(req.Password) < 8 {
		httputil.Error(w, http.StatusBadRequest, "token, user and a password of at least 8 characters are required")
		return
	}

	token, err := h.cfg.Tokens.VerifyToken(r.Context(), req.Token, domain.TokenTypePasswordReset)
	if err != nil {
		var verr *domain.VerificationError
		if errors.As(err, &verr) {
			httputil.Error(w, http.StatusUnprocessableEntity, "the token has been expired or is invalid")
			return
		}
		h.cfg.Logger.Error("failed to verify reset token", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "reset failed")
		return
	}

	// The reset form must echo back the identity the link was requested
	// for; a token replayed against another account is rejected.
	if token.Metadata["user"] == "" || token.Metadata["user"] != req.User {
		httputil.Error(w, http.StatusUnprocessableEntity, "invalid token user")
		return
	}

	user, err := h.cfg.Users.FindByID(r.Context(), token.UserID)
	if err != nil {
		h.cfg.Logger.Error("failed to look up user", "error", err, "user_id", token.UserID)
		httputil.Error(w, http.StatusInternalServerError, "reset failed")
		return
	}
	if user == nil {
		httputil.Error(w, http.StatusUnprocessableEntity, "the token has been expired or is invalid")
		return
	}

	if err := h.cfg.Resetter.ResetPassword(r.Context(), user.ID, req.Password); err != nil {
		h.cfg.Logger.Error("failed to reset password", "error", err, "user_id", user.ID)
		httputil.Error(w, http.StatusInternalServerError, "reset failed")
		return
	}

	if err := h.cfg.Tokens.DeleteToken(r.Context(), req.Token, domain.TokenTypePasswordReset); err != nil {
		h.cfg.Logger.Error("failed to delete used reset token", "error", err, "user_id", user.ID)
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}
