// Package twofactor exposes two-factor authentication codes: sending,
// throttled resending, and verifying.
package twofactor

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/veritoken/veritoken/internal/http/middleware"
	"github.com/veritoken/veritoken/internal/httputil"
	"github.com/veritoken/veritoken/pkg/domain"
	"github.com/veritoken/veritoken/pkg/verify"
)

// Handler handles two-factor code endpoints. All routes require an
// authenticated user.
type Handler struct {
	logger       *slog.Logger
	codes        *verify.PinCodeVerificator
	codeTTL      time.Duration
	reissueAfter time.Duration
}

// NewHandler creates a two-factor handler.
func NewHandler(logger *slog.Logger, codes *verify.PinCodeVerificator, codeTTL, reissueAfter time.Duration) *Handler {
	return &Handler{
		logger:       logger,
		codes:        codes,
		codeTTL:      codeTTL,
		reissueAfter: reissueAfter,
	}
}

// SendRequest optionally narrows the delivery channels.
type SendRequest struct {
	Channels []string `json:"channels,omitempty"`
}

// Send issues and dispatches a fresh two-factor code, superseding any
// previous one.
// POST /v1/twofactor/send
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, false)
}

// Resend re-issues the code, but only after the cool-down has passed.
// POST /v1/twofactor/resend
func (h *Handler) Resend(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, true)
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request, throttled bool) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "missing authorization")
		return
	}

	var req SendRequest
	if r.Body != nil {
		// The body is optional; an empty channel list means all channels.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if throttled {
		existing, err := h.codes.FindCode(r.Context(), domain.TokenTypeTwoFactor, user)
		if err != nil {
			h.logger.Error("failed to check existing code", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "failed to send code")
			return
		}
		if existing != nil {
			if remaining, ok := h.codes.CodeIssuedLessThan(*existing, h.reissueAfter); ok {
				httputil.JSON(w, http.StatusTooManyRequests, map[string]any{
					"error":    "a code was sent recently",
					"retry_in": int(remaining.Seconds()),
				})
				return
			}
		}
	}

	_, err := h.codes.SendCode(r.Context(), domain.TokenTypeTwoFactor, user, h.codeTTL, "", req.Channels)
	if err != nil {
		h.logger.Error("failed to send twofactor code", "error", err, "user_id", user.ID)
		httputil.Error(w, http.StatusInternalServerError, "failed to send code")
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"status": "code sent"})
}

// VerifyRequest carries the submitted code.
type VerifyRequest struct {
	Code string `json:"code"`
}

// Verify checks a submitted two-factor code and, on success, consumes it.
// POST /v1/twofactor/verify
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "missing authorization")
		return
	}

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		httputil.Error(w, http.StatusBadRequest, "code is required")
		return
	}

	if _, err := h.codes.VerifyCode(r.Context(), req.Code, domain.TokenTypeTwoFactor, user); err != nil {
		var verr *domain.VerificationError
		if errors.As(err, &verr) {
			httputil.Error(w, http.StatusUnprocessableEntity, "the code has been expired or is invalid")
			return
		}
		h.logger.Error("failed to verify twofactor code", "error", err, "user_id", user.ID)
		httputil.Error(w, http.StatusInternalServerError, "verification failed")
		return
	}

	if err := h.codes.DeleteCode(r.Context(), domain.TokenTypeTwoFactor, user); err != nil {
		h.logger.Error("failed to delete used code", "error", err, "user_id", user.ID)
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"status": "verified"})
}
