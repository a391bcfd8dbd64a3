// Package verification exposes channel verification: sending a code to an
// address (email or smartphone) and confirming ownership by echoing it back.
package verification

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/veritoken/veritoken/internal/http/middleware"
	"github.com/veritoken/veritoken/internal/httputil"
	"github.com/veritoken/veritoken/pkg/domain"
	"github.com/veritoken/veritoken/pkg/verify"
)

// Handler handles channel verification endpoints. All routes require an
// authenticated user.
type Handler struct {
	logger       *slog.Logger
	codes        *verify.PinCodeVerificator
	codeTTL      time.Duration
	reissueAfter time.Duration
}

// NewHandler creates a verification handler.
func NewHandler(logger *slog.Logger, codes *verify.PinCodeVerificator, codeTTL, reissueAfter time.Duration) *Handler {
	return &Handler{
		logger:       logger,
		codes:        codes,
		codeTTL:      codeTTL,
		reissueAfter: reissueAfter,
	}
}

// channelType maps a URL channel segment to the token type and notification
// channel used for it.
func channelType(channel string) (typ, notifyChannel string, ok bool) {
	switch channel {
	case "email":
		return domain.TokenTypeEmail, domain.ChannelEmail, true
	case "smartphone":
		return domain.TokenTypeSmartphone, domain.ChannelSMS, true
	default:
		return "", "", false
	}
}

// Send issues and dispatches a verification code for the channel.
// POST /v1/verification/{channel}/send
//
// A resend inside the cool-down window is rejected with the seconds left.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	typ, notifyChannel, ok := channelType(chi.URLParam(r, "channel"))
	if !ok {
		httputil.Error(w, http.StatusNotFound, "unknown channel")
		return
	}

	user, ok := middleware.GetUser(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "missing authorization")
		return
	}
	if !user.CanReceive(notifyChannel) {
		httputil.Error(w, http.StatusUnprocessableEntity, "no address for this channel")
		return
	}

	existing, err := h.codes.FindCode(r.Context(), typ, user)
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

	_, err = h.codes.SendCode(r.Context(), typ, user, h.codeTTL, "", []string{notifyChannel})
	if err != nil {
		h.logger.Error("failed to send verification code", "error", err, "type", typ, "user_id", user.ID)
		httputil.Error(w, http.StatusInternalServerError, "failed to send code")
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"status": "code sent"})
}

// VerifyRequest carries the submitted code.
type VerifyRequest struct {
	Code string `json:"code"`
}

// Verify checks a submitted verification code and, on success, consumes it.
// POST /v1/verification/{channel}/verify
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	typ, _, ok := channelType(channel)
	if !ok {
		httputil.Error(w, http.StatusNotFound, "unknown channel")
		return
	}

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

	if _, err := h.codes.VerifyCode(r.Context(), req.Code, typ, user); err != nil {
		var verr *domain.VerificationError
		if errors.As(err, &verr) {
			httputil.Error(w, http.StatusUnprocessableEntity, "the code has been expired or is invalid")
			return
		}
		h.logger.Error("failed to verify code", "error", err, "type", typ, "user_id", user.ID)
		httputil.Error(w, http.StatusInternalServerError, "verification failed")
		return
	}

	if err := h.codes.DeleteCode(r.Context(), typ, user); err != nil {
		h.logger.Error("failed to delete used code", "error", err, "type", typ, "user_id", user.ID)
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"status": "verified", "channel": channel})
}
