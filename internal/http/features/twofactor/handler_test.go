package twofactor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/veritoken/veritoken/internal/http/middleware"
	"github.com/veritoken/veritoken/internal/repository"
	"github.com/veritoken/veritoken/pkg/verify"
)

var testSecret = []byte("test-jwt-secret")

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type captureNotifier struct {
	sent []verify.Notification
}

func (n *captureNotifier) Send(ctx context.Context, notification verify.Notification) error {
	n.sent = append(n.sent, notification)
	return nil
}

type fixture struct {
	handler  http.Handler
	notifier *captureNotifier
	clock    *fakeClock
}

func newFixture(t *testing.T, route string, method func(h *Handler) http.HandlerFunc) *fixture {
	t.Helper()

	hashKey, err := verify.NewHashKey("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("NewHashKey() error = %v", err)
	}

	clock := &fakeClock{now: time.Now()}
	notifier := &captureNotifier{}
	codes := verify.NewPinCodeVerificator(hashKey, repository.NewMemoryTokensRepository(), notifier, clock)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, codes, 5*time.Minute, time.Minute)

	mux := http.NewServeMux()
	mux.Handle(route, middleware.Auth(testSecret)(method(h)))

	return &fixture{handler: mux, notifier: notifier, clock: clock}
}

func authHeader(t *testing.T) string {
	t.Helper()
	claims := middleware.AccessTokenClaims{
		Email: "tom@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return "Bearer " + signed
}

func (f *fixture) do(t *testing.T, method, path, body, auth string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestSend(t *testing.T) {
	f := newFixture(t, "/v1/twofactor/send", func(h *Handler) http.HandlerFunc { return h.Send })
	auth := authHeader(t)

	rec := f.do(t, http.MethodPost, "/v1/twofactor/send", "", auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body)
	}

	if len(f.notifier.sent) != 1 {
		t.Fatalf("notifications sent = %d, want 1", len(f.notifier.sent))
	}
	code := f.notifier.sent[0].Token.ID
	if len(code) != 6 {
		t.Errorf("dispatched code = %q, want 6 digits", code)
	}

	// An unthrottled second send supersedes the first.
	rec = f.do(t, http.MethodPost, "/v1/twofactor/send", `{"channels":["email"]}`, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("second send status = %d, want 200", rec.Code)
	}
	if len(f.notifier.sent) != 2 {
		t.Fatalf("notifications sent = %d, want 2", len(f.notifier.sent))
	}
	if got := f.notifier.sent[1].Channels; len(got) != 1 || got[0] != "email" {
		t.Errorf("channels = %v, want [email]", got)
	}
}

func TestSendUnauthenticated(t *testing.T) {
	f := newFixture(t, "/v1/twofactor/send", func(h *Handler) http.HandlerFunc { return h.Send })

	rec := f.do(t, http.MethodPost, "/v1/twofactor/send", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestResendThrottled(t *testing.T) {
	f := newFixture(t, "/v1/twofactor/resend", func(h *Handler) http.HandlerFunc { return h.Resend })
	auth := authHeader(t)

	rec := f.do(t, http.MethodPost, "/v1/twofactor/resend", "", auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("first resend status = %d, want 200", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/v1/twofactor/resend", "", auth)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second resend status = %d, want 429", rec.Code)
	}
	var body struct {
		RetryIn int `json:"retry_in"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response body %s: %v", rec.Body, err)
	}
	if body.RetryIn <= 0 || body.RetryIn > 60 {
		t.Errorf("retry_in = %d, want within the 60s cool-down", body.RetryIn)
	}

	// Past the cool-down, resending works again.
	f.clock.now = f.clock.now.Add(61 * time.Second)
	rec = f.do(t, http.MethodPost, "/v1/twofactor/resend", "", auth)
	if rec.Code != http.StatusOK {
		t.Errorf("resend after cool-down status = %d, want 200", rec.Code)
	}
}

func TestVerify(t *testing.T) {
	sendFixture := func(t *testing.T) (*fixture, string) {
		t.Helper()
		f := newFixture(t, "/v1/twofactor/", func(h *Handler) http.HandlerFunc {
			mux := http.NewServeMux()
			mux.HandleFunc("/v1/twofactor/send", h.Send)
			mux.HandleFunc("/v1/twofactor/verify", h.Verify)
			return mux.ServeHTTP
		})
		auth := authHeader(t)
		if rec := f.do(t, http.MethodPost, "/v1/twofactor/send", "", auth); rec.Code != http.StatusOK {
			t.Fatalf("send status = %d, want 200", rec.Code)
		}
		return f, auth
	}

	t.Run("correct code is consumed", func(t *testing.T) {
		f, auth := sendFixture(t)
		code := f.notifier.sent[0].Token.ID

		rec := f.do(t, http.MethodPost, "/v1/twofactor/verify", `{"code":"`+code+`"}`, auth)
		if rec.Code != http.StatusOK {
			t.Fatalf("verify status = %d, want 200, body %s", rec.Code, rec.Body)
		}

		// The code is single use.
		rec = f.do(t, http.MethodPost, "/v1/twofactor/verify", `{"code":"`+code+`"}`, auth)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("reused code status = %d, want 422", rec.Code)
		}
	})

	t.Run("wrong code", func(t *testing.T) {
		f, auth := sendFixture(t)
		code := f.notifier.sent[0].Token.ID
		wrong := "000000"
		if wrong == code {
			wrong = "000001"
		}

		rec := f.do(t, http.MethodPost, "/v1/twofactor/verify", `{"code":"`+wrong+`"}`, auth)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", rec.Code)
		}
	})

	t.Run("expired code", func(t *testing.T) {
		f, auth := sendFixture(t)
		code := f.notifier.sent[0].Token.ID
		f.clock.now = f.clock.now.Add(5*time.Minute + time.Second)

		rec := f.do(t, http.MethodPost, "/v1/twofactor/verify", `{"code":"`+code+`"}`, auth)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", rec.Code)
		}
	})

	t.Run("missing code", func(t *testing.T) {
		f, auth := sendFixture(t)

		rec := f.do(t, http.MethodPost, "/v1/twofactor/verify", `{}`, auth)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}
