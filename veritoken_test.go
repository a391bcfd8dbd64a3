package veritoken

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/veritoken/veritoken/pkg/domain"
	"github.com/veritoken/veritoken/pkg/verify"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type dropNotifier struct{}

func (dropNotifier) Send(ctx context.Context, n verify.Notification) error { return nil }

func testConfig() Config {
	return Config{
		HashKey:   "0123456789abcdef0123456789abcdef",
		JWTSecret: "test-jwt-secret",
		Notifier:  dropNotifier{},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(cfg *Config) {}},
		{name: "short hash key", mutate: func(cfg *Config) { cfg.HashKey = "too-short" }, wantErr: true},
		{name: "missing jwt secret", mutate: func(cfg *Config) { cfg.JWTSecret = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := New(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRouterHealth(t *testing.T) {
	svc, err := New(testConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
}

func TestRouterRequiresAuth(t *testing.T) {
	svc, err := New(testConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for _, path := range []string{
		"/v1/twofactor/send",
		"/v1/twofactor/verify",
		"/v1/verification/email/send",
		"/v1/verification/email/verify",
	} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		svc.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s status = %d, want 401", path, rec.Code)
		}
	}
}

func TestPasswordRoutesDisabledWithoutDirectory(t *testing.T) {
	svc, err := New(testConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/password/forgot", nil)
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want the route unmounted", rec.Code)
	}
}

func TestClearExpired(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	cfg := testConfig()
	cfg.Clock = clock

	svc, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	if _, err := svc.Tokens().CreateToken(ctx, domain.TokenTypePasswordReset, "user-1", nil, time.Minute); err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}
	user := domain.User{ID: "user-2", Email: "tom@example.com"}
	if _, err := svc.Codes().SendCode(ctx, domain.TokenTypeTwoFactor, user, time.Minute, "", nil); err != nil {
		t.Fatalf("SendCode() error = %v", err)
	}
	if _, err := svc.Tokens().CreateToken(ctx, domain.TokenTypeEmail, "user-3", nil, time.Hour); err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}

	clock.now = clock.now.Add(2 * time.Minute)

	deleted, err := svc.ClearExpired(ctx)
	if err != nil {
		t.Fatalf("ClearExpired() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
}
