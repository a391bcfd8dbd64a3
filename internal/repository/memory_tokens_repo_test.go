package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/veritoken/veritoken/pkg/domain"
)

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func seedToken(t *testing.T, r *MemoryTokensRepository, id, typ, userID string, issued, expires time.Time) {
	t.Helper()
	token := domain.Token{
		ID:        id,
		Type:      typ,
		UserID:    userID,
		IssuedAt:  issued,
		ExpiresAt: expires,
	}
	if err := r.Create(context.Background(), &token); err != nil {
		t.Fatalf("Create(%s) error = %v", id, err)
	}
}

func TestMemoryFindByID(t *testing.T) {
	r := NewMemoryTokensRepository()
	ctx := context.Background()
	seedToken(t, r, "tok-1", "email", "user-1", baseTime, baseTime.Add(time.Hour))

	found, err := r.FindByID(ctx, "tok-1", "email")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if found.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", found.UserID)
	}

	// Same id under a different type is a different record.
	if _, err := r.FindByID(ctx, "tok-1", "smartphone"); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Errorf("FindByID(wrong type) error = %v, want ErrTokenNotFound", err)
	}
	if _, err := r.FindByID(ctx, "missing", "email"); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Errorf("FindByID(missing) error = %v, want ErrTokenNotFound", err)
	}
}

func TestMemoryFindByUserReturnsNewest(t *testing.T) {
	r := NewMemoryTokensRepository()
	ctx := context.Background()
	seedToken(t, r, "older", "email", "user-1", baseTime, baseTime.Add(time.Hour))
	seedToken(t, r, "newer", "email", "user-1", baseTime.Add(time.Minute), baseTime.Add(time.Hour))

	found, err := r.FindByUser(ctx, "email", "user-1")
	if err != nil {
		t.Fatalf("FindByUser() error = %v", err)
	}
	if found.ID != "newer" {
		t.Errorf("FindByUser() = %q, want the newest record", found.ID)
	}
}

func TestMemoryFindLive(t *testing.T) {
	r := NewMemoryTokensRepository()
	ctx := context.Background()
	seedToken(t, r, "expired", "email", "user-1", baseTime.Add(-time.Hour), baseTime.Add(-time.Minute))
	seedToken(t, r, "edge", "email", "user-2", baseTime.Add(-time.Hour), baseTime)
	seedToken(t, r, "live", "email", "user-3", baseTime, baseTime.Add(time.Hour))

	if _, err := r.FindLive(ctx, "email", "user-1", baseTime); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Errorf("FindLive(expired) error = %v, want ErrTokenNotFound", err)
	}

	// A token expiring exactly now is still live.
	found, err := r.FindLive(ctx, "email", "user-2", baseTime)
	if err != nil {
		t.Fatalf("FindLive(edge) error = %v", err)
	}
	if found.ID != "edge" {
		t.Errorf("FindLive(edge) = %q, want edge", found.ID)
	}

	if _, err := r.FindLive(ctx, "email", "user-3", baseTime); err != nil {
		t.Errorf("FindLive(live) error = %v", err)
	}
}

func TestMemoryDeleteByUser(t *testing.T) {
	r := NewMemoryTokensRepository()
	ctx := context.Background()
	seedToken(t, r, "a", "email", "user-1", baseTime, baseTime.Add(time.Hour))
	seedToken(t, r, "b", "email", "user-1", baseTime, baseTime.Add(time.Hour))
	seedToken(t, r, "c", "smartphone", "user-1", baseTime, baseTime.Add(time.Hour))
	seedToken(t, r, "d", "email", "user-2", baseTime, baseTime.Add(time.Hour))

	if err := r.DeleteByUser(ctx, "email", "user-1"); err != nil {
		t.Fatalf("DeleteByUser() error = %v", err)
	}

	for _, tc := range []struct {
		typ, user string
		want      int64
	}{
		{"email", "user-1", 0},
		{"smartphone", "user-1", 1},
		{"email", "user-2", 1},
	} {
		count, err := r.CountByUser(ctx, tc.typ, tc.user)
		if err != nil {
			t.Fatalf("CountByUser() error = %v", err)
		}
		if count != tc.want {
			t.Errorf("CountByUser(%s, %s) = %d, want %d", tc.typ, tc.user, count, tc.want)
		}
	}
}

func TestMemoryDeleteByID(t *testing.T) {
	r := NewMemoryTokensRepository()
	ctx := context.Background()
	seedToken(t, r, "a", "email", "user-1", baseTime, baseTime.Add(time.Hour))
	seedToken(t, r, "b", "email", "user-1", baseTime, baseTime.Add(time.Hour))

	if err := r.DeleteByID(ctx, "a", "email"); err != nil {
		t.Fatalf("DeleteByID() error = %v", err)
	}
	if _, err := r.FindByID(ctx, "a", "email"); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Errorf("FindByID(deleted) error = %v, want ErrTokenNotFound", err)
	}
	if _, err := r.FindByID(ctx, "b", "email"); err != nil {
		t.Errorf("FindByID(kept) error = %v", err)
	}
}

func TestMemoryDeleteExpired(t *testing.T) {
	r := NewMemoryTokensRepository()
	ctx := context.Background()
	seedToken(t, r, "a", "email", "user-1", baseTime.Add(-2*time.Hour), baseTime.Add(-time.Hour))
	seedToken(t, r, "b", "twofactor", "user-2", baseTime.Add(-2*time.Hour), baseTime.Add(-time.Minute))
	seedToken(t, r, "c", "email", "user-3", baseTime.Add(-2*time.Hour), baseTime)
	seedToken(t, r, "d", "email", "user-4", baseTime, baseTime.Add(time.Hour))

	deleted, err := r.DeleteExpired(ctx, baseTime)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2 (expiry exactly now is kept)", deleted)
	}

	if _, err := r.FindByID(ctx, "c", "email"); err != nil {
		t.Errorf("FindByID(edge) error = %v, want kept", err)
	}
	if _, err := r.FindByID(ctx, "d", "email"); err != nil {
		t.Errorf("FindByID(live) error = %v, want kept", err)
	}
}

func TestMemoryCloneIsolation(t *testing.T) {
	r := NewMemoryTokensRepository()
	ctx := context.Background()

	token := domain.Token{
		ID:        "tok-1",
		Type:      "password:reset",
		UserID:    "user-1",
		Metadata:  map[string]string{"user": "tom@example.com"},
		IssuedAt:  baseTime,
		ExpiresAt: baseTime.Add(time.Hour),
	}
	if err := r.Create(ctx, &token); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	token.Metadata["user"] = "mutated"

	found, err := r.FindByID(ctx, "tok-1", "password:reset")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if found.Metadata["user"] != "tom@example.com" {
		t.Errorf("stored metadata = %q, caller mutation leaked into the store", found.Metadata["user"])
	}

	found.Metadata["user"] = "mutated again"
	again, err := r.FindByID(ctx, "tok-1", "password:reset")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if again.Metadata["user"] != "tom@example.com" {
		t.Errorf("stored metadata = %q, result mutation leaked into the store", again.Metadata["user"])
	}
}
