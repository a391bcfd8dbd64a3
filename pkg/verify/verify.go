// Package verify implements the verification-token engine: issuance,
// storage-backed lookup, expiry enforcement, constant-time verification and
// reissue throttling for long URL-safe tokens and short numeric codes.
package verify

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/veritoken/veritoken/pkg/domain"
)

// TokenStore is the persistent collection both verificators operate on.
// Implementations return domain.ErrTokenNotFound from the find methods when no
// record matches; all other errors propagate unmodified.
type TokenStore interface {
	// Create persists a new token record.
	Create(ctx context.Context, t *domain.Token) error
	// FindByID returns the record with the given persisted id and type.
	FindByID(ctx context.Context, id, typ string) (*domain.Token, error)
	// FindByUser returns the record for (type, user) regardless of expiry.
	FindByUser(ctx context.Context, typ, userID string) (*domain.Token, error)
	// FindLive returns the record for (type, user) whose expiry is at or
	// after now.
	FindLive(ctx context.Context, typ, userID string, now time.Time) (*domain.Token, error)
	// DeleteByID deletes the record with the given persisted id and type.
	DeleteByID(ctx context.Context, id, typ string) error
	// DeleteByUser deletes all records for (type, user).
	DeleteByUser(ctx context.Context, typ, userID string) error
	// DeleteExpired deletes all records, across all types, whose expiry is
	// strictly before now. Returns the number of deleted records.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	// CountByUser counts records for (type, user).
	CountByUser(ctx context.Context, typ, userID string) (int64, error)
}

// Notification carries a freshly issued token to its owner. Token holds the
// public credential (plaintext code, or record-id:secret string) and the
// expiry, so messages can state how long the credential stays valid. URL is
// set for link-based flows such as password reset. An empty Channels slice
// means all channels the user can receive.
type Notification struct {
	Token    domain.Token
	User     domain.User
	URL      string
	Channels []string
}

// Notifier delivers notifications. Delivery transports and their failure
// handling live outside this package.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// issuedLessThan returns the time remaining until issuedAt+within if that
// instant is still ahead of the clock. Callers use it to throttle reissuing.
func issuedLessThan(clock domain.Clock, issuedAt time.Time, within time.Duration) (time.Duration, bool) {
	availableAt := issuedAt.Add(within)
	now := clock.Now()
	if availableAt.After(now) {
		return availableAt.Sub(now), true
	}
	return 0, false
}

// randomHex returns n hex characters from crypto/rand.
func randomHex(n int) (string, error) {
	b := make([]byte, (n+1)/2)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b)[:n], nil
}

// hashEquals compares two hash strings in constant time.
func hashEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
