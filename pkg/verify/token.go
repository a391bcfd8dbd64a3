package verify

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/veritoken/veritoken/pkg/domain"
)

const (
	// Length in hex characters of both the record id and the secret half of
	// a long token.
	tokenIDLength = 32

	// How often record-id generation retries on collision before giving up.
	maxIDAttempts = 5
)

// TokenVerificator issues and verifies high-entropy two-part tokens for
// link-based flows such as password reset. The public credential is
// "recordID:secret"; only the record id and a SHA-512 hash of the secret are
// persisted.
type TokenVerificator struct {
	store TokenStore
	clock domain.Clock
}

// NewTokenVerificator creates a TokenVerificator on the given store and clock.
func NewTokenVerificator(store TokenStore, clock domain.Clock) *TokenVerificator {
	return &TokenVerificator{store: store, clock: clock}
}

// CreateToken issues a new token of the given type for the user, superseding
// any existing tokens of that (type, user) pair. The returned token's ID is
// the full public credential including the plaintext secret; that form is
// never persisted.
func (v *TokenVerificator) CreateToken(
	ctx context.Context,
	typ string,
	userID string,
	metadata map[string]string,
	expiresAfter time.Duration,
) (domain.Token, error) {
	if err := v.store.DeleteByUser(ctx, typ, userID); err != nil {
		return domain.Token{}, fmt.Errorf("failed to delete previous tokens: %w", err)
	}

	recordID, err := v.uniqueRecordID(ctx, typ)
	if err != nil {
		return domain.Token{}, err
	}

	secret, err := randomHex(tokenIDLength)
	if err != nil {
		return domain.Token{}, err
	}

	now := v.clock.Now()
	token := domain.Token{
		ID:         recordID,
		Type:       typ,
		UserID:     userID,
		SecretHash: hashSecret(secret),
		Metadata:   metadata,
		IssuedAt:   now,
		ExpiresAt:  now.Add(expiresAfter),
	}

	if err := v.store.Create(ctx, &token); err != nil {
		return domain.Token{}, fmt.Errorf("failed to store token: %w", err)
	}

	public := domain.TokenID{RecordID: recordID, Secret: secret}
	return token.WithID(public.String()), nil
}

// FindToken returns the live token for (type, user), or nil if none exists.
// It does not validate the secret; callers use it for reissue-throttle checks.
func (v *TokenVerificator) FindToken(ctx context.Context, typ, userID string) (*domain.Token, error) {
	token, err := v.store.FindLive(ctx, typ, userID, v.clock.Now())
	if errors.Is(err, domain.ErrTokenNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}

// VerifyToken checks a public credential string of the given type and returns
// the stored token with its ID restored to the supplied credential. Failures
// are *domain.VerificationError values carrying the failure kind and, where a
// record was located, the token.
func (v *TokenVerificator) VerifyToken(ctx context.Context, id, typ string) (domain.Token, error) {
	tid, err := domain.ParseTokenID(id)
	if err != nil {
		return domain.Token{}, &domain.VerificationError{Kind: domain.ErrTokenInvalid}
	}

	token, err := v.store.FindByID(ctx, tid.RecordID, typ)
	if errors.Is(err, domain.ErrTokenNotFound) {
		return domain.Token{}, &domain.VerificationError{Kind: domain.ErrTokenNotFound}
	}
	if err != nil {
		return domain.Token{}, err
	}

	if token.Expired(v.clock.Now()) {
		return domain.Token{}, &domain.VerificationError{Kind: domain.ErrTokenExpired, Token: token}
	}

	if !hashEquals(token.SecretHash, hashSecret(tid.Secret)) {
		return domain.Token{}, &domain.VerificationError{Kind: domain.ErrTokenInvalid, Token: token}
	}

	return token.WithID(id), nil
}

// DeleteToken deletes the token addressed by the public credential. A
// credential without the separator is ignored.
func (v *TokenVerificator) DeleteToken(ctx context.Context, id, typ string) error {
	tid, err := domain.ParseTokenID(id)
	if err != nil {
		return nil
	}
	return v.store.DeleteByID(ctx, tid.RecordID, typ)
}

// DeleteExpiredTokens deletes all records, across all types, whose expiry has
// passed. Returns the number of deleted records.
func (v *TokenVerificator) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	return v.store.DeleteExpired(ctx, v.clock.Now())
}

// TokenIssuedLessThan returns the time remaining until the token may be
// reissued, given the cool-down window, and whether any time remains.
func (v *TokenVerificator) TokenIssuedLessThan(token domain.Token, within time.Duration) (time.Duration, bool) {
	return issuedLessThan(v.clock, token.IssuedAt, within)
}

// uniqueRecordID generates a record id unused for the given type, retrying a
// bounded number of times on collision.
func (v *TokenVerificator) uniqueRecordID(ctx context.Context, typ string) (string, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := randomHex(tokenIDLength)
		if err != nil {
			return "", err
		}

		_, err = v.store.FindByID(ctx, id, typ)
		if errors.Is(err, domain.ErrTokenNotFound) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("failed to generate a unique token id in %d attempts", maxIDAttempts)
}

// hashSecret returns the hex SHA-512 of the secret half of a long token.
func hashSecret(secret string) string {
	sum := sha512.Sum512([]byte(secret))
	return hex.EncodeToString(sum[:])
}
