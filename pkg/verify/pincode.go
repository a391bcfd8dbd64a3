package verify

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/veritoken/veritoken/pkg/domain"
)

// PinCodeVerificator issues and verifies short numeric codes for
// higher-frequency flows such as two-factor authentication and channel
// verification. The persisted id is the HMAC of the code under the
// process-wide hash key; the plaintext code only exists in the returned token
// and the dispatched notification.
//
// Six digits carry little entropy, so short expiry combined with the reissue
// cool-down is a security control here, not just UX.
type PinCodeVerificator struct {
	hashKey  HashKey
	store    TokenStore
	notifier Notifier
	clock    domain.Clock
}

// NewPinCodeVerificator creates a PinCodeVerificator.
func NewPinCodeVerificator(hashKey HashKey, store TokenStore, notifier Notifier, clock domain.Clock) *PinCodeVerificator {
	return &PinCodeVerificator{
		hashKey:  hashKey,
		store:    store,
		notifier: notifier,
		clock:    clock,
	}
}

// SendCode issues a code of the given type for the user, superseding any
// existing codes of that (type, user) pair, and dispatches it to the user via
// the given channel subset (empty = all channels the user can receive). If
// code is empty a random 6-digit code is generated.
func (v *PinCodeVerificator) SendCode(
	ctx context.Context,
	typ string,
	user domain.User,
	expiresAfter time.Duration,
	code string,
	channels []string,
) (domain.Token, error) {
	if err := v.store.DeleteByUser(ctx, typ, user.ID); err != nil {
		return domain.Token{}, fmt.Errorf("failed to delete previous codes: %w", err)
	}

	if code == "" {
		var err error
		code, err = generateCode()
		if err != nil {
			return domain.Token{}, err
		}
	}

	now := v.clock.Now()
	token := domain.Token{
		ID:        v.hashKey.Sum(code),
		Type:      typ,
		UserID:    user.ID,
		IssuedAt:  now,
		ExpiresAt: now.Add(expiresAfter),
	}

	if err := v.store.Create(ctx, &token); err != nil {
		return domain.Token{}, fmt.Errorf("failed to store code: %w", err)
	}

	public := token.WithID(code)

	err := v.notifier.Send(ctx, Notification{
		Token:    public,
		User:     user,
		Channels: channels,
	})
	if err != nil {
		return domain.Token{}, fmt.Errorf("failed to send code notification: %w", err)
	}

	return public, nil
}

// FindCode returns the live code token for (type, user), or nil if none
// exists.
func (v *PinCodeVerificator) FindCode(ctx context.Context, typ string, user domain.User) (*domain.Token, error) {
	token, err := v.store.FindLive(ctx, typ, user.ID, v.clock.Now())
	if errors.Is(err, domain.ErrTokenNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}

// HasCode reports whether a live code exists for (type, user).
func (v *PinCodeVerificator) HasCode(ctx context.Context, typ string, user domain.User) (bool, error) {
	token, err := v.FindCode(ctx, typ, user)
	if err != nil {
		return false, err
	}
	return token != nil, nil
}

// VerifyCode checks a submitted code for (type, user) and returns the token
// as stored. Failures are *domain.VerificationError values.
func (v *PinCodeVerificator) VerifyCode(ctx context.Context, code, typ string, user domain.User) (domain.Token, error) {
	token, err := v.store.FindByUser(ctx, typ, user.ID)
	if errors.Is(err, domain.ErrTokenNotFound) {
		return domain.Token{}, &domain.VerificationError{Kind: domain.ErrTokenNotFound}
	}
	if err != nil {
		return domain.Token{}, err
	}

	if token.Expired(v.clock.Now()) {
		return domain.Token{}, &domain.VerificationError{Kind: domain.ErrTokenExpired, Token: token}
	}

	if !hashEquals(token.ID, v.hashKey.Sum(code)) {
		return domain.Token{}, &domain.VerificationError{Kind: domain.ErrTokenInvalid, Token: token}
	}

	return *token, nil
}

// DeleteCode deletes all codes for (type, user).
func (v *PinCodeVerificator) DeleteCode(ctx context.Context, typ string, user domain.User) error {
	return v.store.DeleteByUser(ctx, typ, user.ID)
}

// DeleteExpiredCodes deletes all records, across all types, whose expiry has
// passed. Returns the number of deleted records.
func (v *PinCodeVerificator) DeleteExpiredCodes(ctx context.Context) (int64, error) {
	return v.store.DeleteExpired(ctx, v.clock.Now())
}

// CodeIssuedLessThan returns the time remaining until the code may be
// reissued, given the cool-down window, and whether any time remains.
func (v *PinCodeVerificator) CodeIssuedLessThan(token domain.Token, within time.Duration) (time.Duration, bool) {
	return issuedLessThan(v.clock, token.IssuedAt, within)
}

// generateCode returns a uniform random 6-digit code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+100000), nil
}
