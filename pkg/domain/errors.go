package domain

import "errors"

// Verification failure kinds. Match with errors.Is; the implicated token, when
// one was located, travels on the wrapping VerificationError.
var (
	ErrTokenNotFound = errors.New("verification token not found")
	ErrTokenExpired  = errors.New("verification token expired")
	ErrTokenInvalid  = errors.New("invalid verification token")
)

// VerificationError is the failure raised by token and code verification. Kind
// is one of the sentinel errors above. Token is the record that was found, or
// nil for the not-found case and for malformed input rejected before lookup.
type VerificationError struct {
	Kind  error
	Token *Token
}

func (e *VerificationError) Error() string {
	return e.Kind.Error()
}

func (e *VerificationError) Unwrap() error {
	return e.Kind
}

// TokenFromError returns the token attached to a verification failure, or nil.
func TokenFromError(err error) *Token {
	var verr *VerificationError
	if errors.As(err, &verr) {
		return verr.Token
	}
	return nil
}
