package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Well-known token types. Callers may use any string; these are the types the
// bundled HTTP features issue.
const (
	TokenTypePasswordReset = "password:reset"
	TokenTypeTwoFactor     = "twofactor"
	TokenTypeEmail         = "email"
	TokenTypeSmartphone    = "smartphone"
)

// Token is a single-use, time-limited credential scoped to a type and user.
//
// The meaning of ID depends on context. As persisted it is the opaque lookup
// key (for long tokens) or the HMAC of the code (for PIN codes). The token
// returned from an issuance call carries the public-facing credential instead,
// substituted via WithID; that form is never persisted.
type Token struct {
	ID         string
	Type       string
	UserID     string
	SecretHash string
	Metadata   map[string]string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// WithID returns a copy of the token with the given id.
func (t Token) WithID(id string) Token {
	t.ID = id
	return t
}

// Expired reports whether the token must be considered expired at the given
// instant.
func (t Token) Expired(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}

type tokenJSON struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	UserID     string            `json:"userId"`
	SecretHash string            `json:"secretHash,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	IssuedAt   int64             `json:"issuedAt"`
	ExpiresAt  int64             `json:"expiresAt"`
}

// MarshalJSON encodes the token with unix-second timestamps.
func (t Token) MarshalJSON() ([]byte, error) {
	return json.Marshal(tokenJSON{
		ID:         t.ID,
		Type:       t.Type,
		UserID:     t.UserID,
		SecretHash: t.SecretHash,
		Metadata:   t.Metadata,
		IssuedAt:   t.IssuedAt.Unix(),
		ExpiresAt:  t.ExpiresAt.Unix(),
	})
}

// UnmarshalJSON decodes a token encoded by MarshalJSON.
func (t *Token) UnmarshalJSON(data []byte) error {
	var v tokenJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	t.ID = v.ID
	t.Type = v.Type
	t.UserID = v.UserID
	t.SecretHash = v.SecretHash
	t.Metadata = v.Metadata
	t.IssuedAt = time.Unix(v.IssuedAt, 0).UTC()
	t.ExpiresAt = time.Unix(v.ExpiresAt, 0).UTC()
	return nil
}

// tokenIDSeparator splits the public long-token credential into its record id
// and secret halves.
const tokenIDSeparator = ":"

// TokenID is the two-part public credential of a long token. The record id is
// the persisted lookup key; the secret only ever exists in this form and is
// persisted as a hash.
type TokenID struct {
	RecordID string
	Secret   string
}

// ParseTokenID splits a public credential string into its parts. A string
// without the separator is malformed.
func ParseTokenID(s string) (TokenID, error) {
	recordID, secret, ok := strings.Cut(s, tokenIDSeparator)
	if !ok {
		return TokenID{}, fmt.Errorf("token id missing %q separator", tokenIDSeparator)
	}
	return TokenID{RecordID: recordID, Secret: secret}, nil
}

// String serializes the credential for embedding in a URL or message.
func (id TokenID) String() string {
	return id.RecordID + tokenIDSeparator + id.Secret
}
