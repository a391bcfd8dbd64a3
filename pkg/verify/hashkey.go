package verify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
)

// hashKeyMarker replaces the key material anywhere a HashKey would otherwise
// be printed or encoded.
const hashKeyMarker = "[hash key]"

const minHashKeyLen = 32

// HashKey is the process-wide secret used to HMAC short PIN codes. It is
// loaded once at startup and held for the process lifetime. The value never
// appears in logs, formatted output or serialized forms.
type HashKey struct {
	key []byte
}

// NewHashKey wraps key material. Keys shorter than 32 bytes are rejected.
func NewHashKey(raw string) (HashKey, error) {
	if len(raw) < minHashKeyLen {
		return HashKey{}, errors.New("hash key must be at least 32 bytes")
	}
	return HashKey{key: []byte(raw)}, nil
}

// Sum returns the hex HMAC-SHA256 of the given code under the key.
func (k HashKey) Sum(code string) string {
	mac := hmac.New(sha256.New, k.key)
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

func (k HashKey) Format(f fmt.State, verb rune) {
	f.Write([]byte(hashKeyMarker))
}

func (k HashKey) MarshalText() ([]byte, error) {
	return []byte(hashKeyMarker), nil
}

// LogValue implements slog.LogValuer.
func (k HashKey) LogValue() slog.Value {
	return slog.StringValue(hashKeyMarker)
}
