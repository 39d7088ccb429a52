// Package securetoken generates unguessable URL-safe credentials.
package securetoken

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// DefaultBytes yields 256 bits of entropy, twice the floor required for
// tokens that gate legal proof of receipt.
const DefaultBytes = 32

// New returns a URL-safe random token with n bytes of entropy.
// n below 16 (128 bits) is rejected: tokens below that are guessable.
func New(n int) (string, error) {
	if n < 16 {
		return "", fmt.Errorf("securetoken: %d bytes below 128-bit minimum", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("securetoken: entropy source failed: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// MustNew is New with DefaultBytes, panicking only if the OS entropy
// source is broken, which is not a recoverable condition.
func MustNew() string {
	tok, err := New(DefaultBytes)
	if err != nil {
		panic(err)
	}
	return tok
}

// Equal compares two tokens in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
