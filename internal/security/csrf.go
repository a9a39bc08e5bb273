package security

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/hex"
	"errors"
)

var ErrInvalidToken = errors.New("invalid CSRF token")

// tokenBytes is the amount of entropy drawn per token.
const tokenBytes = 32

// TokenManager handles CSRF token generation and comparison.
// Tokens are random and stored server-side against the session; there is no
// signature to verify, only equality with the stored value.
type TokenManager struct{}

// NewTokenManager creates a new CSRF token manager.
func NewTokenManager() *TokenManager {
	return &TokenManager{}
}

// Generate returns a fresh 64-character hex token.
func (tm *TokenManager) Generate() (string, error) {
	randomBytes := make([]byte, tokenBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(randomBytes), nil
}

// Equal compares a stored token against a submitted one in constant time.
// Empty values never match.
func (tm *TokenManager) Equal(stored, submitted string) bool {
	if stored == "" || submitted == "" {
		return false
	}
	return hmac.Equal([]byte(stored), []byte(submitted))
}
