// Package crypto provides random token generation.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Base62 alphabet for short ids
const base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// GenerateStateToken creates an OAuth2 anti-forgery state value.
// Returns base64url-encoded 32 random bytes.
func GenerateStateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateNanoID creates a short random id with prefix.
func GenerateNanoID(prefix string, length int) (string, error) {
	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate nanoid: %w", err)
	}

	result := make([]byte, length)
	for i := 0; i < length; i++ {
		result[i] = base62Chars[randomBytes[i]%62]
	}

	return prefix + string(result), nil
}
