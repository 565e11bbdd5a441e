package util

import (
	"crypto/rand"
	"fmt"

	"github.com/mr-tron/base58"
)

// sessionTokenBytes is the entropy of a session token. 32 bytes keeps the
// token unguessable; base58 keeps it URL and log safe.
const sessionTokenBytes = 32

// NewSessionToken returns a fresh random bearer token for a streaming
// session. Tokens are never reused across sessions.
func NewSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base58.Encode(buf), nil
}
