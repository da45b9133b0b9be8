package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// patPrefix makes personal access tokens recognizable in logs and secret
// scanners without revealing anything about their contents.
const patPrefix = "pat_"

// NewPersonalAccessToken generates an opaque token and the hash stored in
// the event payload. The plaintext token is returned to the caller exactly
// once and never persisted.
func NewPersonalAccessToken() (token, hash string, err error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", "", fmt.Errorf("failed to generate token secret: %w", err)
	}
	token = patPrefix + base64.RawURLEncoding.EncodeToString(secret)
	return token, HashToken(token), nil
}

// HashToken returns the hex SHA-256 digest of a token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// VerifyToken compares a presented token against a stored hash in constant
// time.
func VerifyToken(token, hash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(hash)) == 1
}
