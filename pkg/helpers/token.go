package helpers

import (
	"crypto/rand"
	"encoding/base64"
)

// KeyVerifyToken is the Redis key mapping an email verification token to its user.
func KeyVerifyToken(token string) string {
	return "email:verify:token:" + token
}

// RandomToken returns n random bytes encoded as unpadded URL-safe base64.
func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
