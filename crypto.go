package gatekeeper

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashSecret hashes a password with bcrypt. Secrets are never stored or
// compared in plaintext.
func HashSecret(secret string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	return string(bytes), err
}

// MustHashSecret is HashSecret for static configuration; it panics on failure.
func MustHashSecret(secret string) string {
	hash, err := HashSecret(secret)
	if err != nil {
		panic(fmt.Sprintf("gatekeeper: hash secret: %v", err))
	}
	return hash
}

func checkSecretHash(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// HashAnswer hashes a security answer after normalization, so verification is
// case-insensitive and whitespace-tolerant.
func HashAnswer(answer string) (string, error) {
	return HashSecret(normalizeAnswer(answer))
}

// MustHashAnswer is HashAnswer for static configuration; it panics on failure.
func MustHashAnswer(answer string) string {
	hash, err := HashAnswer(answer)
	if err != nil {
		panic(fmt.Sprintf("gatekeeper: hash answer: %v", err))
	}
	return hash
}

func normalizeAnswer(answer string) string {
	return strings.ToLower(strings.TrimSpace(answer))
}

// generateSecureToken returns length random bytes, URL-safe base64 encoded.
func generateSecureToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

func generateSessionToken() (string, error) {
	return generateSecureToken(32)
}

// DeriveFingerprint produces the coarse client-context marker a session is
// bound to. The user agent is truncated so minor version churn does not
// change an otherwise stable fingerprint.
func DeriveFingerprint(userAgent string) string {
	ua := strings.TrimSpace(userAgent)
	if len(ua) > 64 {
		ua = ua[:64]
	}
	return ua
}
