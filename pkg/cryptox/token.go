package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// Token size constants (in bytes before encoding).
const (
	// TokenSize128 provides 128 bits of entropy (22 chars base64url).
	TokenSize128 = 16
	// TokenSize256 provides 256 bits of entropy (43 chars base64url).
	TokenSize256 = 32
)

// GenerateToken creates a cryptographically secure random token of the specified byte length.
// The token is returned as a base64url-encoded string (URL-safe, no padding).
//
// Common sizes:
//   - TokenSize128 (16 bytes): suffixes, throwaway secrets
//   - TokenSize256 (32 bytes): verification, reset and CSRF tokens
func GenerateToken(size int) (string, error) {
	if size < TokenSize128 {
		return "", fmt.Errorf("cryptox: token size must be at least %d bytes, got %d", TokenSize128, size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: generate random token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// MustGenerateToken is like GenerateToken but panics on error.
// Use this only during initialization or in contexts where failure is unrecoverable.
func MustGenerateToken(size int) string {
	token, err := GenerateToken(size)
	if err != nil {
		panic(err)
	}
	return token
}

// OpaqueToken is a bearer capability. Value goes to the user (email link,
// cookie), Fingerprint is what gets stored.
type OpaqueToken struct {
	Value       string
	Fingerprint string
}

// NewOpaqueToken mints a 256-bit token together with its fingerprint.
func NewOpaqueToken() (OpaqueToken, error) {
	v, err := GenerateToken(TokenSize256)
	if err != nil {
		return OpaqueToken{}, err
	}
	return OpaqueToken{Value: v, Fingerprint: FingerprintToken(v)}, nil
}

// FingerprintToken returns a deterministic SHA-256 fingerprint of a token.
// Stored tokens are looked up by fingerprint so a leaked row cannot be
// replayed as a link.
//
// The fingerprint is returned as a base64url-encoded string (43 chars).
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// EqualTokens compares two presented tokens in constant time. Empty values
// never match.
func EqualTokens(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
