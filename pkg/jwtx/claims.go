package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTL constants. Access tokens are short-lived; refresh tokens
// are long-lived but single-use under rotation.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Token types carried in the "typ" claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims are the session claims shared by access and refresh tokens. The
// subject is the user id.
type Claims struct {
	jwt.RegisteredClaims

	// Email of the authenticated user at issuance time.
	Email string `json:"email"`

	// TokenID names the refresh lineage. Only set on refresh tokens and
	// compared against the stored value on every refresh.
	TokenID string `json:"tid,omitempty"`

	// Type is TypeAccess or TypeRefresh.
	Type string `json:"typ"`
}

// UserID returns the subject claim.
func (c *Claims) UserID() string { return c.Subject }

// NewClaims builds minimally-correct claims for the given token type.
func NewClaims(typ, userID, email, tokenID, issuer string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Email:   email,
		TokenID: tokenID,
		Type:    typ,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim. Two tokens
// minted in the same second for the same user still differ.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateType checks the "typ" claim so an access token can never be
// replayed as a refresh token (or the other way around), even if both keys
// were accidentally configured to the same secret.
func (c *Claims) ValidateType(expected string) error {
	if c.Type != expected {
		return ErrWrongType
	}
	return nil
}

// ValidateExpiry ensures the token hasn't expired (exp) and isn't before nbf.
// There is no leeway: a token is dead the instant exp is reached.
func (c *Claims) ValidateExpiry(now time.Time) error {
	if c.ExpiresAt == nil || !now.Before(c.ExpiresAt.Time) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}
	return nil
}

// ValidateSubject ensures the token names a user.
func (c *Claims) ValidateSubject() error {
	if c.Subject == "" || c.Email == "" {
		return ErrInvalidClaim
	}
	return nil
}
