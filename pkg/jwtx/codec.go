package jwtx

import (
	"bytes"
	"time"
)

// CodecConfig configures a Codec. AccessSecret and RefreshSecret must both be
// at least 32 bytes and must differ.
type CodecConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	AccessTTL     time.Duration // default DefaultAccessTokenTTL
	RefreshTTL    time.Duration // default DefaultRefreshTokenTTL
	Now           func() time.Time
}

// Codec issues and verifies the two session token kinds. Access and refresh
// tokens are signed with separate keys, so leaking one key cannot forge the
// other kind.
type Codec struct {
	access          Signer
	refresh         Signer
	accessVerifier  *HS256Verifier
	refreshVerifier *HS256Verifier

	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewCodec validates the configuration and builds a Codec.
func NewCodec(cfg CodecConfig) (*Codec, error) {
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTokenTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = DefaultRefreshTokenTTL
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, ErrInvalidTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, ErrSharedKeys
	}

	access, err := NewSignerHS256(cfg.AccessSecret)
	if err != nil {
		return nil, err
	}
	refresh, err := NewSignerHS256(cfg.RefreshSecret)
	if err != nil {
		return nil, err
	}
	accessVerifier, err := NewVerifierHS256(cfg.AccessSecret, cfg.Issuer, TypeAccess, cfg.Now)
	if err != nil {
		return nil, err
	}
	refreshVerifier, err := NewVerifierHS256(cfg.RefreshSecret, cfg.Issuer, TypeRefresh, cfg.Now)
	if err != nil {
		return nil, err
	}

	return &Codec{
		access:          access,
		refresh:         refresh,
		accessVerifier:  accessVerifier,
		refreshVerifier: refreshVerifier,
		issuer:          cfg.Issuer,
		accessTTL:       cfg.AccessTTL,
		refreshTTL:      cfg.RefreshTTL,
		now:             cfg.Now,
	}, nil
}

// AccessTTL is the lifetime of access tokens (and CSRF tokens).
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL is the lifetime of refresh tokens.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// IssueAccess signs an access token for the user.
func (c *Codec) IssueAccess(userID, email string) (string, time.Time, error) {
	now := c.now().UTC()
	claims := NewClaims(TypeAccess, userID, email, "", c.issuer, c.accessTTL, now)
	tok, err := c.access.Sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return tok, claims.ExpiresAt.Time, nil
}

// IssueRefresh signs a refresh token naming the given lineage id.
func (c *Codec) IssueRefresh(userID, email, tokenID string) (string, time.Time, error) {
	if tokenID == "" {
		return "", time.Time{}, ErrInvalidClaim
	}
	now := c.now().UTC()
	claims := NewClaims(TypeRefresh, userID, email, tokenID, c.issuer, c.refreshTTL, now)
	tok, err := c.refresh.Sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return tok, claims.ExpiresAt.Time, nil
}

// VerifyAccess checks signature, issuer, type and expiry of an access token.
func (c *Codec) VerifyAccess(raw string) (Claims, error) {
	return c.accessVerifier.Verify(raw)
}

// VerifyRefresh checks signature, issuer, type and expiry of a refresh token.
// It does not compare the lineage id; that is the caller's job.
func (c *Codec) VerifyRefresh(raw string) (Claims, error) {
	claims, err := c.refreshVerifier.Verify(raw)
	if err != nil {
		return Claims{}, err
	}
	if claims.TokenID == "" {
		return Claims{}, ErrInvalidClaim
	}
	return claims, nil
}

// AccessVerifier exposes the access-token verifier for transport middleware.
func (c *Codec) AccessVerifier() Verifier { return c.accessVerifier }
