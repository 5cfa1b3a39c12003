package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/sessionauth/internal/auth/domain"
	"github.com/aussiebroadwan/sessionauth/pkg/authsdk"
)

const refreshCookiePath = "/api/auth"

// cookieJar writes the session cookies. Secure is set outside development so
// browsers only return the cookies over HTTPS.
type cookieJar struct {
	secure     bool
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func (c cookieJar) cookie(name, value, path string, ttl time.Duration, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		MaxAge:   int(ttl / time.Second),
		HttpOnly: httpOnly,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (c cookieJar) setSession(w http.ResponseWriter, s *domain.Session) {
	http.SetCookie(w, c.cookie(authsdk.AccessTokenCookie, s.AccessToken, "/", c.accessTTL, true))
	http.SetCookie(w, c.cookie(authsdk.RefreshTokenCookie, s.RefreshToken, refreshCookiePath, c.refreshTTL, true))
	c.setCSRF(w, s.CSRFToken)
}

// The csrf cookie must be readable by script so it can be echoed in a header.
func (c cookieJar) setCSRF(w http.ResponseWriter, token string) {
	http.SetCookie(w, c.cookie(authsdk.CSRFCookie, token, "/", c.accessTTL, false))
}

func (c cookieJar) clear(w http.ResponseWriter) {
	for _, ck := range []*http.Cookie{
		c.cookie(authsdk.AccessTokenCookie, "", "/", 0, true),
		c.cookie(authsdk.RefreshTokenCookie, "", refreshCookiePath, 0, true),
		c.cookie(authsdk.CSRFCookie, "", "/", 0, false),
	} {
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
		http.SetCookie(w, ck)
	}
}
