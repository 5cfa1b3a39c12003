// Package csrf implements the double submit cookie check: a state changing
// request must echo the csrf cookie in the X-CSRF-Token header.
package csrf

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/sessionauth/pkg/cryptox"
	"github.com/aussiebroadwan/sessionauth/pkg/httpx"
	"github.com/aussiebroadwan/sessionauth/pkg/slogx"
)

const (
	HeaderName = "X-CSRF-Token"
	CookieName = "csrf"
)

var (
	ErrMissing = errors.New("csrf_missing")
	ErrInvalid = errors.New("csrf_invalid")
)

// DefaultExemptPaths are reachable without a session, so there is nothing
// for a forged request to ride on.
var DefaultExemptPaths = []string{
	"/api/auth/register",
	"/api/auth/login",
	"/api/auth/forgot-password",
	"/api/auth/reset-password",
	"/api/auth/verify-email/",
}

// Guard is stateless; the zero value checks every unsafe request.
type Guard struct {
	// ExemptPaths match exactly, or as a prefix when they end in "/".
	ExemptPaths []string
}

// New returns a Guard with DefaultExemptPaths.
func New() *Guard {
	return &Guard{ExemptPaths: DefaultExemptPaths}
}

// Check returns nil when r may proceed.
func (g *Guard) Check(r *http.Request) error {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return nil
	}
	if g.exempt(r.URL.Path) {
		return nil
	}

	header := r.Header.Get(HeaderName)
	cookie, err := r.Cookie(CookieName)
	if header == "" || err != nil || cookie.Value == "" {
		return ErrMissing
	}
	if !cryptox.EqualTokens(header, cookie.Value) {
		return ErrInvalid
	}
	return nil
}

func (g *Guard) exempt(path string) bool {
	for _, p := range g.ExemptPaths {
		if strings.HasSuffix(p, "/") {
			if strings.HasPrefix(path, p) {
				return true
			}
			continue
		}
		if path == p {
			return true
		}
	}
	return false
}

// Middleware rejects failing requests with 403 before they reach next.
func (g *Guard) Middleware() httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := g.Check(r); err != nil {
				slogx.FromContext(r.Context()).Warn("csrf check failed", "reason", err.Error())
				msg := "CSRF token missing"
				if errors.Is(err, ErrInvalid) {
					msg = "Invalid CSRF token"
				}
				httpx.WriteError(w, http.StatusForbidden, err.Error(), msg)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
