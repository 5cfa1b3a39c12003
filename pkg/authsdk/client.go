package authsdk

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// Cookie and header names used by the service.
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
	CSRFCookie         = "csrf"
	CSRFHeader         = "X-CSRF-Token"
)

// Client is a client for the session authentication service.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	base *url.URL
}

// NewClient creates a client with its own cookie jar.
func NewClient(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return NewClientWithHTTP(baseURL, &http.Client{
		Timeout: 10 * time.Second,
		Jar:     jar,
	})
}

// NewClientWithHTTP uses hc as is. Session cookies only persist if hc has a
// Jar.
func NewClientWithHTTP(baseURL string, hc *http.Client) (*Client, error) {
	baseURL = strings.TrimSuffix(baseURL, "/")
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	return &Client{BaseURL: baseURL, HTTPClient: hc, base: u}, nil
}

// Cookie returns the named cookie the jar would send to the service root.
func (c *Client) Cookie(name string) string {
	if c.HTTPClient.Jar == nil {
		return ""
	}
	for _, ck := range c.HTTPClient.Jar.Cookies(c.base) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

// CSRF returns the token that will be sent in the X-CSRF-Token header.
func (c *Client) CSRF() string {
	return c.Cookie(CSRFCookie)
}
