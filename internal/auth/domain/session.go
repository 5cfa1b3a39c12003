package domain

import "time"

// Session is what a successful login or refresh hands to the transport.
type Session struct {
	User Profile

	AccessToken     string
	AccessExpiresAt time.Time

	RefreshToken     string
	RefreshExpiresAt time.Time

	CSRFToken     string
	CSRFExpiresAt time.Time
}
