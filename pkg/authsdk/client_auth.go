package authsdk

import (
	"context"
	"net/http"
	"net/url"
)

// Register creates an account and triggers the verification email.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*MessageResponse, error) {
	var out MessageResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login opens a session. The access, refresh and CSRF cookies land in the
// client's jar.
func (c *Client) Login(ctx context.Context, email, password string) (*SessionResponse, error) {
	var out SessionResponse
	req := LoginRequest{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh rotates the refresh token held in the jar.
func (c *Client) Refresh(ctx context.Context) (*SessionResponse, error) {
	return c.refresh(ctx, nil)
}

// RefreshWithToken rotates an explicit refresh token instead of the cookie.
func (c *Client) RefreshWithToken(ctx context.Context, refreshToken string) (*SessionResponse, error) {
	return c.refresh(ctx, RefreshRequest{RefreshToken: refreshToken})
}

func (c *Client) refresh(ctx context.Context, in any) (*SessionResponse, error) {
	var out SessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/refresh", in, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout ends the session and clears the session cookies.
func (c *Client) Logout(ctx context.Context) (*MessageResponse, error) {
	var out MessageResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// CSRFToken asks for a fresh CSRF token for the current session.
func (c *Client) CSRFToken(ctx context.Context) (string, error) {
	var out CSRFTokenResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/csrf-token", nil, &out, http.StatusOK); err != nil {
		return "", err
	}
	return out.CSRFToken, nil
}

// VerifyEmail redeems the token from a verification email.
func (c *Client) VerifyEmail(ctx context.Context, token string) (*MessageResponse, error) {
	var out MessageResponse
	path := "/api/auth/verify-email/" + url.PathEscape(token)
	if err := c.do(ctx, http.MethodGet, path, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ForgotPassword requests a reset email. The response is the same whether or
// not the account exists.
func (c *Client) ForgotPassword(ctx context.Context, email string) (*MessageResponse, error) {
	var out MessageResponse
	req := ForgotPasswordRequest{Email: email}
	if err := c.do(ctx, http.MethodPost, "/api/auth/forgot-password", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResetPassword sets a new password using the token from a reset email.
func (c *Client) ResetPassword(ctx context.Context, token, password string) (*MessageResponse, error) {
	var out MessageResponse
	req := ResetPasswordRequest{Token: token, Password: password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/reset-password", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the signed-in user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var out MeResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out.User, nil
}
