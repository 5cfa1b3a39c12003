package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/sessionauth/internal/auth/domain"
	"github.com/aussiebroadwan/sessionauth/internal/auth/service"
	"github.com/aussiebroadwan/sessionauth/pkg/authsdk"
	"github.com/aussiebroadwan/sessionauth/pkg/httpx"
	"github.com/aussiebroadwan/sessionauth/pkg/slogx"
)

// AuthHandler serves the /api/auth endpoints.
type AuthHandler struct {
	Sessions *service.SessionService
	cookies  cookieJar
}

func toUser(p domain.Profile) authsdk.User {
	created := p.CreatedAt
	return authsdk.User{
		ID:         p.ID,
		Email:      p.Email,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		IsVerified: p.IsVerified,
		CreatedAt:  &created,
		LastLogin:  p.LastLogin,
	}
}

// HandleRegister creates an unverified account.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RegisterRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	_, err := h.Sessions.Register(r.Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, authsdk.MessageResponse{
		Message: "User registered successfully. Please check your email to verify your account.",
	})
}

// HandleLogin opens a session and sets the session cookies.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	sess, err := h.Sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.cookies.setSession(w, sess)
	httpx.WriteJSON(w, http.StatusOK, authsdk.SessionResponse{
		User:      toUser(sess.User),
		CSRFToken: sess.CSRFToken,
	})
}

// HandleRefresh rotates the refresh token from the cookie, or from the body
// when no cookie was sent.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	token := ""
	if c, err := r.Cookie(authsdk.RefreshTokenCookie); err == nil {
		token = c.Value
	}
	if token == "" {
		var req authsdk.RefreshRequest
		if !decodeBody(w, r, &req, true) {
			return
		}
		token = req.RefreshToken
	}

	sess, err := h.Sessions.Refresh(r.Context(), token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.cookies.setSession(w, sess)
	httpx.WriteJSON(w, http.StatusOK, authsdk.SessionResponse{
		User:      toUser(sess.User),
		CSRFToken: sess.CSRFToken,
	})
}

// HandleLogout ends the caller's refresh lineage and clears the cookies. It
// succeeds even when the caller has no session.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var in service.LogoutInput

	access := ""
	if c, err := r.Cookie(authsdk.AccessTokenCookie); err == nil {
		access = c.Value
	}
	if access == "" {
		access = httpx.BearerToken(r)
	}
	if userID, err := h.Sessions.VerifyAccessToken(access); err == nil {
		in.UserID = userID
	}
	if c, err := r.Cookie(authsdk.RefreshTokenCookie); err == nil {
		in.RefreshToken = c.Value
	}

	h.cookies.clear(w)
	if err := h.Sessions.Logout(r.Context(), in); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "Logged out successfully"})
}

// HandleCSRFToken issues a fresh CSRF token to an authenticated caller.
func (h *AuthHandler) HandleCSRFToken(w http.ResponseWriter, r *http.Request) {
	token, _, err := h.Sessions.IssueCSRFToken(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.cookies.setCSRF(w, token)
	httpx.WriteJSON(w, http.StatusOK, authsdk.CSRFTokenResponse{CSRFToken: token})
}

// HandleVerifyEmail redeems the token from a verification link.
func (h *AuthHandler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Sessions.VerifyEmail(r.Context(), r.PathValue("token")); err != nil {
		writeServiceErrorMessage(w, r, err, tokenMessage(err, "Invalid or expired verification token"))
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{
		Message: "Email verified successfully. You can now login.",
	})
}

// HandleForgotPassword always answers the same way for well-formed input so
// the response does not reveal whether the account exists.
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ForgotPasswordRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	if err := h.Sessions.RequestPasswordReset(r.Context(), req.Email); err != nil {
		if errors.Is(err, service.ErrValidation) {
			writeServiceError(w, r, err)
			return
		}
		slogx.FromContext(r.Context()).Error("password reset request failed", "err", err)
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{
		Message: "If a user with that email exists, a password reset link has been sent.",
	})
}

// HandleResetPassword sets a new password from a reset token.
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ResetPasswordRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	if err := h.Sessions.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeServiceErrorMessage(w, r, err, tokenMessage(err, "Invalid or expired reset token"))
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{
		Message: "Password reset successfully. You can now login with your new password.",
	})
}

// HandleMe returns the authenticated caller's profile.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpx.UserIDFromContext(r.Context())

	p, err := h.Sessions.GetMe(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MeResponse{User: toUser(p)})
}

func tokenMessage(err error, msg string) string {
	if errors.Is(err, service.ErrInvalidOrExpiredToken) {
		return msg
	}
	return ""
}
