package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/aussiebroadwan/sessionauth/internal/auth/csrf"
	"github.com/aussiebroadwan/sessionauth/internal/auth/service"
	"github.com/aussiebroadwan/sessionauth/pkg/errutil"
	"github.com/aussiebroadwan/sessionauth/pkg/httpx"
	"github.com/aussiebroadwan/sessionauth/pkg/slogx"
)

// errorResponses maps client errors to their status and message. The code
// written is the sentinel's text.
var errorResponses = []struct {
	target  error
	status  int
	message string
}{
	{service.ErrValidation, http.StatusBadRequest, "Validation failed"},
	{service.ErrAlreadyExists, http.StatusConflict, "User already exists"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid credentials"},
	{service.ErrAccountLocked, http.StatusForbidden, "Account is locked due to too many failed attempts. Try again later"},
	{service.ErrEmailNotVerified, http.StatusForbidden, "Please verify your email to login"},
	{service.ErrMissingToken, http.StatusUnauthorized, "Refresh token required"},
	{service.ErrInvalidToken, http.StatusUnauthorized, "Invalid or expired refresh token"},
	{service.ErrUserNotFound, http.StatusUnauthorized, "User not found"},
	{service.ErrInvalidOrExpiredToken, http.StatusBadRequest, "Invalid or expired token"},
	{service.ErrNotFound, http.StatusNotFound, "User not found"},
	{csrf.ErrMissing, http.StatusForbidden, "CSRF token missing"},
	{csrf.ErrInvalid, http.StatusForbidden, "Invalid CSRF token"},
}

// writeServiceError writes err as an error body. Unrecognised errors are
// logged and answered with a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	writeServiceErrorMessage(w, r, err, "")
}

// writeServiceErrorMessage is writeServiceError with a replacement message
// for client errors.
func writeServiceErrorMessage(w http.ResponseWriter, r *http.Request, err error, message string) {
	for _, resp := range errorResponses {
		if !errors.Is(err, resp.target) {
			continue
		}
		if message == "" {
			message = resp.message
		}
		var fields []httpx.FieldError
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			for _, f := range verr.Fields {
				fields = append(fields, httpx.FieldError{Path: f.Path, Message: f.Message})
			}
		}
		httpx.WriteError(w, resp.status, resp.target.Error(), message, fields...)
		return
	}

	errutil.LogError(slogx.FromContext(r.Context()), "request failed", err)
	httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "Something went wrong")
}

// decodeBody reads a JSON request body into v. An empty body is an error
// unless optional is set. It writes the error response itself and reports
// whether the handler should continue.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		httpx.WriteError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
		return false
	}
	httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid input")
	return false
}
