package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/sessionauth/pkg/httpx"
)

// Error codes returned in the "error" field of an error body.
const (
	ErrorCodeValidation            = "validation_failed"
	ErrorCodeAlreadyExists         = "already_exists"
	ErrorCodeInvalidCredentials    = "invalid_credentials"
	ErrorCodeAccountLocked         = "account_locked"
	ErrorCodeEmailNotVerified      = "email_not_verified"
	ErrorCodeMissingToken          = "missing_token"
	ErrorCodeInvalidToken          = "invalid_token"
	ErrorCodeUserNotFound          = "user_not_found"
	ErrorCodeInvalidOrExpiredToken = "invalid_or_expired_token"
	ErrorCodeCSRFMissing           = "csrf_missing"
	ErrorCodeCSRFInvalid           = "csrf_invalid"
	ErrorCodeNotFound              = "not_found"
	ErrorCodeRateLimited           = "rate_limit_exceeded"
	ErrorCodePayloadTooLarge       = "payload_too_large"
	ErrorCodeInvalidRequest        = "invalid_request"
	ErrorCodeInternal              = "internal_error"
)

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Fields     []httpx.FieldError
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsCode reports whether err is an *APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// parseErrorResponse turns an error body into an *APIError. Bodies that are
// not in the service's shape (a proxy page, say) still produce one, keyed by
// status.
func parseErrorResponse(resp *http.Response, body []byte) error {
	var errResp httpx.ErrorBody
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Code != "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       errResp.Code,
			Message:    errResp.Message,
			Fields:     errResp.Errors,
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Code:       ErrorCodeInternal,
		Message:    fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
