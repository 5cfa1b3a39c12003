package service

import (
	"errors"
	"strings"
)

// Error codes double as the machine-readable error field of API responses.
var (
	ErrValidation            = errors.New("validation_failed")
	ErrAlreadyExists         = errors.New("already_exists")
	ErrInvalidCredentials    = errors.New("invalid_credentials")
	ErrAccountLocked         = errors.New("account_locked")
	ErrEmailNotVerified      = errors.New("email_not_verified")
	ErrMissingToken          = errors.New("missing_token")
	ErrInvalidToken          = errors.New("invalid_token")
	ErrUserNotFound          = errors.New("user_not_found")
	ErrInvalidOrExpiredToken = errors.New("invalid_or_expired_token")
	ErrNotFound              = errors.New("not_found")
)

// FieldError describes one invalid input field.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError carries every field that failed validation. It matches
// ErrValidation with errors.Is.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Path+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) add(path, message string) {
	e.Fields = append(e.Fields, FieldError{Path: path, Message: message})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
