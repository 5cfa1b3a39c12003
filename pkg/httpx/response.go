package httpx

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes a JSON response with the given status code.
// It automatically sets the Content-Type header and Cache-Control headers.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// NoCache sets the Cache-Control and Pragma headers to prevent caching.
// This is commonly required for sensitive responses like tokens.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Status  string       `json:"status"`
	Code    string       `json:"error"`
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// FieldError names one rejected request field.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// WriteError writes an ErrorBody with status "error".
func WriteError(w http.ResponseWriter, code int, errCode, message string, fields ...FieldError) {
	WriteJSON(w, code, ErrorBody{
		Status:  "error",
		Code:    errCode,
		Message: message,
		Errors:  fields,
	})
}
