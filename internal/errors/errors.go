// Package errors defines the HTTP error envelope shared by every API
// handler, plus helpers to emit it consistently.
package errors

import (
	"encoding/json"
	"net/http"
)

// HTTPErrorResponse is the JSON envelope for every API error.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

// HTTPError carries the stable code and human-readable message.
type HTTPError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Stable error codes used across the API surface.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeInternal         = "INTERNAL_ERROR"
	CodeBadRequest       = "BAD_REQUEST"
)

// WriteError writes the standard error envelope with the given status.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{
		Error: HTTPError{Code: code, Message: message},
	})
}

// NotFoundHandler serves the standard 404 envelope.
func NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, CodeNotFound, "resource not found: "+r.URL.Path)
	}
}

// MethodNotAllowedHandler serves the standard 405 envelope.
func MethodNotAllowedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed: "+r.Method)
	}
}
