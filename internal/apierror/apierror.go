// Package apierror provides standardized error response structures for the API
// and the sentinel errors every layer wraps. Handlers translate sentinels into
// status codes so internal details (DB errors, paths) never reach clients.
package apierror

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound marks an unknown lot, item, brand or model.
	ErrNotFound = errors.New("introuvable")
	// ErrConflict marks a uniqueness or state-machine violation.
	ErrConflict = errors.New("conflit")
	// ErrValidation marks input rejected before any write.
	ErrValidation = errors.New("données invalides")
	// ErrUnauthorized marks missing or invalid credentials.
	ErrUnauthorized = errors.New("non autorisé")
)

// APIError is the canonical error envelope for all 4xx/5xx HTTP responses.
type APIError struct {
	Detail string `json:"detail"`
}

func New(msg string) *APIError {
	return &APIError{Detail: msg}
}

// Validation wraps multiple field errors.
type ValidationError struct {
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields"`
}

func NewValidation(fields map[string]string) *ValidationError {
	return &ValidationError{Detail: "Erreur de validation", Fields: fields}
}

// Status maps a wrapped sentinel onto an HTTP status code.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the text shown to the user: the wrapped message for known
// sentinels, a generic one otherwise.
func Message(err error) string {
	if Status(err) == http.StatusInternalServerError {
		return "Erreur interne du serveur"
	}
	return err.Error()
}
