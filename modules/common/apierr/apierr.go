package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// Sentinel errors for the failure taxonomy. Handlers map whatever happened to
// one of these at the boundary; nothing else decides HTTP statuses.
var (
	ErrUnauthorized       = errors.New("UNAUTHORIZED")
	ErrInsufficientTokens = errors.New("INSUFFICIENT_TOKENS")
	ErrValidation         = errors.New("VALIDATION_ERROR")
	ErrNotFound           = errors.New("NOT_FOUND")
	ErrModelFailure       = errors.New("MODEL_FAILURE")
	ErrPersistence        = errors.New("PERSISTENCE_FAILURE")
)

// Status maps an error to its HTTP status code.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInsufficientTokens):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody - JSON payload shared by every failure response.
type ErrorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message,omitempty"`
	ContactURL string `json:"contactUrl,omitempty"`
}

// Write sends the taxonomy-mapped JSON error response. Insufficient-token
// responses carry the manual top-up contact channel.
func Write(w http.ResponseWriter, err error, contactURL string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(Status(err))

	body := ErrorBody{Error: code(err)}
	if msg := err.Error(); msg != body.Error {
		body.Message = msg
	}
	if errors.Is(err, ErrInsufficientTokens) {
		body.ContactURL = contactURL
	}
	json.NewEncoder(w).Encode(body)
}

func code(err error) string {
	for _, sentinel := range []error{
		ErrUnauthorized, ErrInsufficientTokens, ErrValidation,
		ErrNotFound, ErrModelFailure, ErrPersistence,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "INTERNAL_ERROR"
}

// ClassifyProvider reduces a raw provider error message to one of the coarse
// model-failure categories surfaced to clients.
func ClassifyProvider(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "nsfw") || strings.Contains(lower, "safety") || strings.Contains(lower, "flagged"):
		return "NSFW_FILTERED"
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit") || strings.Contains(lower, "quota"):
		return "RATE_LIMITED"
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return "TIMED_OUT"
	default:
		return "GENERATION_FAILED"
	}
}

// TruncateProvider keeps provider messages short enough for a response body.
// Counts runes so multibyte messages are never cut mid-character.
func TruncateProvider(message string, max int) string {
	if max <= 0 {
		return message
	}
	runes := []rune(message)
	if len(runes) <= max {
		return message
	}
	return string(runes[:max]) + "..."
}
