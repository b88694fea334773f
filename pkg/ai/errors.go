package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

var (
	ErrMissingAPIKey      = errors.New("GROQ_API_KEY environment variable is not configured")
	ErrUnexpectedResponse = errors.New("unexpected response format from api")
)

// ProviderError is a non-2xx answer from the completion provider.
type ProviderError struct {
	Status  int
	Type    string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

// StatusCode exposes the HTTP status for retry decisions.
func (e *ProviderError) StatusCode() int { return e.Status }

// ErrorKind is the wire label of a failed completion.
type ErrorKind string

const (
	KindConfig   ErrorKind = "config_error"
	KindRate     ErrorKind = "rate_limit"
	KindAuth     ErrorKind = "auth_error"
	KindAPI      ErrorKind = "api_error"
	KindInternal ErrorKind = "internal_error"
)

// User-facing texts per error kind.
const (
	RateLimitMessage = "Rate limit exceeded. Please wait a moment before sending another message."
	AuthMessage      = "API configuration error. Please check your setup."
	InternalMessage  = "Internal server error. Please try again."
	FormatMessage    = "Unexpected response format from API"
)

// Classify maps a completion failure onto the error taxonomy.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrMissingAPIKey) {
		return KindConfig
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		switch perr.Status {
		case http.StatusTooManyRequests:
			return KindRate
		case http.StatusUnauthorized, http.StatusForbidden:
			return KindAuth
		}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"):
		return KindRate
	case strings.Contains(msg, "auth") || strings.Contains(msg, "api key"):
		return KindAuth
	}
	var uerr *url.Error
	var nerr net.Error
	switch {
	case perr != nil, errors.Is(err, ErrUnexpectedResponse):
		return KindAPI
	case errors.Is(err, context.Canceled):
		return KindInternal
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &uerr), errors.As(err, &nerr):
		return KindAPI
	}
	return KindInternal
}

// StatusFor is the HTTP status a proxy answers with for kind.
func StatusFor(kind ErrorKind) int {
	switch kind {
	case KindRate:
		return http.StatusTooManyRequests
	case KindAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// MessageFor renders the user-facing text for a classified failure.
func MessageFor(kind ErrorKind, err error) string {
	switch kind {
	case KindConfig:
		return ErrMissingAPIKey.Error()
	case KindRate:
		return RateLimitMessage
	case KindAuth:
		return AuthMessage
	case KindAPI:
		if errors.Is(err, ErrUnexpectedResponse) {
			return FormatMessage
		}
		return "API error: " + err.Error()
	default:
		return InternalMessage
	}
}
