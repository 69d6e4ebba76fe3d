package llm

import (
	"errors"
	"fmt"
)

// ErrMissingAPIKey is returned before any network call when no credential
// is configured.
var ErrMissingAPIKey = &ConfigurationError{SDKError: SDKError{
	Message: "missing API key; set SPECTRAIL_API_KEY or the api_key setting",
}}

// SDKError is the base error type for transport errors.
type SDKError struct {
	Message string
	Cause   error
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SDKError) Unwrap() error {
	return e.Cause
}

// ProviderError is an error response from the chat endpoint.
type ProviderError struct {
	SDKError
	Provider   string
	StatusCode int
	Retryable  bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
}

// Status-derived errors.

type AuthenticationError struct{ ProviderError }
type RateLimitError struct{ ProviderError }
type ServerError struct{ ProviderError }
type APIError struct{ ProviderError }

// Non-provider errors.

type NetworkError struct{ SDKError }
type InvalidResponseError struct{ SDKError }
type ConfigurationError struct{ SDKError }
type AbortError struct{ SDKError }

// ErrorFromStatusCode maps an HTTP status to a typed error. 429 and 5xx are
// transient; 401 and every other 4xx are permanent.
func ErrorFromStatusCode(statusCode int, message, provider string) error {
	pe := ProviderError{
		SDKError:   SDKError{Message: message},
		Provider:   provider,
		StatusCode: statusCode,
	}

	switch {
	case statusCode == 401:
		if pe.Message == "" {
			pe.Message = "invalid API key"
		}
		return &AuthenticationError{ProviderError: pe}
	case statusCode == 429:
		pe.Retryable = true
		return &RateLimitError{ProviderError: pe}
	case statusCode >= 500:
		pe.Retryable = true
		return &ServerError{ProviderError: pe}
	default:
		return &APIError{ProviderError: pe}
	}
}

// IsRetryable reports whether err is a transient transport failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var (
		network *NetworkError
		rate    *RateLimitError
		server  *ServerError
		other   *ProviderError
	)
	switch {
	case errors.As(err, &network), errors.As(err, &rate), errors.As(err, &server):
		return true
	case errors.As(err, &other):
		return other.Retryable
	default:
		return false
	}
}

// StatusCode extracts the HTTP status from a provider error, or 0.
func StatusCode(err error) int {
	var (
		auth   *AuthenticationError
		rate   *RateLimitError
		server *ServerError
		api    *APIError
		other  *ProviderError
	)
	switch {
	case errors.As(err, &auth):
		return auth.StatusCode
	case errors.As(err, &rate):
		return rate.StatusCode
	case errors.As(err, &server):
		return server.StatusCode
	case errors.As(err, &api):
		return api.StatusCode
	case errors.As(err, &other):
		return other.StatusCode
	}
	return 0
}
