// Package errors defines the typed error taxonomy of the translation engine.
//
// Provider failures, output parsing failures, configuration problems and
// internal invariant breaks each get their own type so callers can route
// them differently: provider errors feed the retry layer, parse errors are
// recovered inline, configuration errors abort construction.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode classifies engine errors for consistent handling.
type ErrorCode string

const (
	// Provider gateway errors
	ErrorCodeProviderTimeout    ErrorCode = "PROVIDER_TIMEOUT"
	ErrorCodeProviderRateLimit  ErrorCode = "PROVIDER_RATE_LIMIT"
	ErrorCodeProviderAuth       ErrorCode = "PROVIDER_AUTH"
	ErrorCodeProviderConnection ErrorCode = "PROVIDER_CONNECTION"
	ErrorCodeProviderServer     ErrorCode = "PROVIDER_SERVER"
	ErrorCodeModelNotFound      ErrorCode = "MODEL_NOT_FOUND"

	// Output handling errors
	ErrorCodeParseFailure ErrorCode = "PARSE_FAILURE"

	// Setup errors
	ErrorCodeConfiguration ErrorCode = "CONFIGURATION"
	ErrorCodeValidation    ErrorCode = "VALIDATION"
)

// ProviderError reports a failed LLM provider call. It carries enough
// detail to decide between retrying the round and giving up.
type ProviderError struct {
	Provider   string    `json:"provider"`
	Model      string    `json:"model,omitempty"`
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code,omitempty"`
	Err        error     `json:"-"`
}

func (e *ProviderError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("%s [%s/%s]: %s", e.Code, e.Provider, e.Model, e.Message)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Code, e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Temporary reports whether the failure is worth retrying. Auth failures
// and unknown models never recover on retry.
func (e *ProviderError) Temporary() bool {
	switch e.Code {
	case ErrorCodeProviderTimeout, ErrorCodeProviderRateLimit,
		ErrorCodeProviderConnection, ErrorCodeProviderServer:
		return true
	default:
		return false
	}
}

// NewProviderError creates a provider error with an explicit code.
func NewProviderError(provider, model string, code ErrorCode, message string, cause error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Model:    model,
		Code:     code,
		Message:  message,
		Err:      cause,
	}
}

// ProviderErrorFromStatus maps an HTTP status from a provider API to the
// matching error code.
func ProviderErrorFromStatus(provider, model string, statusCode int, message string) *ProviderError {
	code := ErrorCodeProviderServer
	switch {
	case statusCode == http.StatusTooManyRequests:
		code = ErrorCodeProviderRateLimit
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		code = ErrorCodeProviderAuth
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		code = ErrorCodeProviderTimeout
	case statusCode == http.StatusNotFound:
		code = ErrorCodeModelNotFound
	case statusCode >= 400 && statusCode < 500:
		code = ErrorCodeProviderConnection
	}
	return &ProviderError{
		Provider:   provider,
		Model:      model,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

const maxRawSample = 200

// ParseError reports model output that could not be decoded into the
// structured translation response. The engine recovers by falling back to
// the raw content, so this error is informational rather than fatal.
type ParseError struct {
	Message string `json:"message"`
	Raw     string `json:"raw,omitempty"`
	Err     error  `json:"-"`
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", ErrorCodeParseFailure, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a parse error keeping a bounded sample of the raw
// output for diagnostics.
func NewParseError(message, raw string, cause error) *ParseError {
	if len(raw) > maxRawSample {
		raw = raw[:maxRawSample] + "..."
	}
	return &ParseError{Message: message, Raw: raw, Err: cause}
}

// ConfigurationError reports an unusable setting. It is raised during
// construction and is never retried.
type ConfigurationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s [%s]: %s", ErrorCodeConfiguration, e.Field, e.Reason)
}

// NewConfigurationError creates a configuration error for the named field.
func NewConfigurationError(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}

// ValidationError reports a rejected input value, such as a malformed
// preset definition.
type ValidationError struct {
	Field  string      `json:"field"`
	Reason string      `json:"reason"`
	Value  interface{} `json:"value,omitempty"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %q: %s", e.Field, e.Reason)
}

// NewValidationError creates a validation error for the named field.
func NewValidationError(field, reason string, value interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, Value: value}
}

// IsTemporary reports whether err (or anything it wraps) is retryable.
func IsTemporary(err error) bool {
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) {
		return temp.Temporary()
	}
	return classifyMessage(err)
}

// IsRateLimited reports whether err is a provider rate limit.
func IsRateLimited(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == ErrorCodeProviderRateLimit
}

// IsAuthFailure reports whether err is a provider auth failure.
func IsAuthFailure(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == ErrorCodeProviderAuth
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// classifyMessage falls back to message inspection for errors from client
// libraries that expose no typed information.
func classifyMessage(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"service unavailable",
		"too many requests",
		"deadline exceeded",
		"rate limit",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
