package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors for common cases.
// Use errors.Is() to check against these.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrPaymentFailed   = errors.New("payment failed")
	ErrUpstreamError   = errors.New("upstream error")
	ErrRateLimited     = errors.New("rate limited")
	ErrPaymentLinkLost = errors.New("payment intent missing commerce order reference")
)

// APIError represents a structured error for API responses.
// Implements error interface and supports unwrapping.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"` // HTTP status, not serialized
	Err        error  `json:"-"` // Wrapped error, not serialized
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a 404 error for missing resources.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: 404,
		Err:        ErrNotFound,
	}
}

// NewValidationError creates a 400 error for invalid input.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: 400,
		Err:        ErrInvalidRequest,
	}
}

// NewUnauthorizedError creates a 401 error for auth failures.
func NewUnauthorizedError(reason string) *APIError {
	return &APIError{
		Code:       "UNAUTHORIZED",
		Message:    reason,
		StatusCode: 401,
		Err:        ErrUnauthorized,
	}
}

// NewUpstreamError creates a 502 error for backend failures.
func NewUpstreamError(service string, err error) *APIError {
	return &APIError{
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("%s request failed", service),
		StatusCode: 502,
		Err:        fmt.Errorf("%w: %v", ErrUpstreamError, err),
	}
}

// NewBackendError creates a 502 error that carries the upstream's own message.
// Checkout failures surface this message to the shopper unchanged, so the
// message is never replaced with generic text.
func NewBackendError(service string, status int, message string) *APIError {
	if message == "" {
		message = fmt.Sprintf("%s returned status %d", service, status)
	}
	return &APIError{
		Code:       "BACKEND_ERROR",
		Message:    message,
		StatusCode: 502,
		Err:        fmt.Errorf("%w: %s status %d", ErrUpstreamError, service, status),
	}
}

// NewPaymentError creates a 402 error for payment issues.
func NewPaymentError(reason string) *APIError {
	return &APIError{
		Code:       "PAYMENT_ERROR",
		Message:    reason,
		StatusCode: 402,
		Err:        ErrPaymentFailed,
	}
}

// NewPaymentLinkError reports a payment intent that came back without the
// commerce order reference in its notes.
func NewPaymentLinkError(orderID int) *APIError {
	return &APIError{
		Code:       "PAYMENT_LINK_MISSING",
		Message:    fmt.Sprintf("payment could not be linked to order %d", orderID),
		StatusCode: 502,
		Err:        ErrPaymentLinkLost,
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: 500,
		Err:        err,
	}
}

// NewRateLimitError creates a 429 error for rate limiting.
func NewRateLimitError(service string) *APIError {
	return &APIError{
		Code:       "RATE_LIMITED",
		Message:    fmt.Sprintf("%s rate limit exceeded, please retry later", service),
		StatusCode: 429,
		Err:        ErrRateLimited,
	}
}

// FieldErrors maps form field names to a human-readable problem.
// Returned by checkout validation before any network call is made.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fe[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is match FieldErrors against ErrInvalidRequest.
func (fe FieldErrors) Unwrap() error {
	return ErrInvalidRequest
}
