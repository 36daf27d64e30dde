// Package apierr defines the client-visible error taxonomy shared by the HTTP
// API and its clients, along with the JSON response envelope.
package apierr

import (
	"errors"
	"fmt"
)

// Category classifies a failed request for display and retry decisions.
type Category string

const (
	Network          Category = "network"
	Timeout          Category = "timeout"
	RateLimit        Category = "rateLimit"
	ServerError      Category = "serverError"
	AuthError        Category = "authError"
	ModelUnavailable Category = "modelUnavailable"
	BadRequest       Category = "badRequest"
	Unknown          Category = "unknown"
)

// Retryable reports whether failures of this category are worth retrying.
func (c Category) Retryable() bool {
	switch c {
	case AuthError, ModelUnavailable, BadRequest:
		return false
	}
	return true
}

// Details is the errorDetails object of a failed API response.
type Details struct {
	Status    int     `json:"status"`
	Message   string  `json:"message"`
	Type      string  `json:"type,omitempty"`
	Code      *string `json:"code,omitempty"`
	Retryable bool    `json:"retryable"`
}

// Categorize maps a transport status (0 for a network failure) and optional
// server-supplied details to a Category.
func Categorize(status int, d *Details) Category {
	if status == 0 {
		return Network
	}
	if d != nil && (d.Type == "model_unavailable" || (d.Code != nil && *d.Code == "model_not_found")) {
		return ModelUnavailable
	}
	switch status {
	case 408:
		return Timeout
	case 429:
		return RateLimit
	case 500, 502, 503, 504:
		return ServerError
	case 401, 403:
		return AuthError
	case 400:
		return BadRequest
	case 404:
		return ModelUnavailable
	}
	return Unknown
}

// RetryableStatus reports whether an upstream status is a temporary failure.
// Servers use it to fill Details.Retryable.
func RetryableStatus(status int) bool {
	switch status {
	case 500, 502, 503, 504:
		return true
	}
	return false
}

// Error is a categorized request failure.
//
// Exhausted is set when every retry attempt failed. Such an error is never
// Retryable: the caller should offer a different model rather than another
// retry.
type Error struct {
	Status    int
	Message   string
	Category  Category
	Retryable bool
	Exhausted bool
	Details   *Details
}

// New builds an Error for status, categorizing it with d.
func New(status int, message string, retryable bool, d *Details) *Error {
	return &Error{
		Status:    status,
		Message:   message,
		Category:  Categorize(status, d),
		Retryable: retryable,
		Details:   d,
	}
}

func (e *Error) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("%s (status %d, retries exhausted): %s", e.Category, e.Status, e.Message)
	}
	return fmt.Sprintf("%s (status %d): %s", e.Category, e.Status, e.Message)
}

// Exhaust returns a copy of e marked as the final failure of a retry loop.
func (e *Error) Exhaust() *Error {
	cp := *e
	cp.Retryable = false
	cp.Exhausted = true
	return &cp
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// StringPtr is a helper for the optional Details.Code field.
func StringPtr(s string) *string { return &s }
