package clients

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies provider failures. timeout and rate_limited are
// transient and worth retrying; invalid_response gets one strict retry;
// auth_failure is terminal for the provider.
type ErrorKind string

const (
	ErrTimeout         ErrorKind = "timeout"
	ErrRateLimited     ErrorKind = "rate_limited"
	ErrInvalidResponse ErrorKind = "invalid_response"
	ErrAuthFailure     ErrorKind = "auth_failure"
)

// ProviderError wraps a failure of one AI backend call with its
// classification.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("provider %s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError builds a classified provider error.
func NewProviderError(provider string, kind ErrorKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// KindOf extracts the classification from err, or empty when err is not a
// ProviderError.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// Retryable reports whether err is a transient provider failure.
func Retryable(err error) bool {
	switch KindOf(err) {
	case ErrTimeout, ErrRateLimited:
		return true
	}
	return false
}
