// Package domain contains the core business entities for the charge gateway.
package domain

import "errors"

// Domain errors - represent the failure classes the orchestrator acts on.
var (
	// ErrValidation is returned for bad input. Never retried, never
	// forwarded to a provider.
	ErrValidation = errors.New("invalid charge request")

	// ErrAuth is returned when a credential exchange with a provider fails.
	ErrAuth = errors.New("provider authentication failed")

	// ErrProvider is returned when a provider answers with a non-success
	// status or a malformed body.
	ErrProvider = errors.New("provider request failed")

	// ErrNetwork is returned on connection or timeout failures.
	ErrNetwork = errors.New("provider unreachable")

	// ErrEncoding is returned when a PIX payload cannot be built.
	ErrEncoding = errors.New("pix payload encoding failed")

	// ErrNotFound is returned when a provider reports a transaction id
	// as unknown.
	ErrNotFound = errors.New("transaction not found")

	// ErrNotifyFailed is returned when the payment callback cannot be
	// delivered.
	ErrNotifyFailed = errors.New("failed to deliver payment notification")

	// ErrAllProvidersFailed is returned when the whole chain, local
	// fallback included, failed. This is a defect path: the fallback
	// cannot fail by construction.
	ErrAllProvidersFailed = errors.New("all payment providers failed")
)

// ServiceError wraps a domain error with additional context.
type ServiceError struct {
	Err     error
	Message string
	Code    string
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
func NewServiceError(err error, message, code string) *ServiceError {
	return &ServiceError{Err: err, Message: message, Code: code}
}
