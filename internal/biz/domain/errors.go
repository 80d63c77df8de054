package domain

import "errors"

// Error taxonomy. Callers wrap these with fmt.Errorf("...: %w", err)
// and branch with errors.Is.
var (
	// ErrTransport is any failure talking to the messaging transport
	ErrTransport = errors.New("transport error")

	// ErrNotConnected is returned for sends while the session is not CONNECTED
	ErrNotConnected = errors.New("session not connected")

	// ErrAuthInvalidated means the remote side revoked the credential
	ErrAuthInvalidated = errors.New("auth invalidated")

	// ErrResponder is a failure or timeout of the content generator
	ErrResponder = errors.New("responder error")

	// ErrStorage is any persistence failure
	ErrStorage = errors.New("storage error")

	ErrSessionNotFound    = errors.New("session not found")
	ErrUnknownOrderStatus = errors.New("unknown order status")
	ErrInvalidPhone       = errors.New("invalid phone number")
	ErrInvalidTenant      = errors.New("invalid tenant id")
)
