package enkap

import (
	"errors"
	"fmt"
)

// Sentinel errors for the notification path. Handlers map these to
// channel-specific responses, so they must stay comparable with errors.Is.
var (
	// ErrMissingReference means the inbound payload carried no merchant
	// reference. Rejected before any lookup.
	ErrMissingReference = errors.New("enkap: missing merchant reference in notification")

	// ErrTransactionNotFound means no local transaction matches the
	// merchant reference. Expected for forged or stale references.
	ErrTransactionNotFound = errors.New("enkap: no transaction found for merchant reference")

	// ErrInvalidSignature means the webhook signature check failed.
	ErrInvalidSignature = errors.New("enkap: webhook signature verification failed")
)

// AuthError is returned when the client-credentials exchange with the
// enKap token endpoint fails.
type AuthError struct {
	Cause error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("enkap: failed to authenticate with API: %v", e.Cause)
}

func (e *AuthError) Unwrap() error {
	return e.Cause
}

// CommunicationError is returned when an outbound call to the enKap API
// fails at transport level or with a non-2xx response. It surfaces as a
// user-facing failure on the payment-initiation path only; notifications
// never call out to the provider.
type CommunicationError struct {
	Endpoint string
	Cause    error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("enkap: communication with API failed (%s): %v", e.Endpoint, e.Cause)
}

func (e *CommunicationError) Unwrap() error {
	return e.Cause
}
