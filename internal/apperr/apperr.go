// Package apperr defines the failure taxonomy shared by the gallery client
// components. Every error returned across a component boundary either is, or
// wraps, one of these values so callers can branch with errors.Is/errors.As.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnauthorized means the credential was missing or rejected. The
	// session guard has already notified the user and scheduled a redirect.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNetwork means the transport failed before any response arrived.
	ErrNetwork = errors.New("network failure")
)

// ServerError is a non-success response that carried a status (and maybe a
// message) back from the server.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.Status)
	}
	return e.Message
}

// PartialFailure reports a multi-status upload where some files failed.
type PartialFailure struct {
	Details []string
}

func (e *PartialFailure) Error() string {
	return "some files failed to upload: " + strings.Join(e.Details, "; ")
}

// ValidationAnomaly is a locally detected payload shape mismatch.
type ValidationAnomaly struct {
	Reason string
}

func (e *ValidationAnomaly) Error() string {
	return "unexpected payload: " + e.Reason
}

// Network wraps a transport error so it matches ErrNetwork.
func Network(cause error) error {
	return fmt.Errorf("%w: %w", ErrNetwork, cause)
}

// IsUnauthorized reports whether err is, or wraps, ErrUnauthorized.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
