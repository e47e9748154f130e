// errors.go - Failure kinds surfaced by backend calls and the flows built on them
package backend

import (
	"errors"
	"fmt"
)

// ConflictError signals an upload whose filename already exists on the backend.
// It is recoverable by resubmitting with override.
type ConflictError struct {
	Filename string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("file %q already exists", e.Filename)
}

// ValidationError signals input the backend (or the client, before sending) refuses,
// such as an unsupported file type or an oversized file. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// TransportError covers network failures, unexpected statuses and undecodable
// responses. StatusCode is 0 when no response was received.
type TransportError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RemoteFailure means a processing job reached the Failed status.
type RemoteFailure struct {
	FileID   int64
	Filename string
}

func (e *RemoteFailure) Error() string {
	if e.Filename == "" {
		return fmt.Sprintf("processing failed for file %d", e.FileID)
	}
	return fmt.Sprintf("processing failed for %s", e.Filename)
}

// UserMessage returns the message to show for err, falling back to fallback
// when err carries nothing more specific.
func UserMessage(err error, fallback string) string {
	var (
		conflict   *ConflictError
		validation *ValidationError
		transport  *TransportError
		remote     *RemoteFailure
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &conflict):
		return fmt.Sprintf("Filename '%s' already exists", conflict.Filename)
	case errors.As(err, &validation):
		return validation.Error()
	case errors.As(err, &transport) && transport.Message != "":
		return transport.Message
	case errors.As(err, &remote):
		return remote.Error()
	default:
		return fallback
	}
}
