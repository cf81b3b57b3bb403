package remote

import (
	"errors"
	"fmt"

	"github.com/arloliu/go-hidlink/ddcci"
)

var (
	// ErrNotFound is returned when the executor could not find the adapter, monitor or handle.
	ErrNotFound = errors.New("remote: device not found")
	// ErrRemoteFailure is returned when the executor reports a generic error.
	ErrRemoteFailure = errors.New("remote: request failed")
	// ErrEmptyResponse is returned for a successful response that carries no body.
	ErrEmptyResponse = errors.New("remote: response was unexpectedly empty")
	// ErrSessionClosed is returned for requests on a session that has ended.
	ErrSessionClosed = errors.New("remote: session closed")
	// ErrServiceClosed is returned once the service has been closed.
	ErrServiceClosed = errors.New("remote: service closed")
	// ErrRequestTimeout is returned when no response arrived within the request timeout.
	ErrRequestTimeout = errors.New("remote: request timeout")
	// ErrMalformedMessage is returned for messages that cannot be decoded.
	ErrMalformedMessage = errors.New("remote: malformed message")
)

// statusError maps a response status to the error kind callers match on.
func statusError(kind Kind, st Status) error {
	switch st {
	case StatusSuccess:
		return nil
	case StatusNotFound:
		return fmt.Errorf("%s: %w", kind, ErrNotFound)
	case StatusInvalidVcpCode:
		return fmt.Errorf("%s: %w", kind, ddcci.ErrUnsupportedVCP)
	case StatusError:
		return fmt.Errorf("%s: %w", kind, ErrRemoteFailure)
	default:
		return fmt.Errorf("%s: %w: unknown status %d", kind, ErrRemoteFailure, uint8(st))
	}
}

// errorStatus is the executor side inverse of statusError.
func errorStatus(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, ErrNotFound):
		return StatusNotFound
	case errors.Is(err, ddcci.ErrUnsupportedVCP):
		return StatusInvalidVcpCode
	default:
		return StatusError
	}
}
