package voice

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied means the user or OS refused microphone access
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrDeviceUnavailable means a capture or playback device could not be used
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrInvalidConfig is returned by Start for a malformed Config
	ErrInvalidConfig = errors.New("invalid voice session config")
	// ErrSessionStopped is returned by Start when the session was stopped or
	// replaced before it finished opening
	ErrSessionStopped = errors.New("voice session stopped")
	// ErrHandshakeTimeout is wrapped in a ConnectionError when the remote
	// does not become ready in time
	ErrHandshakeTimeout = errors.New("live handshake timed out")
)

// ConnectionError reports a failure of the remote streaming connection
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("live connection %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// DecodeError reports an inbound audio payload that could not be decoded.
// It is recovered locally; the chunk is skipped.
type DecodeError struct {
	MIMEType string
	Size     int
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode audio payload (%s, %d bytes): %v", e.MIMEType, e.Size, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func captureError(err error) error {
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceUnavailable) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}

// failureReason is the metrics label for a terminal session error
func failureReason(err error) string {
	var connErr *ConnectionError
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrDeviceUnavailable):
		return "device_unavailable"
	case errors.Is(err, ErrHandshakeTimeout):
		return "handshake_timeout"
	case errors.As(err, &connErr):
		return "connection"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}
