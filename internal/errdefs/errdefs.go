package errdefs

import (
	"errors"
	"fmt"
)

// Kind classifies client errors. No kind is fatal to the process; the worst
// outcome is a disconnected session waiting for its reconnect timer.
type Kind string

const (
	// KindNotConnected means a command was issued while the transport is down.
	KindNotConnected Kind = "not_connected"
	// KindTransportError is a socket-level failure; it schedules a reconnect.
	KindTransportError Kind = "transport_error"
	// KindDecodeError is a malformed or unknown inbound payload; dropped.
	KindDecodeError Kind = "decode_error"
	// KindCaptureTimeout means no capture response arrived within the window.
	KindCaptureTimeout Kind = "capture_timeout"
	// KindCaptureFailed is an explicit failure response from the station.
	KindCaptureFailed Kind = "capture_failed"
)

// Error is a classified client error.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NotConnected reports a command issued without a connection.
func NotConnected(message string) *Error {
	return &Error{Kind: KindNotConnected, Message: message}
}

// Transport reports a socket-level failure.
func Transport(message string, cause error) *Error {
	return &Error{Kind: KindTransportError, Message: message, Cause: cause}
}

// Decode reports a malformed inbound payload.
func Decode(message string, cause error) *Error {
	return &Error{Kind: KindDecodeError, Message: message, Cause: cause}
}

// CaptureTimeout reports a capture request that never got a response.
func CaptureTimeout(requestID string) *Error {
	return &Error{Kind: KindCaptureTimeout, Message: fmt.Sprintf("capture request %s timed out", requestID)}
}

// CaptureFailed reports an explicit failure response from the station.
func CaptureFailed(message string) *Error {
	return &Error{Kind: KindCaptureFailed, Message: message}
}

// IsKind reports whether err is a client error of the given kind.
func IsKind(err error, kind Kind) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}
