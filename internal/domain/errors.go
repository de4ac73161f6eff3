package domain

import (
	"errors"
	"fmt"
)

// ErrConfigIncomplete is returned when the settings required to open a
// transcription session (api key, language, model) are not all present.
var ErrConfigIncomplete = errors.New("settings required: api key, language and model must be configured")

// ErrOutOfOrder is returned by the transcript log when a segment's start
// offset precedes the last committed end.
var ErrOutOfOrder = errors.New("transcript segment out of order")

// DeviceEnumerationError wraps a failure to query the platform audio layer.
type DeviceEnumerationError struct {
	Err error
}

func (e *DeviceEnumerationError) Error() string {
	return fmt.Sprintf("device enumeration failed: %v", e.Err)
}

func (e *DeviceEnumerationError) Unwrap() error { return e.Err }

// DeviceOpenError wraps a failure to open a capture device, including
// permission-denied and exclusive-hold conditions.
type DeviceOpenError struct {
	Device string
	Err    error
}

func (e *DeviceOpenError) Error() string {
	return fmt.Sprintf("failed to open device %q: %v", e.Device, e.Err)
}

func (e *DeviceOpenError) Unwrap() error { return e.Err }

// AuthError indicates the transcription endpoint rejected the credential.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("transcription auth rejected: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ConnectError indicates the transcription endpoint could not be reached.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("transcription connect failed: %v", e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// SendError indicates a chunk could not be delivered because the streaming
// connection is down. The chunk is not consumed; callers retry after the
// session is reopened.
type SendError struct {
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("failed to send audio: %v", e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
