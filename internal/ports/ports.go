package ports

import (
	"context"
	"time"

	"github.com/Nat1anWasTaken/fortis/internal/domain"
)

// DeviceRegistry enumerates capture devices and reports removals.
type DeviceRegistry interface {
	// List returns a snapshot of available input devices. The snapshot is
	// valid until the next enumeration.
	List(ctx context.Context) ([]domain.DeviceDescriptor, error)
	// Default returns the system default input device, if any.
	Default(ctx context.Context) (domain.DeviceDescriptor, bool)
	// Removals emits the id of a previously enumerated device that has
	// disappeared. The channel is closed when the registry is closed.
	Removals() <-chan domain.DeviceID
	Close() error
}

// CaptureConfig describes how the microphone should be captured.
type CaptureConfig struct {
	SampleRate    int
	Channels      int
	ChunkInterval time.Duration
}

// ChunkSink receives chunks from the capture callback. Push must never
// block: the callback runs under a hard real-time deadline.
type ChunkSink interface {
	Push(chunk domain.Chunk) bool
}

// CaptureSession is a live capture run against one device. Pause mutes the
// callback without releasing the device; Resume starts a new capture
// session with sequence numbers reset to 0.
type CaptureSession interface {
	ID() domain.CaptureSessionID
	Pause()
	Resume() domain.CaptureSessionID
	Close() error
}

// CaptureSource opens capture devices.
type CaptureSource interface {
	Open(ctx context.Context, device domain.DeviceID, cfg CaptureConfig, sink ChunkSink) (CaptureSession, error)
}

// Settings carries the credentials and options required to open a
// transcription session. Owned by the configuration layer, consumed
// read-only here.
type Settings struct {
	APIKey   string
	Language string
	Model    string
}

// StreamConfig describes provider-agnostic streaming settings.
type StreamConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
}

// StreamingSession is an active provider connection. Events closes
// permanently when the session ends; the session does not heal itself after
// a disconnect.
type StreamingSession interface {
	Send(chunk domain.Chunk) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	// Done is closed when the session has terminated for any reason.
	Done() <-chan struct{}
	// Err reports why the session terminated; nil for a clean close.
	Err() error
	Close() error
}

// TranscriptionProvider opens streaming transcription sessions.
type TranscriptionProvider interface {
	Open(ctx context.Context, settings Settings, cfg StreamConfig) (StreamingSession, error)
}

// EventSink emits pipeline state and errors to the display layer.
type EventSink interface {
	StateChanged(state domain.SessionState, reason domain.StateReason)
	SessionError(code domain.ErrorCode, detail string)
}
