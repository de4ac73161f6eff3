package domain

import "time"

// SessionState models the recording pipeline lifecycle.
type SessionState string

const (
	SessionStateIdle            SessionState = "idle"
	SessionStateRecording       SessionState = "recording"
	SessionStatePaused          SessionState = "paused"
	SessionStateReconnecting    SessionState = "reconnecting"
	SessionStateSwitchingDevice SessionState = "switching_device"
	SessionStateError           SessionState = "error"
)

// StateReason provides a structured reason for state transitions.
type StateReason string

const (
	ReasonStarted             StateReason = "recording_started"
	ReasonPaused              StateReason = "recording_paused"
	ReasonResumed             StateReason = "recording_resumed"
	ReasonDeviceSwitched      StateReason = "device_switched"
	ReasonDisconnected        StateReason = "stream_disconnected"
	ReasonReconnected         StateReason = "stream_reconnected"
	ReasonReconnectsExhausted StateReason = "reconnect_attempts_exhausted"
	ReasonDeviceRemoved       StateReason = "device_removed"
	ReasonDeviceOpenFailed    StateReason = "device_open_failed"
	ReasonAuthRejected        StateReason = "auth_rejected"
	ReasonStopped             StateReason = "recording_stopped"
	ReasonAcknowledged        StateReason = "error_acknowledged"
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeConfig        ErrorCode = "config_incomplete"
	ErrorCodeDevice        ErrorCode = "device"
	ErrorCodeAuth          ErrorCode = "auth"
	ErrorCodeConnect       ErrorCode = "connect"
	ErrorCodeStream        ErrorCode = "stream"
	ErrorCodeChunkDropped  ErrorCode = "chunk_dropped"
	ErrorCodeTranscriptLog ErrorCode = "transcript_log"
)

// DeviceID is an opaque identifier for an audio input device.
type DeviceID string

// DeviceDescriptor describes one enumerated input device. Descriptors are
// immutable snapshots; re-enumeration replaces them wholesale.
type DeviceDescriptor struct {
	ID            DeviceID
	Name          string
	IsDefault     bool
	MinChannels   int
	MaxChannels   int
	MinSampleRate int
	MaxSampleRate int
}

// CaptureSessionID identifies one continuous capture run against a device.
type CaptureSessionID string

// Chunk is a fixed-duration slice of captured PCM audio. Sequence numbers
// are per capture session, starting at 0 with no gaps.
type Chunk struct {
	Session    CaptureSessionID
	Seq        uint64
	Timestamp  time.Time
	PCM        []byte
	SampleRate int
	Channels   int
}

// Duration returns the audio duration covered by the chunk's samples.
func (c Chunk) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	samples := len(c.PCM) / (2 * c.Channels)
	return time.Duration(samples) * time.Second / time.Duration(c.SampleRate)
}

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental transcription output from a
// provider. Start/End are character offsets into the logical transcript of
// the capture session the event belongs to. A partial fully supersedes the
// previous partial for the same session; finals are immutable once emitted.
type TranscriptEvent struct {
	Kind     TranscriptKind
	Text     string
	Start    int
	End      int
	Session  CaptureSessionID
	FirstSeq uint64
	LastSeq  uint64
}

// Status summarizes the current runtime status for the display layer.
type Status struct {
	State         SessionState  `json:"state"`
	Reason        StateReason   `json:"reason,omitempty"`
	Device        string        `json:"device,omitempty"`
	Message       string        `json:"message,omitempty"`
	Elapsed       time.Duration `json:"elapsed"`
	ChunksDropped uint64        `json:"chunksDropped"`
}

// Active reports whether a capture run is in progress.
func (s Status) Active() bool {
	switch s.State {
	case SessionStateRecording, SessionStatePaused, SessionStateReconnecting, SessionStateSwitchingDevice:
		return true
	}
	return false
}
