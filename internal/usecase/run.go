package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/Nat1anWasTaken/fortis/internal/audio"
	"github.com/Nat1anWasTaken/fortis/internal/domain"
	"github.com/Nat1anWasTaken/fortis/internal/metrics"
	"github.com/Nat1anWasTaken/fortis/internal/ports"
)

// activeRun holds everything tied to one recording run: the bounded chunk
// queue, the capture session feeding it, and the streaming session draining
// it. A run spans pause/resume, device switches and reconnects; it ends
// when the user stops or an unrecoverable error is acknowledged.
type activeRun struct {
	ctx    context.Context
	cancel context.CancelFunc

	queue *audio.Queue

	mu      sync.Mutex
	capture ports.CaptureSession
	stream  ports.StreamingSession
	session domain.CaptureSessionID
	device  domain.DeviceDescriptor
	// pending is a chunk that failed to send; owned by the network
	// goroutine, retried after reconnect so it is never silently lost.
	pending *domain.Chunk
	// sentSeq is the sequence number of the last chunk delivered to the
	// stream, used to stamp transcript events with the chunk range they
	// cover. Resets with the capture session.
	sentSeq uint64
	// resumeTo is the state a successful reconnect restores.
	resumeTo domain.SessionState

	startedAt time.Time
	recorded  time.Duration

	netDone   chan struct{}
	watchDone chan struct{}
}

func (r *activeRun) currentStream() ports.StreamingSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stream
}

func (r *activeRun) setStream(s ports.StreamingSession) {
	r.mu.Lock()
	r.stream = s
	r.mu.Unlock()
}

func (r *activeRun) currentCapture() ports.CaptureSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capture
}

func (r *activeRun) setCapture(c ports.CaptureSession, session domain.CaptureSessionID) {
	r.mu.Lock()
	r.capture = c
	r.session = session
	r.pending = nil
	r.sentSeq = 0
	r.mu.Unlock()
}

func (r *activeRun) currentSession() domain.CaptureSessionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

func (r *activeRun) setSession(id domain.CaptureSessionID) {
	r.mu.Lock()
	r.session = id
	r.sentSeq = 0
	r.mu.Unlock()
}

func (r *activeRun) lastSentSeq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sentSeq
}

func (r *activeRun) setResumeTo(state domain.SessionState) {
	r.mu.Lock()
	r.resumeTo = state
	r.mu.Unlock()
}

func (r *activeRun) resumeTarget() domain.SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resumeTo == "" {
		return domain.SessionStateRecording
	}
	return r.resumeTo
}

func (r *activeRun) currentDevice() domain.DeviceDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.device
}

func (r *activeRun) setDevice(d domain.DeviceDescriptor) {
	r.mu.Lock()
	r.device = d
	r.mu.Unlock()
}

// countingSink feeds the queue from the capture callback and keeps the
// pipeline metrics current. Push stays non-blocking.
type countingSink struct {
	queue   *audio.Queue
	metrics *metrics.Metrics
}

func (s *countingSink) Push(chunk domain.Chunk) bool {
	ok := s.queue.Push(chunk)
	s.metrics.ChunksProduced.Inc()
	s.metrics.QueueDepth.Set(float64(s.queue.Len()))
	return ok
}
