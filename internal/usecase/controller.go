package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Nat1anWasTaken/fortis/internal/audio"
	"github.com/Nat1anWasTaken/fortis/internal/domain"
	"github.com/Nat1anWasTaken/fortis/internal/metrics"
	"github.com/Nat1anWasTaken/fortis/internal/ports"
	"github.com/Nat1anWasTaken/fortis/internal/transcript"
)

// ErrInvalidState is returned for a command that is not legal in the
// current state, including commands arriving while another transition is
// still settling.
var ErrInvalidState = errors.New("command not valid in current state")

// Config controls pipeline behavior.
type Config struct {
	Capture       ports.CaptureConfig
	Stream        ports.StreamConfig
	Settings      ports.Settings
	QueueCapacity int
	Backoff       Backoff
}

// Controller is the session state machine: it owns the Idle / Recording /
// Paused / Reconnecting / SwitchingDevice / Error lifecycle and wires the
// capture source, chunk queue and transcription session together. Commands
// are serialized; one transition runs at a time.
type Controller struct {
	registry   ports.DeviceRegistry
	capture    ports.CaptureSource
	provider   ports.TranscriptionProvider
	sink       ports.EventSink
	transcript *transcript.Log
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	cfg        Config

	// cmdMu serializes commands end to end; stateMu guards the state
	// fields so the network and watcher goroutines can transition without
	// taking the command lock.
	cmdMu sync.Mutex

	stateMu sync.Mutex
	state   domain.SessionState
	reason  domain.StateReason
	message string
	run     *activeRun
}

func NewController(
	registry ports.DeviceRegistry,
	capture ports.CaptureSource,
	provider ports.TranscriptionProvider,
	log *transcript.Log,
	sink ports.EventSink,
	m *metrics.Metrics,
	logger zerolog.Logger,
	cfg Config,
) *Controller {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = audio.DefaultQueueCapacity
	}
	if cfg.Backoff.MaxAttempts <= 0 {
		cfg.Backoff = DefaultBackoff()
	}
	return &Controller{
		registry:   registry,
		capture:    capture,
		provider:   provider,
		sink:       sink,
		transcript: log,
		metrics:    m,
		logger:     logger.With().Str("component", "controller").Logger(),
		cfg:        cfg,
		state:      domain.SessionStateIdle,
	}
}

// Start opens the selected device and the transcription session and begins
// recording. Both must succeed; on any failure the controller stays Idle.
// An empty device id selects the system default.
func (c *Controller) Start(ctx context.Context, device domain.DeviceID) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if c.State() != domain.SessionStateIdle {
		return ErrInvalidState
	}
	if err := c.validateSettings(); err != nil {
		c.sink.SessionError(domain.ErrorCodeConfig, err.Error())
		return err
	}

	descriptor, err := c.resolveDevice(ctx, device)
	if err != nil {
		c.sink.SessionError(domain.ErrorCodeDevice, err.Error())
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	queue := audio.NewQueue(c.cfg.QueueCapacity, func(total uint64) {
		c.metrics.ChunksDropped.Inc()
	})

	stream, err := c.provider.Open(runCtx, c.cfg.Settings, c.cfg.Stream)
	if err != nil {
		cancel()
		queue.Close()
		c.reportOpenError(err)
		return err
	}

	sink := &countingSink{queue: queue, metrics: c.metrics}
	captureSession, err := c.capture.Open(ctx, descriptor.ID, c.cfg.Capture, sink)
	if err != nil {
		_ = stream.Close()
		cancel()
		queue.Close()
		c.sink.SessionError(domain.ErrorCodeDevice, err.Error())
		return err
	}

	run := &activeRun{
		ctx:       runCtx,
		cancel:    cancel,
		queue:     queue,
		capture:   captureSession,
		stream:    stream,
		session:   captureSession.ID(),
		device:    descriptor,
		startedAt: time.Now(),
		netDone:   make(chan struct{}),
		watchDone: make(chan struct{}),
	}
	c.metrics.CaptureSessions.Inc()

	c.stateMu.Lock()
	c.run = run
	c.stateMu.Unlock()

	c.logger.Info().
		Str("device", descriptor.Name).
		Str("session", string(run.session)).
		Msg("recording started")
	// Report Recording before the loops run: an immediate disconnect must
	// observe Recording and transition from it, not race it.
	c.setState(domain.SessionStateRecording, domain.ReasonStarted)

	go c.networkLoop(run)
	go c.watchRemovals(run)
	return nil
}

// Pause mutes capture and drains the queue. The device stays open so resume
// has no reopen gap; the streaming session is kept alive with keep-alives.
func (c *Controller) Pause() error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	run := c.currentRun()
	switch c.State() {
	case domain.SessionStatePaused:
		return nil
	case domain.SessionStateRecording:
	default:
		return ErrInvalidState
	}

	run.currentCapture().Pause()
	run.queue.Drain()

	c.stateMu.Lock()
	run.recorded += time.Since(run.startedAt)
	c.stateMu.Unlock()

	c.setState(domain.SessionStatePaused, domain.ReasonPaused)
	return nil
}

// Resume starts a new capture session against the same device; sequence
// numbers restart at 0.
func (c *Controller) Resume() error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	run := c.currentRun()
	switch c.State() {
	case domain.SessionStateRecording:
		return nil
	case domain.SessionStatePaused:
	default:
		return ErrInvalidState
	}

	session := run.currentCapture().Resume()
	run.setSession(session)
	c.metrics.CaptureSessions.Inc()

	c.stateMu.Lock()
	run.startedAt = time.Now()
	c.stateMu.Unlock()

	c.logger.Info().Str("session", string(session)).Msg("recording resumed")
	c.setState(domain.SessionStateRecording, domain.ReasonResumed)
	return nil
}

// SelectDevice switches capture to another device mid-run. The queue is
// drained and the old capture source closed before the new device opens, so
// chunks from the two capture sessions never interleave. The streaming
// session is unaffected; a switch while Reconnecting swaps capture and
// leaves the backoff loop to restore Recording once the stream is back.
func (c *Controller) SelectDevice(ctx context.Context, device domain.DeviceID) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	run := c.currentRun()
	state := c.State()
	switch state {
	case domain.SessionStateRecording, domain.SessionStatePaused, domain.SessionStateReconnecting:
	default:
		return ErrInvalidState
	}

	descriptor, err := c.resolveDevice(ctx, device)
	if err != nil {
		c.sink.SessionError(domain.ErrorCodeDevice, err.Error())
		return err
	}

	reconnecting := state == domain.SessionStateReconnecting
	if !reconnecting {
		c.setState(domain.SessionStateSwitchingDevice, domain.ReasonDeviceSwitched)
	}

	_ = run.currentCapture().Close()
	run.queue.Drain()

	sink := &countingSink{queue: run.queue, metrics: c.metrics}
	captureSession, err := c.capture.Open(ctx, descriptor.ID, c.cfg.Capture, sink)
	if err != nil {
		c.setErrorState(run, err.Error(), domain.ReasonDeviceOpenFailed)
		c.sink.SessionError(domain.ErrorCodeDevice, err.Error())
		return err
	}

	run.setCapture(captureSession, captureSession.ID())
	run.setDevice(descriptor)
	c.metrics.CaptureSessions.Inc()

	c.stateMu.Lock()
	run.startedAt = time.Now()
	c.stateMu.Unlock()

	c.logger.Info().
		Str("device", descriptor.Name).
		Str("session", string(captureSession.ID())).
		Msg("device switched")
	if reconnecting {
		// The new capture session is live, so the reconnect resumes into
		// Recording even if the disconnect happened while Paused. Same
		// implicit resume a switch from Paused performs.
		run.setResumeTo(domain.SessionStateRecording)
	} else {
		c.setState(domain.SessionStateRecording, domain.ReasonDeviceSwitched)
	}
	return nil
}

// Stop tears the run down in dependency order: capture first (no new
// chunks), then the streaming session, then the queue and the run context.
func (c *Controller) Stop() error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	return c.teardown(domain.ReasonStopped)
}

// Acknowledge returns from the Error state to Idle after the user has seen
// the failure.
func (c *Controller) Acknowledge() error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if c.State() != domain.SessionStateError {
		return ErrInvalidState
	}
	return c.teardown(domain.ReasonAcknowledged)
}

func (c *Controller) teardown(reason domain.StateReason) error {
	c.stateMu.Lock()
	run := c.run
	c.run = nil
	c.stateMu.Unlock()

	if run == nil {
		if c.State() != domain.SessionStateIdle {
			c.setState(domain.SessionStateIdle, reason)
		}
		return nil
	}

	capture := run.currentCapture()
	capture.Pause()
	_ = capture.Close()

	run.cancel()
	if stream := run.currentStream(); stream != nil {
		_ = stream.Close()
	}
	<-run.netDone
	<-run.watchDone
	run.queue.Close()

	c.logger.Info().Msg("recording stopped")
	c.setState(domain.SessionStateIdle, reason)
	return nil
}

// State returns the current session state.
func (c *Controller) State() domain.SessionState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// Status returns a snapshot for the display layer. Elapsed excludes paused
// time.
func (c *Controller) Status() domain.Status {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	status := domain.Status{
		State:   c.state,
		Reason:  c.reason,
		Message: c.message,
	}
	if c.run != nil {
		status.Device = c.run.currentDevice().Name
		status.ChunksDropped = c.run.queue.Dropped()
		status.Elapsed = c.run.recorded
		if c.state == domain.SessionStateRecording {
			status.Elapsed += time.Since(c.run.startedAt)
		}
	}
	return status
}

func (c *Controller) setState(state domain.SessionState, reason domain.StateReason) {
	c.stateMu.Lock()
	c.state = state
	c.reason = reason
	if state != domain.SessionStateError {
		c.message = ""
	}
	c.stateMu.Unlock()

	c.logger.Debug().Str("state", string(state)).Str("reason", string(reason)).Msg("state changed")
	c.sink.StateChanged(state, reason)
}

// setErrorState parks the controller in Error with a user-visible message;
// the run is kept so Acknowledge can release its resources.
func (c *Controller) setErrorState(run *activeRun, message string, reason domain.StateReason) {
	c.stateMu.Lock()
	c.state = domain.SessionStateError
	c.reason = reason
	c.message = message
	c.stateMu.Unlock()

	c.logger.Error().Str("reason", string(reason)).Msg(message)
	c.sink.StateChanged(domain.SessionStateError, reason)
}

func (c *Controller) currentRun() *activeRun {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.run
}

func (c *Controller) validateSettings() error {
	s := c.cfg.Settings
	if strings.TrimSpace(s.APIKey) == "" ||
		strings.TrimSpace(s.Language) == "" ||
		strings.TrimSpace(s.Model) == "" {
		return domain.ErrConfigIncomplete
	}
	return nil
}

func (c *Controller) resolveDevice(ctx context.Context, device domain.DeviceID) (domain.DeviceDescriptor, error) {
	if device == "" {
		descriptor, ok := c.registry.Default(ctx)
		if !ok {
			return domain.DeviceDescriptor{}, errors.New("no input devices available")
		}
		return descriptor, nil
	}

	devices, err := c.registry.List(ctx)
	if err != nil {
		return domain.DeviceDescriptor{}, err
	}
	for _, d := range devices {
		if d.ID == device {
			return d, nil
		}
	}
	return domain.DeviceDescriptor{}, &domain.DeviceOpenError{Device: string(device), Err: errors.New("device not found")}
}

func (c *Controller) reportOpenError(err error) {
	var authErr *domain.AuthError
	if errors.As(err, &authErr) {
		c.sink.SessionError(domain.ErrorCodeAuth, err.Error())
		return
	}
	if errors.Is(err, domain.ErrConfigIncomplete) {
		c.sink.SessionError(domain.ErrorCodeConfig, err.Error())
		return
	}
	c.sink.SessionError(domain.ErrorCodeConnect, err.Error())
}
