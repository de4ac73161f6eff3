package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"

	"github.com/Nat1anWasTaken/fortis/internal/domain"
	"github.com/Nat1anWasTaken/fortis/internal/ports"
)

// Capture opens miniaudio capture devices and turns their data callbacks
// into fixed-duration chunks.
type Capture struct {
	ctx *Context
	log zerolog.Logger
}

func NewCapture(ctx *Context, log zerolog.Logger) *Capture {
	return &Capture{
		ctx: ctx,
		log: log.With().Str("component", "capture").Logger(),
	}
}

// Open starts capturing from the given device. The returned session's data
// callback does a fixed-size copy into the chunker and a non-blocking push
// into the sink; everything else happens outside the callback.
func (c *Capture) Open(ctx context.Context, device domain.DeviceID, cfg ports.CaptureConfig, sink ports.ChunkSink) (ports.CaptureSession, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}

	rawID, ok := c.ctx.lookup(ctx, device)
	if !ok {
		return nil, &domain.DeviceOpenError{Device: string(device), Err: errors.New("unknown device")}
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)

	session := &captureSession{
		rawID:    rawID,
		channels: cfg.Channels,
		chunker:  newChunker(cfg, sink),
		log:      c.log.With().Str("device", string(device)).Logger(),
	}
	deviceConfig.Capture.DeviceID = session.rawID.Pointer()

	callbacks := malgo.DeviceCallbacks{
		Data: session.onData,
	}

	dev, err := malgo.InitDevice(c.ctx.mctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, &domain.DeviceOpenError{Device: string(device), Err: err}
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, &domain.DeviceOpenError{Device: string(device), Err: err}
	}

	session.dev = dev
	session.log.Debug().
		Str("session", string(session.chunker.session)).
		Int("sample_rate", cfg.SampleRate).
		Int("channels", cfg.Channels).
		Msg("capture started")
	return session, nil
}

type captureSession struct {
	dev      *malgo.Device
	rawID    malgo.DeviceID
	channels int
	log      zerolog.Logger

	paused atomic.Bool

	// mu guards the chunker against concurrent rotation; the callback
	// holds it only for the copy.
	mu      sync.Mutex
	chunker *chunker

	closeOnce sync.Once
}

func (s *captureSession) onData(_, input []byte, _ uint32) {
	if s.paused.Load() || len(input) == 0 {
		return
	}
	if s.channels == 2 {
		input = downmixStereo(input)
	}
	s.mu.Lock()
	s.chunker.feed(input)
	s.mu.Unlock()
}

func (s *captureSession) ID() domain.CaptureSessionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunker.session
}

// Pause mutes the callback. The device keeps running so resume has no
// reopen gap.
func (s *captureSession) Pause() {
	s.paused.Store(true)
}

// Resume unmutes the callback under a fresh capture session; sequence
// numbers restart at 0 and any partial interval from before the pause is
// discarded.
func (s *captureSession) Resume() domain.CaptureSessionID {
	s.mu.Lock()
	id := s.chunker.rotate()
	s.mu.Unlock()
	s.paused.Store(false)
	s.log.Debug().Str("session", string(id)).Msg("capture resumed")
	return id
}

// Close stops the device and discards any trailing partial chunk. Idempotent.
func (s *captureSession) Close() error {
	s.closeOnce.Do(func() {
		s.paused.Store(true)
		if s.dev != nil {
			_ = s.dev.Stop()
			s.dev.Uninit()
		}
		s.log.Debug().Msg("capture closed")
	})
	return nil
}
