package bootstrap

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/Nat1anWasTaken/fortis/internal/audio"
	"github.com/Nat1anWasTaken/fortis/internal/config"
	"github.com/Nat1anWasTaken/fortis/internal/metrics"
	"github.com/Nat1anWasTaken/fortis/internal/ports"
	"github.com/Nat1anWasTaken/fortis/internal/providers/deepgram"
	"github.com/Nat1anWasTaken/fortis/internal/transcript"
	"github.com/Nat1anWasTaken/fortis/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.Controller
	Registry   ports.DeviceRegistry
	Transcript *transcript.Log
	Metrics    *metrics.Metrics
	Config     config.Config

	audioCtx *audio.Context
}

// Build wires the full pipeline against the real audio layer and the
// Deepgram provider.
func Build(cfg config.Config, sink ports.EventSink, logger zerolog.Logger, reg *prometheus.Registry) (*Services, error) {
	audioCtx, err := audio.NewContext()
	if err != nil {
		return nil, err
	}

	registry := audio.NewRegistry(audioCtx, cfg.Audio.PollInterval, logger)
	capture := audio.NewCapture(audioCtx, logger)
	provider := deepgram.NewProvider(deepgram.Config{
		APIBaseURL:  cfg.Transcriber.APIBaseURL,
		SmartFormat: cfg.Transcriber.SmartFormat,
	})

	services := assemble(cfg, registry, capture, provider, sink, logger, reg)
	services.audioCtx = audioCtx
	return services, nil
}

// Assemble wires the pipeline from caller-supplied ports; the entry point
// for tests and alternative providers.
func Assemble(
	cfg config.Config,
	registry ports.DeviceRegistry,
	capture ports.CaptureSource,
	provider ports.TranscriptionProvider,
	sink ports.EventSink,
	logger zerolog.Logger,
	reg *prometheus.Registry,
) *Services {
	return assemble(cfg, registry, capture, provider, sink, logger, reg)
}

func assemble(
	cfg config.Config,
	registry ports.DeviceRegistry,
	capture ports.CaptureSource,
	provider ports.TranscriptionProvider,
	sink ports.EventSink,
	logger zerolog.Logger,
	reg *prometheus.Registry,
) *Services {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := metrics.New(reg)
	log := transcript.NewLog()

	controller := usecase.NewController(
		registry,
		capture,
		provider,
		log,
		sink,
		m,
		logger,
		usecase.Config{
			Capture: ports.CaptureConfig{
				SampleRate:    cfg.Audio.SampleRate,
				Channels:      cfg.Audio.Channels,
				ChunkInterval: cfg.Audio.ChunkInterval(),
			},
			Stream: ports.StreamConfig{
				SampleRate:     cfg.Audio.SampleRate,
				Channels:       cfg.Audio.Channels,
				Encoding:       "linear16",
				InterimResults: true,
			},
			Settings: ports.Settings{
				APIKey:   cfg.Transcriber.APIKey,
				Language: cfg.Transcriber.Language,
				Model:    cfg.Transcriber.Model,
			},
			QueueCapacity: cfg.Queue.Capacity,
			Backoff: usecase.Backoff{
				Base:        durationOrDefault(cfg.Reconnect.BaseDelay, time.Second),
				Max:         durationOrDefault(cfg.Reconnect.MaxDelay, 30*time.Second),
				Jitter:      cfg.Reconnect.Jitter,
				MaxAttempts: cfg.Reconnect.MaxAttempts,
			},
		},
	)

	return &Services{
		Controller: controller,
		Registry:   registry,
		Transcript: log,
		Metrics:    m,
		Config:     cfg,
	}
}

// Close releases the pipeline in dependency order: controller first, then
// device subscriptions, then the platform audio layer.
func (s *Services) Close() error {
	err := s.Controller.Stop()
	if closeErr := s.Registry.Close(); err == nil {
		err = closeErr
	}
	if s.audioCtx != nil {
		if closeErr := s.audioCtx.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}

func durationOrDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
