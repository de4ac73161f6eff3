// Package metrics exposes prometheus instrumentation for the audio
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all pipeline counters and gauges.
type Metrics struct {
	ChunksProduced    prometheus.Counter
	ChunksDropped     prometheus.Counter
	ChunksSent        prometheus.Counter
	QueueDepth        prometheus.Gauge
	ReconnectAttempts prometheus.Counter
	Reconnects        prometheus.Counter
	TranscriptEvents  *prometheus.CounterVec
	CaptureSessions   prometheus.Counter
}

// New creates and registers all pipeline metrics on the given registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ChunksProduced: factory.NewCounter(prometheus.CounterOpts{
			Name: "fortis_chunks_produced_total",
			Help: "Total number of audio chunks produced by the capture source",
		}),
		ChunksDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "fortis_chunks_dropped_total",
			Help: "Total number of audio chunks dropped by the bounded queue",
		}),
		ChunksSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "fortis_chunks_sent_total",
			Help: "Total number of audio chunks delivered to the transcription stream",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fortis_chunk_queue_depth",
			Help: "Current number of chunks waiting in the queue",
		}),
		ReconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "fortis_reconnect_attempts_total",
			Help: "Total number of reconnection attempts",
		}),
		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "fortis_reconnects_total",
			Help: "Total number of successful reconnections",
		}),
		TranscriptEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fortis_transcript_events_total",
			Help: "Total number of transcript events received, by kind",
		}, []string{"kind"}),
		CaptureSessions: factory.NewCounter(prometheus.CounterOpts{
			Name: "fortis_capture_sessions_total",
			Help: "Total number of capture sessions started",
		}),
	}
}
