package voice

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voice"

// Metrics holds the Prometheus instruments of the voice pipeline
type Metrics struct {
	SessionsStarted  prometheus.Counter
	SessionsFailed   *prometheus.CounterVec
	SessionsActive   prometheus.Gauge
	HandshakeLatency prometheus.Histogram

	FramesSent    prometheus.Counter
	FramesDropped prometheus.Counter
	SendErrors    prometheus.Counter

	ChunksScheduled prometheus.Counter
	DecodeErrors    prometheus.Counter
	Interruptions   prometheus.Counter
	TurnsCompleted  prometheus.Counter
}

// NewMetrics creates the instruments and registers them with reg.
// A nil reg creates unregistered instruments.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Voice sessions started",
		}),
		SessionsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Voice sessions ended by an error",
		}, []string{"reason"}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Voice sessions currently open",
		}),
		HandshakeLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handshake_seconds",
			Help:      "Time from Start until the remote is ready",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		FramesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Microphone frames sent to the remote",
		}),
		FramesDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Microphone frames dropped because the send queue was full",
		}),
		SendErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_errors_total",
			Help:      "Microphone frames the transport failed to send",
		}),
		ChunksScheduled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_scheduled_total",
			Help:      "Output audio chunks scheduled for playback",
		}),
		DecodeErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Inbound audio payloads skipped because they could not be decoded",
		}),
		Interruptions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interruptions_total",
			Help:      "Barge-in interruptions handled",
		}),
		TurnsCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_completed_total",
			Help:      "Conversation turns flushed to chat history",
		}),
	}
}
