package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the pipeline-level metrics every deployment exposes
type Metrics struct {
	// Ingest metrics
	EventsReceived   *prometheus.CounterVec
	EventsRejected   *prometheus.CounterVec
	EventsSampledOut *prometheus.CounterVec
	EventsBuffered   prometheus.Gauge
	EventsLost       prometheus.Counter

	// Flush metrics
	FlushesTotal   *prometheus.CounterVec
	FlushDuration  prometheus.Histogram
	FlushBatchSize prometheus.Histogram

	// Session metrics
	SessionRotations prometheus.Counter

	// Scoring metrics
	Predictions           *prometheus.CounterVec
	PredictionProbability prometheus.Histogram

	// Platform metrics
	ComponentStatus *prometheus.GaugeVec
	NATSConnected   prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all pipeline metrics
func NewMetrics() *Metrics {
	return &Metrics{
		EventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "focusstream",
				Subsystem: "events",
				Name:      "received_total",
				Help:      "Total events accepted by the validator",
			},
			[]string{"kind"},
		),

		EventsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "focusstream",
				Subsystem: "events",
				Name:      "rejected_total",
				Help:      "Total events rejected at validation",
			},
			[]string{"reason"},
		),

		EventsSampledOut: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "focusstream",
				Subsystem: "events",
				Name:      "sampled_out_total",
				Help:      "Total events suppressed by per-kind sampling",
			},
			[]string{"kind"},
		),

		EventsBuffered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "focusstream",
				Subsystem: "buffer",
				Name:      "events",
				Help:      "Events currently awaiting flush",
			},
		),

		EventsLost: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "focusstream",
				Subsystem: "buffer",
				Name:      "events_lost_total",
				Help:      "Events dropped after the buffer exceeded capacity during persistence outages",
			},
		),

		FlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "focusstream",
				Subsystem: "flush",
				Name:      "total",
				Help:      "Flush attempts by trigger and outcome",
			},
			[]string{"trigger", "status"},
		),

		FlushDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "focusstream",
				Subsystem: "flush",
				Name:      "duration_seconds",
				Help:      "Flush duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),

		FlushBatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "focusstream",
				Subsystem: "flush",
				Name:      "batch_size",
				Help:      "Events per flushed batch",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
		),

		SessionRotations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "focusstream",
				Subsystem: "session",
				Name:      "rotations_total",
				Help:      "Sessions rotated after the idle timeout",
			},
		),

		Predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "focusstream",
				Subsystem: "scoring",
				Name:      "predictions_total",
				Help:      "Predictions produced, by model version",
			},
			[]string{"model_version"},
		),

		PredictionProbability: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "focusstream",
				Subsystem: "scoring",
				Name:      "probability",
				Help:      "Distribution of predicted distraction probabilities",
				Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
			},
		),

		ComponentStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "focusstream",
				Subsystem: "component",
				Name:      "status",
				Help:      "Component lifecycle state (0=created, 1=initialized, 2=started, 3=stopped, 4=failed)",
			},
			[]string{"component"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "focusstream",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),
	}
}

// RecordEventReceived increments the received counter for a kind
func (m *Metrics) RecordEventReceived(kind string) {
	m.EventsReceived.WithLabelValues(kind).Inc()
}

// RecordEventRejected increments the rejected counter for a reason
func (m *Metrics) RecordEventRejected(reason string) {
	m.EventsRejected.WithLabelValues(reason).Inc()
}

// RecordEventSampledOut increments the sampling suppression counter for a kind
func (m *Metrics) RecordEventSampledOut(kind string) {
	m.EventsSampledOut.WithLabelValues(kind).Inc()
}

// RecordBufferSize updates the buffered events gauge
func (m *Metrics) RecordBufferSize(n int) {
	m.EventsBuffered.Set(float64(n))
}

// RecordEventsLost adds to the counted-loss counter
func (m *Metrics) RecordEventsLost(n int) {
	m.EventsLost.Add(float64(n))
}

// RecordFlush records one flush attempt
func (m *Metrics) RecordFlush(trigger, status string, batchSize int, duration time.Duration) {
	m.FlushesTotal.WithLabelValues(trigger, status).Inc()
	m.FlushDuration.Observe(duration.Seconds())
	if batchSize > 0 {
		m.FlushBatchSize.Observe(float64(batchSize))
	}
}

// RecordSessionRotation increments the rotation counter
func (m *Metrics) RecordSessionRotation() {
	m.SessionRotations.Inc()
}

// RecordPrediction records one produced prediction
func (m *Metrics) RecordPrediction(modelVersion string, probability float64) {
	m.Predictions.WithLabelValues(modelVersion).Inc()
	m.PredictionProbability.Observe(probability)
}

// RecordComponentStatus updates a component's lifecycle state gauge
func (m *Metrics) RecordComponentStatus(component string, state int) {
	m.ComponentStatus.WithLabelValues(component).Set(float64(state))
}

// RecordNATSStatus updates the NATS connection gauge
func (m *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	m.NATSConnected.Set(value)
}
