package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TrackingMetrics records metadata for location ping processing.
type TrackingMetrics struct {
	cycleDuration  *prometheus.HistogramVec
	pings          *prometheus.CounterVec
	stopsCompleted *prometheus.CounterVec
	delays         *prometheus.CounterVec
	oracleLatency  prometheus.Histogram
}

// NewTrackingMetrics registers the tracking metrics on the provided registerer.
func NewTrackingMetrics(reg prometheus.Registerer) *TrackingMetrics {
	if reg == nil {
		return &TrackingMetrics{}
	}
	cycleDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tracking_cycle_duration_seconds",
		Help:    "Duration of location ping cycles in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	pings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_pings_total",
		Help: "Processed location pings by outcome.",
	}, []string{"outcome"})
	stopsCompleted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_stops_completed_total",
		Help: "Route stops completed by stop type.",
	}, []string{"stop_type"})
	delays := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_delays_detected_total",
		Help: "Delay events recorded during ping cycles.",
	}, []string{"route_status"})
	oracleLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracking_oracle_latency_seconds",
		Help:    "Latency of distance oracle calls in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(cycleDuration, pings, stopsCompleted, delays, oracleLatency)
	return &TrackingMetrics{
		cycleDuration:  cycleDuration,
		pings:          pings,
		stopsCompleted: stopsCompleted,
		delays:         delays,
		oracleLatency:  oracleLatency,
	}
}

// ObserveCycle records the duration for a ping cycle with the given outcome.
func (t *TrackingMetrics) ObserveCycle(outcome string, duration time.Duration) {
	if t == nil || t.cycleDuration == nil {
		return
	}
	t.cycleDuration.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}

// IncPing increments the ping counter for the given outcome.
func (t *TrackingMetrics) IncPing(outcome string) {
	if t == nil || t.pings == nil {
		return
	}
	t.pings.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncStopCompleted increments the completed-stop counter for the stop type.
func (t *TrackingMetrics) IncStopCompleted(stopType string) {
	if t == nil || t.stopsCompleted == nil {
		return
	}
	t.stopsCompleted.WithLabelValues(normalizeLabel(stopType)).Inc()
}

// IncDelay increments the delay counter for the route status.
func (t *TrackingMetrics) IncDelay(routeStatus string) {
	if t == nil || t.delays == nil {
		return
	}
	t.delays.WithLabelValues(normalizeLabel(routeStatus)).Inc()
}

// ObserveOracleLatency records the duration of a distance oracle call.
func (t *TrackingMetrics) ObserveOracleLatency(duration time.Duration) {
	if t == nil || t.oracleLatency == nil {
		return
	}
	t.oracleLatency.Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
