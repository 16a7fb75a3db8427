package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vmonitor_session_state",
			Help: "Current session state per endpoint (0 disconnected, 1 connecting, 2 connected, 3 backoff, 4 failed)",
		},
		[]string{"endpoint"},
	)

	samplesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vmonitor_samples_delivered_total",
			Help: "Samples written to the endpoint connection",
		},
		[]string{"endpoint"},
	)

	samplesSuperseded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vmonitor_samples_superseded_total",
			Help: "Samples replaced in the mailbox by a newer one before delivery",
		},
		[]string{"endpoint"},
	)

	connectFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vmonitor_connect_failures_total",
			Help: "Failed connection attempts and dropped connections per endpoint",
		},
		[]string{"endpoint", "op"},
	)

	sessionsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vmonitor_sessions_failed_total",
			Help: "Sessions that reached the terminal failed state",
		},
		[]string{"endpoint", "reason"},
	)

	decodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vmonitor_decode_errors_total",
			Help: "Inbound frames that could not be decoded",
		},
		[]string{"endpoint"},
	)

	writeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vmonitor_write_duration_seconds",
			Help:    "Envelope write latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
)
