package collector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	samplerTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vmonitor_sampler_ticks_total",
			Help: "Sampler ticks by result",
		},
		[]string{"result"},
	)

	samplerReadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vmonitor_sampler_read_duration_seconds",
			Help:    "Host metrics read latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	samplerSequence = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vmonitor_sampler_last_sequence",
			Help: "Sequence number of the last produced sample",
		},
	)
)
