package metrics_collectors

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/benmeehan/mdm-poller/internal/constants"
)

// PollMetrics exposes poll loop activity as Prometheus collectors.
// A nil *PollMetrics is valid and records nothing.
type PollMetrics struct {
	Cycles         prometheus.Counter
	DeviceOutcomes *prometheus.CounterVec
	CycleDuration  prometheus.Histogram
	LastCycle      prometheus.Gauge
}

// NewPollMetrics registers the poll collectors with reg.
func NewPollMetrics(reg prometheus.Registerer) *PollMetrics {
	factory := promauto.With(reg)

	m := &PollMetrics{
		Cycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "mdm_poller_cycles_total",
			Help: "Completed poll cycles",
		}),
		DeviceOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mdm_poller_device_outcomes_total",
			Help: "Per-device poll results by outcome",
		}, []string{"outcome"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mdm_poller_cycle_duration_seconds",
			Help:    "Wall time of one pass over all devices",
			Buckets: prometheus.DefBuckets,
		}),
		LastCycle: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mdm_poller_last_cycle_timestamp_seconds",
			Help: "Unix time the last poll cycle finished",
		}),
	}

	for _, outcome := range constants.AllOutcomes {
		m.DeviceOutcomes.WithLabelValues(string(outcome))
	}

	return m
}

// RecordOutcome counts one device result.
func (m *PollMetrics) RecordOutcome(outcome constants.PollOutcome) {
	if m == nil {
		return
	}
	m.DeviceOutcomes.WithLabelValues(string(outcome)).Inc()
}

// ObserveCycle records a finished cycle.
func (m *PollMetrics) ObserveCycle(duration time.Duration, finishedAt time.Time) {
	if m == nil {
		return
	}
	m.Cycles.Inc()
	m.CycleDuration.Observe(duration.Seconds())
	m.LastCycle.Set(float64(finishedAt.Unix()))
}
