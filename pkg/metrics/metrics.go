// Package metrics holds the Prometheus instruments shared by the capture,
// transmit and memory components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name
const Namespace = "rfsignal"

// Metrics groups all instruments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	PulsesCaptured  prometheus.Counter
	PulsesRejected  prometheus.Counter
	PulsesDropped   prometheus.Counter
	Captures        *prometheus.CounterVec
	Transmissions   *prometheus.CounterVec
	PoolFreeBytes   prometheus.Gauge
	PoolFragment    prometheus.Gauge
	Defragments     prometheus.Counter
	IntegrityErrors prometheus.Counter
	AllocFailures   prometheus.Counter
}

// New creates the instruments and registers them with reg. A nil registerer
// leaves them unregistered, which is what tests usually want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PulsesCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pulses_captured_total",
			Help:      "Pulse widths stored in the raw buffer.",
		}),
		PulsesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pulses_rejected_total",
			Help:      "Pulses discarded for being shorter than the minimum width.",
		}),
		PulsesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pulses_dropped_total",
			Help:      "Pulses discarded because the raw buffer was full.",
		}),
		Captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "captures_total",
			Help:      "Completed capture sessions by result.",
		}, []string{"result"}),
		Transmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "transmissions_total",
			Help:      "Transmissions by mode and result.",
		}, []string{"mode", "result"}),
		PoolFreeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "pool_free_bytes",
			Help:      "Free bytes in the sample memory pool.",
		}),
		PoolFragment: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "pool_fragmentation_percent",
			Help:      "Sample pool fragmentation (0-100).",
		}),
		Defragments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pool_defragmentations_total",
			Help:      "Defragmentation passes run on the sample pool.",
		}),
		IntegrityErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pool_integrity_failures_total",
			Help:      "Failed sample pool integrity checks.",
		}),
		AllocFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pool_allocation_failures_total",
			Help:      "Allocations that failed after recovery.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.PulsesCaptured,
			m.PulsesRejected,
			m.PulsesDropped,
			m.Captures,
			m.Transmissions,
			m.PoolFreeBytes,
			m.PoolFragment,
			m.Defragments,
			m.IntegrityErrors,
			m.AllocFailures,
		)
	}

	return m
}

// ObserveCapture records the totals of a finished capture session
func (m *Metrics) ObserveCapture(captured, rejected, dropped int, ok bool) {
	if m == nil {
		return
	}
	m.PulsesCaptured.Add(float64(captured))
	m.PulsesRejected.Add(float64(rejected))
	m.PulsesDropped.Add(float64(dropped))
	m.Captures.WithLabelValues(resultLabel(ok)).Inc()
}

// ObserveTransmission records one transmission attempt
func (m *Metrics) ObserveTransmission(mode string, ok bool) {
	if m == nil {
		return
	}
	m.Transmissions.WithLabelValues(mode, resultLabel(ok)).Inc()
}

// ObservePool publishes the pool gauges
func (m *Metrics) ObservePool(freeBytes int, fragmentation float64) {
	if m == nil {
		return
	}
	m.PoolFreeBytes.Set(float64(freeBytes))
	m.PoolFragment.Set(fragmentation)
}

// IncDefragment counts a defragmentation pass
func (m *Metrics) IncDefragment() {
	if m == nil {
		return
	}
	m.Defragments.Inc()
}

// IncIntegrityError counts a failed integrity check
func (m *Metrics) IncIntegrityError() {
	if m == nil {
		return
	}
	m.IntegrityErrors.Inc()
}

// IncAllocFailure counts an allocation that could not be recovered
func (m *Metrics) IncAllocFailure() {
	if m == nil {
		return
	}
	m.AllocFailures.Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
