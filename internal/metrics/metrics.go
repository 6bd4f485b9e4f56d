// Package metrics holds the Prometheus collectors for the document store.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "docstore"
	subsystem = "store"
)

// Operation outcome labels.
const (
	StatusOK    = "ok"
	StatusError = "error"
	StatusMiss  = "miss"
)

// Metrics tracks store operations, retries, decode failures and janitor passes.
type Metrics struct {
	ops            *prometheus.CounterVec   // Operations by op and status
	duration       *prometheus.HistogramVec // Operation latency by op
	retries        *prometheus.CounterVec   // Retried attempts by op
	decodeFailures *prometheus.CounterVec   // Rows skipped on decode by op

	janitorPasses *prometheus.CounterVec // Janitor passes by status
	janitorPurged prometheus.Counter     // Expired rows removed
}

// New creates the collectors and registers them with reg.
// It returns nil, nil when reg is nil: metrics disabled.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "operations_total",
			Help:      "Total store operations by outcome",
		}, []string{"op", "status"}),

		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "operation_duration_seconds",
			Help:      "Store operation latency, retries included",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"op"}),

		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "retries_total",
			Help:      "Statement attempts retried after a transient failure",
		}, []string{"op"}),

		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "decode_failures_total",
			Help:      "Rows skipped because they could not be decoded",
		}, []string{"op"}),

		janitorPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "janitor",
			Name:      "passes_total",
			Help:      "Janitor purge passes by outcome",
		}, []string{"status"}),

		janitorPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "janitor",
			Name:      "purged_total",
			Help:      "Expired documents removed by the janitor",
		}),
	}

	var err error
	if m.ops, err = register(reg, m.ops); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.retries, err = register(reg, m.retries); err != nil {
		return nil, err
	}
	if m.decodeFailures, err = register(reg, m.decodeFailures); err != nil {
		return nil, err
	}
	if m.janitorPasses, err = register(reg, m.janitorPasses); err != nil {
		return nil, err
	}
	if m.janitorPurged, err = register(reg, m.janitorPurged); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, reusing an identical collector registered by
// another store sharing the registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Observe records one operation.
func (m *Metrics) Observe(op, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op, status).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Retry records one retried attempt.
func (m *Metrics) Retry(op string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op).Inc()
}

// DecodeFailure records one skipped row.
func (m *Metrics) DecodeFailure(op string) {
	if m == nil {
		return
	}
	m.decodeFailures.WithLabelValues(op).Inc()
}

// JanitorPass records one janitor pass.
func (m *Metrics) JanitorPass(purged int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.janitorPasses.WithLabelValues(StatusError).Inc()
		return
	}
	m.janitorPasses.WithLabelValues(StatusOK).Inc()
	m.janitorPurged.Add(float64(purged))
}
