// Package metrics exposes Prometheus collectors for number allocation and
// the database pool.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"docseq/internal/core/apperror"
	"docseq/internal/core/numerator"
	"docseq/internal/domain/sequence"
	"docseq/internal/infrastructure/storage/postgres"
)

const namespace = "docseq"

// SequenceMetrics implements sequence.Metrics.
type SequenceMetrics struct {
	allocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	dateRanges  *prometheus.CounterVec
}

var _ sequence.Metrics = (*SequenceMetrics)(nil)

// NewSequenceMetrics registers allocation collectors on reg.
func NewSequenceMetrics(reg prometheus.Registerer) *SequenceMetrics {
	factory := promauto.With(reg)
	return &SequenceMetrics{
		allocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "allocations_total",
				Help:      "Number allocations by strategy and outcome.",
			},
			[]string{"strategy", "result"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "allocation_duration_seconds",
				Help:      "Time spent allocating a number, lock waits included.",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"strategy"},
		),
		dateRanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "date_ranges_created_total",
				Help:      "Date ranges created on first use.",
			},
			[]string{"strategy"},
		),
	}
}

// ObserveAllocation implements sequence.Metrics.
func (m *SequenceMetrics) ObserveAllocation(strategy numerator.Strategy, elapsed time.Duration, err error) {
	m.allocations.WithLabelValues(strategy.String(), resultLabel(err)).Inc()
	m.duration.WithLabelValues(strategy.String()).Observe(elapsed.Seconds())
}

// DateRangeCreated implements sequence.Metrics.
func (m *SequenceMetrics) DateRangeCreated(strategy numerator.Strategy) {
	m.dateRanges.WithLabelValues(strategy.String()).Inc()
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if appErr, ok := apperror.AsAppError(err); ok {
		return strings.ToLower(appErr.Code)
	}
	return "error"
}

// RegisterPoolStats exposes connection pool gauges read from stats on
// every scrape.
func RegisterPoolStats(reg prometheus.Registerer, stats func() postgres.PoolStats) {
	factory := promauto.With(reg)
	gauge := func(name, help string, value func(postgres.PoolStats) float64) {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return value(stats()) })
	}

	gauge("total_conns", "Open connections.", func(s postgres.PoolStats) float64 { return float64(s.TotalConns) })
	gauge("acquired_conns", "Connections in use.", func(s postgres.PoolStats) float64 { return float64(s.AcquiredConns) })
	gauge("idle_conns", "Idle connections.", func(s postgres.PoolStats) float64 { return float64(s.IdleConns) })
	gauge("max_conns", "Pool size limit.", func(s postgres.PoolStats) float64 { return float64(s.MaxConns) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "db_pool",
		Name:      "acquire_total",
		Help:      "Connection acquisitions.",
	}, func() float64 { return float64(stats().AcquireCount) })
}
