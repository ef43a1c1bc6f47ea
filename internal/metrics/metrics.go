// Package metrics exposes Prometheus instruments for the state machine.
//
// Every method is safe on a nil *Metrics so callers that run without
// metrics need no guards.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the instruments of one database.
type Metrics struct {
	OperationsApplied  *prometheus.CounterVec
	OperationsRejected *prometheus.CounterVec
	ApplyDuration      *prometheus.HistogramVec

	BlocksApplied prometheus.Counter
	BlocksPopped  prometheus.Counter
	FatalHalts    prometheus.Counter

	HeadBlock  prometheus.Gauge
	UndoDepth  prometheus.Gauge
	TagEntries prometheus.Gauge
}

// New creates the instruments under namespace and registers them with reg.
// A nil reg leaves them unregistered.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OperationsApplied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_applied_total",
				Help:      "Operations applied, by kind.",
			},
			[]string{"kind"},
		),
		OperationsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_rejected_total",
				Help:      "Operations rolled back, by kind and error code.",
			},
			[]string{"kind", "code"},
		),
		ApplyDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "apply_duration_seconds",
				Help:      "Time spent applying one operation, tag maintenance included.",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
			[]string{"kind"},
		),
		BlocksApplied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_applied_total",
			Help:      "Blocks applied.",
		}),
		BlocksPopped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_popped_total",
			Help:      "Blocks reverted from the undo history.",
		}),
		FatalHalts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fatal_halts_total",
			Help:      "Times the database stopped accepting writes after a fatal error.",
		}),
		HeadBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "head_block",
			Help:      "Number of the last applied block.",
		}),
		UndoDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "undo_depth",
			Help:      "Blocks held in the undo history.",
		}),
		TagEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tag_entries",
			Help:      "Live tag entries.",
		}),
	}
}

// ObserveOperation records one applied or rejected operation. code is empty
// on success.
func (m *Metrics) ObserveOperation(kind, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ApplyDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	if code == "" {
		m.OperationsApplied.WithLabelValues(kind).Inc()
		return
	}
	m.OperationsRejected.WithLabelValues(kind, code).Inc()
}

// ObserveBlock records an applied block and the resulting state sizes.
func (m *Metrics) ObserveBlock(number uint32, undoDepth, tagEntries int) {
	if m == nil {
		return
	}
	m.BlocksApplied.Inc()
	m.SetState(number, undoDepth, tagEntries)
}

// ObservePop records a reverted block.
func (m *Metrics) ObservePop(number uint32, undoDepth, tagEntries int) {
	if m == nil {
		return
	}
	m.BlocksPopped.Inc()
	m.SetState(number, undoDepth, tagEntries)
}

// SetState updates the state gauges.
func (m *Metrics) SetState(number uint32, undoDepth, tagEntries int) {
	if m == nil {
		return
	}
	m.HeadBlock.Set(float64(number))
	m.UndoDepth.Set(float64(undoDepth))
	m.TagEntries.Set(float64(tagEntries))
}

// ObserveHalt records a fatal halt.
func (m *Metrics) ObserveHalt() {
	if m == nil {
		return
	}
	m.FatalHalts.Inc()
}
