package dbstate

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// maxMetrics is the FIFO retention window for per-operation samples
// (§4.6: "the manager retains the last 1000 metrics").
const maxMetrics = 1000

// OperationMetric records one primitive's execution.
type OperationMetric struct {
	Operation string
	Duration  time.Duration
	Timestamp time.Time
	WorkerID  string
	Strategy  Strategy
}

var (
	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "integr8_dbstate_operation_duration_seconds",
			Help: "Duration of database isolation primitives by operation and strategy.",
		},
		[]string{"operation", "strategy"},
	)
	operationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integr8_dbstate_operation_failures_total",
			Help: "Count of failed database isolation primitives by operation and strategy.",
		},
		[]string{"operation", "strategy"},
	)
)

func init() {
	prometheus.MustRegister(operationDuration, operationFailures)
}

// metricsRing is a FIFO-bounded buffer of the most recent operation
// metrics, used for the averages the Manager reports to callers.
type metricsRing struct {
	mu      sync.Mutex
	samples []OperationMetric
}

func newMetricsRing() *metricsRing {
	return &metricsRing{samples: make([]OperationMetric, 0, maxMetrics)}
}

func (r *metricsRing) record(m OperationMetric) {
	operationDuration.WithLabelValues(m.Operation, string(m.Strategy)).Observe(m.Duration.Seconds())

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.samples) >= maxMetrics {
		r.samples = r.samples[1:]
	}
	r.samples = append(r.samples, m)
}

func (r *metricsRing) recordFailure(operation string, strategy Strategy) {
	operationFailures.WithLabelValues(operation, string(strategy)).Inc()
}

// AverageByOperation returns the mean duration of every retained
// sample for operation, across all strategies.
func (r *metricsRing) AverageByOperation(operation string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total time.Duration
	var count int
	for _, s := range r.samples {
		if s.Operation == operation {
			total += s.Duration
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / time.Duration(count)
}

// AverageByStrategy returns the mean duration of every retained sample
// under strategy, across all operations.
func (r *metricsRing) AverageByStrategy(strategy Strategy) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total time.Duration
	var count int
	for _, s := range r.samples {
		if s.Strategy == strategy {
			total += s.Duration
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / time.Duration(count)
}

// timed runs fn, records its duration under operation/strategy, and
// propagates fn's error after recording a failure sample.
func (r *metricsRing) timed(operation string, strategy Strategy, workerID string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start)

	r.record(OperationMetric{Operation: operation, Duration: duration, Timestamp: start, WorkerID: workerID, Strategy: strategy})
	if err != nil {
		r.recordFailure(operation, strategy)
	}
	return err
}
