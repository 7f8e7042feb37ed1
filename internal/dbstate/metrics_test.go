package dbstate

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsRingAverageByOperationAcrossStrategies(t *testing.T) {
	r := newMetricsRing()
	r.record(OperationMetric{Operation: "snapshot", Duration: 100 * time.Millisecond, Strategy: StrategySchema})
	r.record(OperationMetric{Operation: "snapshot", Duration: 300 * time.Millisecond, Strategy: StrategyDatabase})
	r.record(OperationMetric{Operation: "restore", Duration: 900 * time.Millisecond, Strategy: StrategySchema})

	assert.Equal(t, 200*time.Millisecond, r.AverageByOperation("snapshot"))
	assert.Equal(t, 900*time.Millisecond, r.AverageByOperation("restore"))
	assert.Equal(t, time.Duration(0), r.AverageByOperation("unknown"))
}

func TestMetricsRingAverageByStrategyAcrossOperations(t *testing.T) {
	r := newMetricsRing()
	r.record(OperationMetric{Operation: "snapshot", Duration: 200 * time.Millisecond, Strategy: StrategySavepoint})
	r.record(OperationMetric{Operation: "restore", Duration: 400 * time.Millisecond, Strategy: StrategySavepoint})

	assert.Equal(t, 300*time.Millisecond, r.AverageByStrategy(StrategySavepoint))
}

func TestMetricsRingEvictsOldestSampleBeyondCapacity(t *testing.T) {
	r := newMetricsRing()
	for i := 0; i < maxMetrics; i++ {
		r.record(OperationMetric{Operation: "snapshot", Duration: time.Millisecond, Strategy: StrategySchema})
	}
	// This sample pushes the ring past capacity: the very first
	// sample, contributing 1ms, should be evicted.
	r.record(OperationMetric{Operation: "snapshot", Duration: time.Hour, Strategy: StrategySchema})

	assert.Len(t, r.samples, maxMetrics)
	assert.Equal(t, time.Hour, r.samples[len(r.samples)-1].Duration)
}

func TestTimedRecordsSampleAndPropagatesError(t *testing.T) {
	r := newMetricsRing()
	wantErr := errors.New("boom")

	err := r.timed("rollback", StrategySavepoint, "worker-1", func() error {
		time.Sleep(time.Millisecond)
		return wantErr
	})

	assert.ErrorIs(t, err, wantErr)
	assert.Len(t, r.samples, 1)
	assert.Equal(t, "rollback", r.samples[0].Operation)
	assert.Equal(t, "worker-1", r.samples[0].WorkerID)
}

func TestTimedRecordsSampleOnSuccess(t *testing.T) {
	r := newMetricsRing()
	err := r.timed("reset", StrategyDatabase, "worker-2", func() error { return nil })

	assert.NoError(t, err)
	assert.Len(t, r.samples, 1)
}
