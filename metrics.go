package outbox

import "time"

// Metrics captures relay-level telemetry.
type Metrics interface {
	// ObserveBatchDuration records the time to process a batch.
	ObserveBatchDuration(duration time.Duration)
	// AddSent increments the count of events published and marked SENT.
	AddSent(count int)
	// AddFailed increments the count of failed publish attempts.
	AddFailed(count int)
	// AddDead increments the count of events moved to DLQ.
	AddDead(count int)
	// SetPending updates the current pending event count.
	SetPending(count int)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// ObserveBatchDuration implements Metrics.
func (NopMetrics) ObserveBatchDuration(time.Duration) {}

// AddSent implements Metrics.
func (NopMetrics) AddSent(int) {}

// AddFailed implements Metrics.
func (NopMetrics) AddFailed(int) {}

// AddDead implements Metrics.
func (NopMetrics) AddDead(int) {}

// SetPending implements Metrics.
func (NopMetrics) SetPending(int) {}
