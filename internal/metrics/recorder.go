// Package metrics exposes observability hooks for page generation batches.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics collection never requires nil checks:
//
//	sched := scheduler.New(horizon, scheduler.WithRecorder(metrics.NewPrometheusRecorder(reg)))
package metrics

import "time"

// ResultLabel enumerates per-page generation results for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
)

// OutcomeLabel enumerates task outcomes.
type OutcomeLabel string

const (
	OutcomeCompleted OutcomeLabel = "completed"
	OutcomeCancelled OutcomeLabel = "cancelled"
	OutcomeFailed    OutcomeLabel = "failed"
)

// Recorder defines observability hooks for generation batches.
type Recorder interface {
	ObserveBatchDuration(mode string, d time.Duration)
	IncPageResult(result ResultLabel)
	IncTaskOutcome(mode string, outcome OutcomeLabel)
	SetInFlight(n int)
	SetPending(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveBatchDuration(string, time.Duration) {}
func (NoopRecorder) IncPageResult(ResultLabel)                  {}
func (NoopRecorder) IncTaskOutcome(string, OutcomeLabel)        {}
func (NoopRecorder) SetInFlight(int)                            {}
func (NoopRecorder) SetPending(int)                             {}
