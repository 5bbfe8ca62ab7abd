package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once          sync.Once
	batchDuration *prom.HistogramVec
	pageResults   *prom.CounterVec
	taskOutcomes  *prom.CounterVec
	inFlight      prom.Gauge
	pending       prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.batchDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "sitebuilder",
			Name:      "batch_duration_seconds",
			Help:      "Duration of generation batches",
			Buckets:   prom.DefBuckets,
		}, []string{"mode"})
		pr.pageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitebuilder",
			Name:      "page_results_total",
			Help:      "Page generation attempts by result",
		}, []string{"result"})
		pr.taskOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitebuilder",
			Name:      "task_outcomes_total",
			Help:      "Generation task outcomes by mode",
		}, []string{"mode", "outcome"})
		pr.inFlight = prom.NewGauge(prom.GaugeOpts{
			Namespace: "sitebuilder",
			Name:      "generations_in_flight",
			Help:      "Page generations currently executing",
		})
		pr.pending = prom.NewGauge(prom.GaugeOpts{
			Namespace: "sitebuilder",
			Name:      "pending_pages",
			Help:      "Pages known stale and waiting for regeneration",
		})
		reg.MustRegister(pr.batchDuration, pr.pageResults, pr.taskOutcomes, pr.inFlight, pr.pending)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveBatchDuration(mode string, d time.Duration) {
	if p == nil || p.batchDuration == nil {
		return
	}
	p.batchDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncPageResult(result ResultLabel) {
	if p == nil || p.pageResults == nil {
		return
	}
	p.pageResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncTaskOutcome(mode string, outcome OutcomeLabel) {
	if p == nil || p.taskOutcomes == nil {
		return
	}
	p.taskOutcomes.WithLabelValues(mode, string(outcome)).Inc()
}

func (p *PrometheusRecorder) SetInFlight(n int) {
	if p == nil || p.inFlight == nil {
		return
	}
	p.inFlight.Set(float64(n))
}

func (p *PrometheusRecorder) SetPending(n int) {
	if p == nil || p.pending == nil {
		return
	}
	p.pending.Set(float64(n))
}
