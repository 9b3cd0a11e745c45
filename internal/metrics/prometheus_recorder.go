package metrics

import (
	"strconv"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once           sync.Once
	eventDecisions *prom.CounterVec
	stepDuration   *prom.HistogramVec
	stepResults    *prom.CounterVec
	runDuration    prom.Histogram
	runOutcomes    *prom.CounterVec
	publishes      *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.eventDecisions = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docsdeploy",
			Name:      "event_decisions_total",
			Help:      "Push event filter decisions",
		}, []string{"triggered"})
		pr.stepDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "docsdeploy",
			Name:      "step_duration_seconds",
			Help:      "Duration of individual pipeline steps",
			Buckets:   prom.DefBuckets,
		}, []string{"step"})
		pr.stepResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docsdeploy",
			Name:      "step_results_total",
			Help:      "Step result counts by outcome",
		}, []string{"step", "result"})
		pr.runDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "docsdeploy",
			Name:      "run_duration_seconds",
			Help:      "Total deploy run duration",
			Buckets:   prom.DefBuckets,
		})
		pr.runOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docsdeploy",
			Name:      "run_outcomes_total",
			Help:      "Run outcomes by final status",
		}, []string{"outcome"})
		pr.publishes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docsdeploy",
			Name:      "publishes_total",
			Help:      "Site publishes by force flag",
		}, []string{"force"})
		reg.MustRegister(pr.eventDecisions, pr.stepDuration, pr.stepResults, pr.runDuration, pr.runOutcomes, pr.publishes)
	})
	return pr
}

func (p *PrometheusRecorder) IncEventDecision(triggered bool) {
	if p == nil || p.eventDecisions == nil {
		return
	}
	p.eventDecisions.WithLabelValues(strconv.FormatBool(triggered)).Inc()
}

func (p *PrometheusRecorder) ObserveStepDuration(step string, d time.Duration) {
	if p == nil || p.stepDuration == nil {
		return
	}
	p.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStepResult(step string, result ResultLabel) {
	if p == nil || p.stepResults == nil {
		return
	}
	p.stepResults.WithLabelValues(step, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRunOutcome(outcome string) {
	if p == nil || p.runOutcomes == nil {
		return
	}
	p.runOutcomes.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncPublish(force bool) {
	if p == nil || p.publishes == nil {
		return
	}
	p.publishes.WithLabelValues(strconv.FormatBool(force)).Inc()
}
