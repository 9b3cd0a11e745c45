package metrics

import (
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopRecorderIsSafe(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.IncEventDecision(true)
	r.ObserveStepDuration("checkout", time.Second)
	r.IncStepResult("checkout", ResultSuccess)
	r.ObserveRunDuration(time.Minute)
	r.IncRunOutcome("succeeded")
	r.IncPublish(true)
}

func TestPrometheusRecorderCounters(t *testing.T) {
	reg := prom.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.IncEventDecision(true)
	r.IncEventDecision(false)
	r.IncEventDecision(false)
	r.IncStepResult("install", ResultFailure)
	r.IncRunOutcome("failed")
	r.IncPublish(true)

	expected := `
		# HELP docsdeploy_event_decisions_total Push event filter decisions
		# TYPE docsdeploy_event_decisions_total counter
		docsdeploy_event_decisions_total{triggered="false"} 2
		docsdeploy_event_decisions_total{triggered="true"} 1
	`
	require.NoError(t, testutil.CollectAndCompare(r.eventDecisions, strings.NewReader(expected)))

	assert.Equal(t, float64(1), testutil.ToFloat64(r.stepResults.WithLabelValues("install", "failure")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.runOutcomes.WithLabelValues("failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.publishes.WithLabelValues("true")))
}

func TestPrometheusRecorderNilReceiverSafe(t *testing.T) {
	var r *PrometheusRecorder
	r.IncEventDecision(true)
	r.ObserveStepDuration("build", time.Second)
	r.IncStepResult("build", ResultSuccess)
	r.ObserveRunDuration(time.Second)
	r.IncRunOutcome("succeeded")
	r.IncPublish(false)
}

func TestHTTPHandlerServesRegistry(t *testing.T) {
	reg := prom.NewRegistry()
	NewPrometheusRecorder(reg)
	assert.NotNil(t, HTTPHandler(reg))
}
