package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, m *Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Gatherer().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) {
				switch {
				case metric.Counter != nil:
					return metric.GetCounter().GetValue()
				case metric.Gauge != nil:
					return metric.GetGauge().GetValue()
				case metric.Histogram != nil:
					return float64(metric.GetHistogram().GetSampleCount())
				}
			}
		}
	}
	return 0
}

func labelsMatch(metric *dto.Metric, want map[string]string) bool {
	got := make(map[string]string)
	for _, lp := range metric.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestRecordSimulation(t *testing.T) {
	m := NewRegistry()

	m.RecordSimulation(time.Millisecond, 3, 2, nil)
	m.RecordSimulation(time.Millisecond, 200, 150, []string{"62"})

	assert.Equal(t, 1.0, counterValue(t, m, "sectorpulse_simulation_runs_total", map[string]string{"outcome": "quiescent"}))
	assert.Equal(t, 1.0, counterValue(t, m, "sectorpulse_simulation_runs_total", map[string]string{"outcome": "capped"}))
	assert.Equal(t, 1.0, counterValue(t, m, "sectorpulse_capped_sectors_total", map[string]string{"sector": "62"}))
	assert.Equal(t, 2.0, counterValue(t, m, "sectorpulse_simulation_dequeues", nil))
}

func TestCacheHitRatio(t *testing.T) {
	m := NewRegistry()
	m.RecordCacheHit("baseline")
	m.RecordCacheHit("baseline")
	m.RecordCacheHit("result")
	m.RecordCacheMiss("baseline")

	assert.Equal(t, 0.75, counterValue(t, m, "sectorpulse_cache_hit_ratio", nil))
	assert.Equal(t, 2.0, counterValue(t, m, "sectorpulse_cache_hits_total", map[string]string{"cache_type": "baseline"}))
}

func TestBreakerAndBaseline(t *testing.T) {
	m := NewRegistry()
	m.SetBreakerState("postgres", "open")
	m.SetBreakerState("redis", "closed")
	m.RecordBaseline(15, 42, time.Unix(1700000000, 0))

	assert.Equal(t, 2.0, counterValue(t, m, "sectorpulse_breaker_state", map[string]string{"breaker": "postgres"}))
	assert.Equal(t, 0.0, counterValue(t, m, "sectorpulse_breaker_state", map[string]string{"breaker": "redis"}))
	assert.Equal(t, 42.0, counterValue(t, m, "sectorpulse_graph_edges", nil))
	assert.Equal(t, 1700000000.0, counterValue(t, m, "sectorpulse_last_reload_timestamp_seconds", nil))
}

func TestStepTimerAndHandler(t *testing.T) {
	m := NewRegistry()
	m.StartStepTimer(StepPropagate).Stop(ResultSuccess)
	m.RecordHTTP("/simulate", "POST", 200, 5*time.Millisecond)

	assert.Equal(t, 1.0, counterValue(t, m, "sectorpulse_step_duration_seconds", map[string]string{"step": StepPropagate, "result": ResultSuccess}))

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `sectorpulse_http_requests_total{code="200",method="POST",route="/simulate"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
