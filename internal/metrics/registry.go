// Package metrics exposes simulation and HTTP metrics to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry holds all Prometheus metrics for SectorPulse
type Registry struct {
	reg *prometheus.Registry

	// Simulation metrics
	SimulationRuns     *prometheus.CounterVec
	SimulationDuration prometheus.Histogram
	Dequeues           prometheus.Histogram
	Updates            prometheus.Histogram
	CappedSectors      *prometheus.CounterVec

	// Step duration metrics
	StepDuration *prometheus.HistogramVec

	// Baseline metrics
	BaselineSectors prometheus.Gauge
	GraphEdges      prometheus.Gauge
	LastReload      prometheus.Gauge

	// Cache and remote store metrics
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec
	CacheHitRatio prometheus.Gauge
	BreakerState  *prometheus.GaugeVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	mu          sync.Mutex
	cacheHits   float64
	cacheMisses float64
}

// NewRegistry creates a registry with every SectorPulse metric plus the Go
// runtime and process collectors.
func NewRegistry() *Registry {
	m := &Registry{
		reg: prometheus.NewRegistry(),

		SimulationRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sectorpulse_simulation_runs_total",
				Help: "Total number of propagation runs by outcome",
			},
			[]string{"outcome"},
		),

		SimulationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sectorpulse_simulation_duration_seconds",
				Help:    "Wall time of a propagation run in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
		),

		Dequeues: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sectorpulse_simulation_dequeues",
				Help:    "Queue entries processed per run",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		),

		Updates: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sectorpulse_simulation_updates",
				Help:    "Material score updates per run",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		),

		CappedSectors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sectorpulse_capped_sectors_total",
				Help: "Times a sector hit the max_depth cap",
			},
			[]string{"sector"},
		),

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sectorpulse_step_duration_seconds",
				Help:    "Duration of each service step in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"step", "result"},
		),

		BaselineSectors: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sectorpulse_baseline_sectors",
				Help: "Number of sectors in the loaded baseline snapshot",
			},
		),

		GraphEdges: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sectorpulse_graph_edges",
				Help: "Number of edges in the loaded dependency graph",
			},
		),

		LastReload: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sectorpulse_last_reload_timestamp_seconds",
				Help: "Unix time of the last successful input reload",
			},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sectorpulse_cache_hits_total",
				Help: "Total number of cache hits by cache type",
			},
			[]string{"cache_type"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sectorpulse_cache_misses_total",
				Help: "Total number of cache misses by cache type",
			},
			[]string{"cache_type"},
		),

		CacheHitRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sectorpulse_cache_hit_ratio",
				Help: "Current cache hit ratio (0.0 to 1.0)",
			},
		),

		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sectorpulse_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"breaker"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sectorpulse_http_requests_total",
				Help: "HTTP requests by route, method and status code",
			},
			[]string{"route", "method", "code"},
		),

		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sectorpulse_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SimulationRuns,
		m.SimulationDuration,
		m.Dequeues,
		m.Updates,
		m.CappedSectors,
		m.StepDuration,
		m.BaselineSectors,
		m.GraphEdges,
		m.LastReload,
		m.CacheHits,
		m.CacheMisses,
		m.CacheHitRatio,
		m.BreakerState,
		m.HTTPRequests,
		m.HTTPDuration,
	)

	return m
}

// Gatherer exposes the underlying registry, e.g. for tests.
func (m *Registry) Gatherer() prometheus.Gatherer { return m.reg }

// Handler returns an HTTP handler for Prometheus metrics
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// RecordSimulation records one finished propagation run.
func (m *Registry) RecordSimulation(duration time.Duration, dequeues, updates int, capped []string) {
	outcome := "quiescent"
	if len(capped) > 0 {
		outcome = "capped"
	}
	m.SimulationRuns.WithLabelValues(outcome).Inc()
	m.SimulationDuration.Observe(duration.Seconds())
	m.Dequeues.Observe(float64(dequeues))
	m.Updates.Observe(float64(updates))
	for _, id := range capped {
		m.CappedSectors.WithLabelValues(id).Inc()
	}
}

// RecordBaseline records the size of freshly loaded inputs.
func (m *Registry) RecordBaseline(sectors, edges int, at time.Time) {
	m.BaselineSectors.Set(float64(sectors))
	m.GraphEdges.Set(float64(edges))
	m.LastReload.Set(float64(at.Unix()))
}

// RecordCacheHit records a cache hit for the specified cache type
func (m *Registry) RecordCacheHit(cacheType string) {
	m.CacheHits.WithLabelValues(cacheType).Inc()
	m.mu.Lock()
	m.cacheHits++
	m.updateCacheHitRatio()
	m.mu.Unlock()
}

// RecordCacheMiss records a cache miss for the specified cache type
func (m *Registry) RecordCacheMiss(cacheType string) {
	m.CacheMisses.WithLabelValues(cacheType).Inc()
	m.mu.Lock()
	m.cacheMisses++
	m.updateCacheHitRatio()
	m.mu.Unlock()
}

// updateCacheHitRatio must be called with mu held.
func (m *Registry) updateCacheHitRatio() {
	if total := m.cacheHits + m.cacheMisses; total > 0 {
		m.CacheHitRatio.Set(m.cacheHits / total)
	}
}

// SetBreakerState records a breaker transition by state name.
func (m *Registry) SetBreakerState(name, state string) {
	v := 0.0
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	m.BreakerState.WithLabelValues(name).Set(v)
}

// RecordHTTP records one served request.
func (m *Registry) RecordHTTP(route, method string, code int, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// StepTimer tracks execution time for service steps
type StepTimer struct {
	metrics *Registry
	step    string
	start   time.Time
}

// StartStepTimer begins timing a service step
func (m *Registry) StartStepTimer(step string) *StepTimer {
	return &StepTimer{
		metrics: m,
		step:    step,
		start:   time.Now(),
	}
}

// Stop completes the step timing and records the metric
func (st *StepTimer) Stop(result string) {
	duration := time.Since(st.start)
	st.metrics.StepDuration.WithLabelValues(st.step, result).Observe(duration.Seconds())

	log.Debug().
		Str("step", st.step).
		Str("result", result).
		Dur("duration", duration).
		Msg("Service step completed")
}

// Step names recorded by the simulation service
const (
	StepLoadGraph  = "load_graph"
	StepLoadScores = "load_scores"
	StepPropagate  = "propagate"
	StepPersist    = "persist"
	StepPublish    = "publish"
)

// Step results
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultSkipped = "skipped"
)
