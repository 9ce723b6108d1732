// Package simulate runs shock simulations against the current baseline.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/sawpanic/sectorpulse/internal/cache"
	"github.com/sawpanic/sectorpulse/internal/events"
	"github.com/sawpanic/sectorpulse/internal/graph"
	"github.com/sawpanic/sectorpulse/internal/metrics"
	"github.com/sawpanic/sectorpulse/internal/net/breaker"
	"github.com/sawpanic/sectorpulse/internal/persistence"
	"github.com/sawpanic/sectorpulse/internal/propagation"
	"github.com/sawpanic/sectorpulse/internal/scores"
)

// Baseline source names reported in responses and metrics.
const (
	SourceCache      = "cache"
	SourceRepository = "repository"
	SourceFile       = "file"
)

// ErrNoShocks is returned for a request without shocks.
var ErrNoShocks = errors.New("at least one shock is required")

// Sources locates the graph and baseline inputs. Cache and Repo are optional.
type Sources struct {
	GraphPath    string
	GraphOptions graph.LoadOptions
	ScoresPath   string
	Cache        *cache.Snapshots
	Repo         persistence.ScoreRepo
}

// RunSaver archives finished runs.
type RunSaver interface {
	Save(ctx context.Context, run persistence.SimulationRun) error
}

// Deps are the collaborators of a Service. Nil fields are replaced by no-ops.
type Deps struct {
	Metrics   *metrics.Registry
	Runs      RunSaver
	Publisher events.Publisher
	Breaker   breaker.Config
}

// Request is one simulation. Zero overrides use the service defaults.
type Request struct {
	Shocks          []scores.Shock
	ImpactThreshold float64
	MaxDepth        int
	Trace           bool
}

// Response is the outcome of Run.
type Response struct {
	RunID     string              `json:"run_id"`
	Timestamp time.Time           `json:"ts"`
	Config    propagation.Config  `json:"config"`
	Source    string              `json:"baseline_source"`
	Shocks    []scores.Shock      `json:"shocks"`
	Initial   scores.Snapshot     `json:"initial"`
	Result    *propagation.Result `json:"result"`
	Changes   []scores.Delta      `json:"changes"`
}

// Status describes the loaded inputs.
type Status struct {
	Nodes      int              `json:"nodes"`
	Edges      int              `json:"edges"`
	Sectors    int              `json:"sectors"`
	ReloadedAt time.Time        `json:"reloaded_at"`
	Graph      graph.LoadReport `json:"graph_report"`
	Warnings   []string         `json:"warnings,omitempty"`
}

// Service owns the current graph and file baseline. It is safe for
// concurrent use; Reload swaps inputs while runs are in flight.
type Service struct {
	src       Sources
	defaults  propagation.Config
	metrics   *metrics.Registry
	runs      RunSaver
	publisher events.Publisher

	cacheBreaker *breaker.Breaker
	repoBreaker  *breaker.Breaker

	now   func() time.Time
	newID func() string

	mu       sync.RWMutex
	graph    *graph.Graph
	baseline scores.Snapshot
	status   Status
}

// New creates a service. Call Reload before the first Run.
func New(defaults propagation.Config, src Sources, deps Deps) *Service {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewRegistry()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Nop{}
	}
	s := &Service{
		src:       src,
		defaults:  propagation.NewEngine(defaults).Config(),
		metrics:   deps.Metrics,
		runs:      deps.Runs,
		publisher: deps.Publisher,
		now:       time.Now,
		newID:     uuid.NewString,
		graph:     graph.Empty(),
		baseline:  scores.Snapshot{},
	}
	onChange := func(name string, _, to gobreaker.State) {
		s.metrics.SetBreakerState(name, to.String())
	}
	s.cacheBreaker = breaker.New("baseline_cache", deps.Breaker, onChange)
	s.repoBreaker = breaker.New("baseline_repository", deps.Breaker, onChange)
	return s
}

// Reload re-reads the graph and score files. Missing files leave an empty
// graph or baseline and are reported as warnings; other errors abort the
// reload and keep the previous inputs.
func (s *Service) Reload(ctx context.Context) (Status, error) {
	var warnings []string

	timer := s.metrics.StartStepTimer(metrics.StepLoadGraph)
	g, report, err := graph.Load(s.src.GraphPath, s.src.GraphOptions)
	switch {
	case errors.Is(err, graph.ErrDataUnavailable):
		timer.Stop(metrics.ResultSkipped)
		log.Warn().Err(err).Str("path", s.src.GraphPath).Msg("Dependency data unavailable, using empty graph")
		warnings = append(warnings, err.Error())
	case err != nil:
		timer.Stop(metrics.ResultError)
		return Status{}, fmt.Errorf("load graph: %w", err)
	default:
		timer.Stop(metrics.ResultSuccess)
	}
	if report.Malformed > 0 {
		log.Warn().Int("cells", report.Malformed).Msg("Skipped malformed dependency values")
	}
	if st := graph.CheckStability(g); !st.Stable() {
		log.Warn().
			Int("over_budget", len(st.OverBudget)).
			Int("heavy_edges", len(st.HeavyEdges)).
			Msg("Dependency graph may not decay; depth cap will bound simulations")
		warnings = append(warnings, "graph outside influence budget")
	}

	timer = s.metrics.StartStepTimer(metrics.StepLoadScores)
	base, err := scores.LoadLatest(s.src.ScoresPath)
	switch {
	case errors.Is(err, scores.ErrDataUnavailable):
		timer.Stop(metrics.ResultSkipped)
		log.Warn().Err(err).Str("path", s.src.ScoresPath).Msg("Score data unavailable, every sector starts at equilibrium")
		warnings = append(warnings, err.Error())
	case err != nil:
		timer.Stop(metrics.ResultError)
		return Status{}, fmt.Errorf("load scores: %w", err)
	default:
		timer.Stop(metrics.ResultSuccess)
	}

	at := s.now()
	status := Status{
		Nodes:      g.NodeCount(),
		Edges:      g.EdgeCount(),
		Sectors:    len(base),
		ReloadedAt: at,
		Graph:      report,
		Warnings:   warnings,
	}

	s.mu.Lock()
	s.graph = g
	s.baseline = base
	s.status = status
	s.mu.Unlock()

	s.metrics.RecordBaseline(len(base), g.EdgeCount(), at)
	log.Info().Int("nodes", status.Nodes).Int("edges", status.Edges).Int("sectors", status.Sectors).Msg("Inputs reloaded")

	if s.src.Cache != nil {
		if err := s.cacheBreaker.Do(ctx, s.src.Cache.InvalidateBaseline); err != nil {
			log.Warn().Err(err).Msg("Failed to invalidate cached baseline")
		}
	}
	if s.src.Repo != nil && len(base) > 0 {
		err := s.repoBreaker.Do(ctx, func(ctx context.Context) error {
			return s.src.Repo.Upsert(ctx, at, SourceFile, base)
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to store baseline in repository")
		}
	}
	return status, nil
}

// Graph returns the current dependency graph.
func (s *Service) Graph() *graph.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph
}

// Status returns the state of the last reload.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Defaults returns the engine configuration used when a request has no overrides.
func (s *Service) Defaults() propagation.Config { return s.defaults }

// Baseline returns the current baseline and where it came from: the cache,
// then the repository, then the last file load.
func (s *Service) Baseline(ctx context.Context) (scores.Snapshot, string) {
	if s.src.Cache != nil {
		var (
			snap scores.Snapshot
			ok   bool
		)
		err := s.cacheBreaker.Do(ctx, func(ctx context.Context) error {
			var err error
			snap, ok, err = s.src.Cache.Baseline(ctx)
			return err
		})
		switch {
		case err != nil:
			log.Debug().Err(err).Msg("Baseline cache unavailable")
		case ok && len(snap) > 0:
			s.metrics.RecordCacheHit("baseline")
			return snap, SourceCache
		default:
			s.metrics.RecordCacheMiss("baseline")
		}
	}

	if s.src.Repo != nil {
		var snap scores.Snapshot
		err := s.repoBreaker.Do(ctx, func(ctx context.Context) error {
			var err error
			snap, _, err = s.src.Repo.Latest(ctx)
			return err
		})
		if err != nil {
			log.Debug().Err(err).Msg("Baseline repository unavailable")
		} else if len(snap) > 0 {
			s.cacheBaseline(ctx, snap)
			return snap, SourceRepository
		}
	}

	s.mu.RLock()
	snap := s.baseline.Clone()
	s.mu.RUnlock()
	if len(snap) > 0 {
		s.cacheBaseline(ctx, snap)
	}
	return snap, SourceFile
}

func (s *Service) cacheBaseline(ctx context.Context, snap scores.Snapshot) {
	if s.src.Cache == nil {
		return
	}
	err := s.cacheBreaker.Do(ctx, func(ctx context.Context) error {
		return s.src.Cache.PutBaseline(ctx, snap)
	})
	if err != nil {
		log.Debug().Err(err).Msg("Failed to cache baseline")
	}
}

// Run applies the shocks to the baseline and propagates them. Archiving,
// caching and publishing are best effort and never fail the run.
func (s *Service) Run(ctx context.Context, req Request) (*Response, error) {
	if len(req.Shocks) == 0 {
		return nil, ErrNoShocks
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := s.defaults
	if req.ImpactThreshold > 0 {
		cfg.ImpactThreshold = req.ImpactThreshold
	}
	if req.MaxDepth > 0 {
		cfg.MaxDepth = req.MaxDepth
	}
	cfg.Trace = req.Trace

	base, source := s.Baseline(ctx)
	initial := scores.Apply(base, req.Shocks)
	g := s.Graph()

	timer := s.metrics.StartStepTimer(metrics.StepPropagate)
	start := time.Now()
	res := propagation.Simulate(g, initial, cfg)
	elapsed := time.Since(start)
	timer.Stop(metrics.ResultSuccess)
	s.metrics.RecordSimulation(elapsed, res.Dequeues, res.Updates, res.Capped)

	resp := &Response{
		RunID:     s.newID(),
		Timestamp: s.now(),
		Config:    cfg,
		Source:    source,
		Shocks:    req.Shocks,
		Initial:   initial,
		Result:    res,
		Changes:   base.Diff(res.Scores),
	}

	logEvent := log.Info()
	if !res.Quiescent() {
		logEvent = log.Warn().Strs("capped", res.Capped)
	}
	logEvent.
		Str("run_id", resp.RunID).
		Str("baseline", source).
		Int("dequeues", res.Dequeues).
		Int("updates", res.Updates).
		Dur("duration", elapsed).
		Msg("Simulation completed")

	s.persist(ctx, resp, base)
	return resp, nil
}

func (s *Service) persist(ctx context.Context, resp *Response, base scores.Snapshot) {
	res := resp.Result
	shocks := make([]string, len(resp.Shocks))
	for i, sh := range resp.Shocks {
		shocks[i] = sh.String()
	}

	if s.runs != nil {
		timer := s.metrics.StartStepTimer(metrics.StepPersist)
		err := s.runs.Save(ctx, persistence.SimulationRun{
			ID:              resp.RunID,
			Timestamp:       resp.Timestamp,
			ImpactThreshold: resp.Config.ImpactThreshold,
			MaxDepth:        resp.Config.MaxDepth,
			Shocks:          shocks,
			Baseline:        base,
			Result:          res.Scores,
			Capped:          res.Capped,
			Dequeues:        res.Dequeues,
			Updates:         res.Updates,
		})
		if err != nil {
			timer.Stop(metrics.ResultError)
			log.Warn().Err(err).Str("run_id", resp.RunID).Msg("Failed to archive simulation run")
		} else {
			timer.Stop(metrics.ResultSuccess)
		}
	}

	if s.src.Cache != nil {
		err := s.cacheBreaker.Do(ctx, func(ctx context.Context) error {
			return s.src.Cache.PutResult(ctx, resp.RunID, res.Scores)
		})
		if err != nil {
			log.Debug().Err(err).Str("run_id", resp.RunID).Msg("Failed to cache simulation result")
		}
	}

	timer := s.metrics.StartStepTimer(metrics.StepPublish)
	err := s.publisher.Publish(ctx, events.Event{
		Type:      events.TypeSimulationCompleted,
		RunID:     resp.RunID,
		Timestamp: resp.Timestamp,
		Shocks:    shocks,
		Changes:   resp.Changes,
		Capped:    res.Capped,
		Dequeues:  res.Dequeues,
		Updates:   res.Updates,
	})
	if err != nil {
		timer.Stop(metrics.ResultError)
		log.Warn().Err(err).Str("run_id", resp.RunID).Msg("Failed to publish simulation event")
		return
	}
	timer.Stop(metrics.ResultSuccess)
}
