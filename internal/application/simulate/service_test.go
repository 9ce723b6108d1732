package simulate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/sectorpulse/internal/cache"
	"github.com/sawpanic/sectorpulse/internal/events"
	"github.com/sawpanic/sectorpulse/internal/graph"
	"github.com/sawpanic/sectorpulse/internal/metrics"
	"github.com/sawpanic/sectorpulse/internal/persistence"
	"github.com/sawpanic/sectorpulse/internal/propagation"
	"github.com/sawpanic/sectorpulse/internal/scores"
)

const edgesCSV = `source,target,weight
62,64,1
62,10,1
64,41,3
64,10,7
`

const scoresCSV = `Date,PKD_Code,Health_Score
2023-12-01,62,10
2024-01-01,62,50
2024-01-01,64,50
2024-01-01,41,50
2024-01-01,10,50
`

type fakeRuns struct {
	mu   sync.Mutex
	runs []persistence.SimulationRun
	err  error
}

func (f *fakeRuns) Save(_ context.Context, run persistence.SimulationRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return f.err
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *fakePublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakeScoreRepo struct {
	mu      sync.Mutex
	latest  scores.Snapshot
	err     error
	calls   int
	upserts []string
}

func (r *fakeScoreRepo) Upsert(_ context.Context, _ time.Time, source string, _ scores.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts = append(r.upserts, source)
	return r.err
}

func (r *fakeScoreRepo) Latest(context.Context) (scores.Snapshot, time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, time.Time{}, r.err
	}
	return r.latest.Clone(), time.Time{}, nil
}

func (r *fakeScoreRepo) History(context.Context, string, persistence.TimeRange) ([]persistence.ScoreRecord, error) {
	return nil, nil
}

func writeInputs(t *testing.T) Sources {
	t.Helper()
	dir := t.TempDir()
	gp := filepath.Join(dir, "edges.csv")
	sp := filepath.Join(dir, "MASTER_DATA.csv")
	require.NoError(t, os.WriteFile(gp, []byte(edgesCSV), 0o644))
	require.NoError(t, os.WriteFile(sp, []byte(scoresCSV), 0o644))
	return Sources{
		GraphPath:    gp,
		GraphOptions: graph.LoadOptions{Format: graph.FormatEdgeList},
		ScoresPath:   sp,
	}
}

func newService(t *testing.T, src Sources, deps Deps) *Service {
	t.Helper()
	svc := New(propagation.DefaultConfig(), src, deps)
	svc.newID = func() string { return "run-1" }
	svc.now = func() time.Time { return time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC) }
	_, err := svc.Reload(context.Background())
	require.NoError(t, err)
	return svc
}

func shock(t *testing.T, raw string) []scores.Shock {
	t.Helper()
	s, err := scores.ParseShock(raw)
	require.NoError(t, err)
	return []scores.Shock{s}
}

func counterValue(t *testing.T, reg *metrics.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gatherer().Gather()
	require.NoError(t, err)
	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += counterOf(m)
		}
	}
	return total
}

func counterOf(m *dto.Metric) float64 {
	if c := m.GetCounter(); c != nil {
		return c.GetValue()
	}
	return 0
}

func TestRunPropagatesShock(t *testing.T) {
	reg := metrics.NewRegistry()
	runs := &fakeRuns{}
	pub := &fakePublisher{}
	svc := newService(t, writeInputs(t), Deps{Metrics: reg, Runs: runs, Publisher: pub})

	st := svc.Status()
	assert.Equal(t, 4, st.Sectors)
	assert.Equal(t, 4, st.Edges)
	assert.Empty(t, st.Warnings)

	resp, err := svc.Run(context.Background(), Request{Shocks: shock(t, "62=+20"), Trace: true})
	require.NoError(t, err)

	got := resp.Result.Scores
	assert.InDelta(t, 70.0, got["62"], 1e-9)
	assert.InDelta(t, 60.0, got["64"], 1e-9)
	assert.InDelta(t, 67.0, got["10"], 1e-9)
	assert.InDelta(t, 53.0, got["41"], 1e-9)
	assert.Equal(t, 5, resp.Result.Dequeues)
	assert.Equal(t, 4, resp.Result.Updates)
	assert.Len(t, resp.Result.Trace, 4)
	assert.Equal(t, SourceFile, resp.Source)
	assert.Equal(t, "run-1", resp.RunID)

	require.Len(t, resp.Changes, 4)
	assert.Equal(t, "62", resp.Changes[0].Sector)
	assert.Equal(t, "41", resp.Changes[3].Sector)

	require.Len(t, runs.runs, 1)
	assert.Equal(t, []string{"62=+20"}, runs.runs[0].Shocks)
	assert.Equal(t, 50.0, runs.runs[0].Baseline["62"])
	require.Len(t, pub.events, 1)
	assert.Equal(t, events.TypeSimulationCompleted, pub.events[0].Type)
	assert.Equal(t, 1.0, counterValue(t, reg, "sectorpulse_simulation_runs_total"))
}

func TestRunDoesNotMutateBaseline(t *testing.T) {
	svc := newService(t, writeInputs(t), Deps{})
	_, err := svc.Run(context.Background(), Request{Shocks: shock(t, "62=90")})
	require.NoError(t, err)

	base, _ := svc.Baseline(context.Background())
	assert.Equal(t, 50.0, base["62"])
	assert.Equal(t, 50.0, base["64"])
}

func TestRunOverrides(t *testing.T) {
	svc := newService(t, writeInputs(t), Deps{})
	resp, err := svc.Run(context.Background(), Request{Shocks: shock(t, "62=+20"), ImpactThreshold: 15, MaxDepth: 3})
	require.NoError(t, err)

	assert.Equal(t, 15.0, resp.Config.ImpactThreshold)
	assert.Equal(t, 3, resp.Config.MaxDepth)
	assert.Equal(t, 0, resp.Result.Updates)
	assert.Equal(t, 50.0, resp.Result.Scores["64"])
	assert.Equal(t, propagation.DefaultConfig().MaxDepth, svc.Defaults().MaxDepth)
}

func TestRunRequiresShock(t *testing.T) {
	svc := newService(t, writeInputs(t), Deps{})
	_, err := svc.Run(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNoShocks)
}

func TestRunSurvivesArchiveFailure(t *testing.T) {
	runs := &fakeRuns{err: errors.New("disk full")}
	svc := newService(t, writeInputs(t), Deps{Runs: runs})
	resp, err := svc.Run(context.Background(), Request{Shocks: shock(t, "62=+20")})
	require.NoError(t, err)
	assert.NotNil(t, resp.Result)
	assert.Len(t, runs.runs, 1)
}

func TestReloadMissingInputs(t *testing.T) {
	dir := t.TempDir()
	svc := New(propagation.DefaultConfig(), Sources{
		GraphPath:  filepath.Join(dir, "absent.csv"),
		ScoresPath: filepath.Join(dir, "absent_scores.csv"),
	}, Deps{})

	st, err := svc.Reload(context.Background())
	require.NoError(t, err)
	assert.Len(t, st.Warnings, 2)
	assert.Equal(t, 0, st.Nodes)

	resp, err := svc.Run(context.Background(), Request{Shocks: shock(t, "62=80")})
	require.NoError(t, err)
	assert.Equal(t, 80.0, resp.Result.Scores["62"])
	assert.Equal(t, 0, resp.Result.Updates)
}

func TestReloadRejectsUnknownFormat(t *testing.T) {
	src := writeInputs(t)
	svc := newService(t, src, Deps{})
	svc.src.GraphOptions.Format = "json"

	_, err := svc.Reload(context.Background())
	require.Error(t, err)
	assert.Equal(t, 4, svc.Status().Edges, "previous inputs are kept")
}

func TestBaselineChainUsesCache(t *testing.T) {
	src := writeInputs(t)
	src.Cache = cache.NewSnapshots(cache.NewMemory(), "test:", time.Minute)
	reg := metrics.NewRegistry()
	svc := newService(t, src, Deps{Metrics: reg})
	ctx := context.Background()

	_, from := svc.Baseline(ctx)
	assert.Equal(t, SourceFile, from)
	snap, from := svc.Baseline(ctx)
	assert.Equal(t, SourceCache, from)
	assert.Equal(t, 50.0, snap["41"])
	assert.Equal(t, 1.0, counterValue(t, reg, "sectorpulse_cache_hits_total"))

	_, err := svc.Reload(ctx)
	require.NoError(t, err)
	_, from = svc.Baseline(ctx)
	assert.Equal(t, SourceFile, from)

	resp, err := svc.Run(ctx, Request{Shocks: shock(t, "62=+20")})
	require.NoError(t, err)
	cached, ok, err := src.Cache.Result(ctx, resp.RunID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 67.0, cached["10"], 1e-9)
}

func TestBaselineChainUsesRepository(t *testing.T) {
	src := writeInputs(t)
	repo := &fakeScoreRepo{latest: scores.Snapshot{"62": 30, "64": 50}}
	src.Repo = repo
	svc := newService(t, src, Deps{})

	assert.Equal(t, []string{SourceFile}, repo.upserts)

	snap, from := svc.Baseline(context.Background())
	assert.Equal(t, SourceRepository, from)
	assert.Equal(t, 30.0, snap["62"])
}

func TestBaselineRepositoryFailureFallsBackAndTrips(t *testing.T) {
	src := writeInputs(t)
	repo := &fakeScoreRepo{err: errors.New("connection refused")}
	src.Repo = repo
	svc := newService(t, src, Deps{})

	for i := 0; i < 5; i++ {
		snap, from := svc.Baseline(context.Background())
		assert.Equal(t, SourceFile, from)
		assert.Equal(t, 50.0, snap["62"])
	}
	// one failed upsert during Reload plus two failed reads trip the breaker
	assert.Equal(t, 2, repo.calls)
	assert.Equal(t, "open", svc.repoBreaker.State())
}

func TestConcurrentRunsAndReloads(t *testing.T) {
	svc := newService(t, writeInputs(t), Deps{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%4 == 0 {
				_, err := svc.Reload(ctx)
				assert.NoError(t, err)
				return
			}
			resp, err := svc.Run(ctx, Request{Shocks: []scores.Shock{{Sector: "62", Value: 20, Relative: true}}})
			if assert.NoError(t, err) {
				assert.InDelta(t, 67.0, resp.Result.Scores["10"], 1e-9)
			}
		}(i)
	}
	wg.Wait()
}
