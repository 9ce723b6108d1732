package propagation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/sectorpulse/internal/graph"
	"github.com/sawpanic/sectorpulse/internal/scores"
)

func exampleGraph() *graph.Graph {
	return graph.New(map[string][]graph.Edge{
		"IT":    {{Target: "Banks", Weight: 0.5}},
		"Banks": {{Target: "Construction", Weight: 0.3}},
	})
}

func TestRun_ExampleScenario(t *testing.T) {
	initial := scores.Snapshot{"IT": 80, "Banks": 50, "Construction": 50}
	res := Simulate(exampleGraph(), initial, DefaultConfig())

	assert.Equal(t, 80.0, res.Scores["IT"])
	assert.InDelta(t, 65.0, res.Scores["Banks"], 1e-9)
	assert.InDelta(t, 54.5, res.Scores["Construction"], 1e-9)
	assert.Equal(t, 2, res.Updates)
	assert.Equal(t, 3, res.Dequeues)
	assert.True(t, res.Quiescent())
}

func TestRun_NegativeShock(t *testing.T) {
	initial := scores.Snapshot{"IT": 20, "Banks": 50, "Construction": 50}
	res := Simulate(exampleGraph(), initial, DefaultConfig())

	assert.InDelta(t, 35.0, res.Scores["Banks"], 1e-9)
	assert.InDelta(t, 45.5, res.Scores["Construction"], 1e-9)
}

func TestRun_DoesNotMutateInput(t *testing.T) {
	initial := scores.Snapshot{"IT": 80, "Banks": 50, "Construction": 50}
	before := initial.Clone()

	res := Simulate(exampleGraph(), initial, DefaultConfig())

	assert.Equal(t, before, initial)
	res.Scores["IT"] = 1
	assert.Equal(t, 80.0, initial["IT"])
}

func TestRun_NeutralInvariance(t *testing.T) {
	initial := scores.Snapshot{"IT": 50, "Banks": 50, "Construction": 50}
	res := Simulate(exampleGraph(), initial, DefaultConfig())

	assert.Equal(t, initial, res.Scores)
	assert.Zero(t, res.Dequeues)
	assert.Zero(t, res.Updates)
}

func TestRun_ThresholdGating(t *testing.T) {
	cfg := DefaultConfig()

	// force 10 * 0.1 = 1.0, not above the threshold
	below := graph.New(map[string][]graph.Edge{"A": {{Target: "B", Weight: 0.1}}})
	res := Simulate(below, scores.Snapshot{"A": 60, "B": 50}, cfg)
	assert.Equal(t, 50.0, res.Scores["B"])
	assert.Zero(t, res.Updates)
	assert.Equal(t, 1, res.Dequeues, "B must not be enqueued")

	// force 10 * 0.2 = 2.0
	above := graph.New(map[string][]graph.Edge{"A": {{Target: "B", Weight: 0.2}}})
	res = Simulate(above, scores.Snapshot{"A": 60, "B": 50}, cfg)
	assert.InDelta(t, 52.0, res.Scores["B"], 1e-9)
	assert.Equal(t, 1, res.Updates)
	assert.Equal(t, 2, res.Dequeues)
}

func TestRun_ForceBelowThresholdStops(t *testing.T) {
	g := graph.New(map[string][]graph.Edge{"A": {{Target: "B", Weight: 0.9}}})
	res := Simulate(g, scores.Snapshot{"A": 52}, Config{ImpactThreshold: 5, MaxDepth: 10})

	assert.Zero(t, res.Dequeues, "A is at rest for threshold 5")
	assert.Equal(t, 50.0, res.Scores.Get("B"))
}

func TestRun_SinkAbsorbs(t *testing.T) {
	g := graph.New(map[string][]graph.Edge{
		"A": {{Target: "Sink", Weight: 0.5}},
	})
	initial := scores.Snapshot{"A": 50, "Sink": 95, "Other": 50}
	res := Simulate(g, initial, Config{ImpactThreshold: 1, MaxDepth: 100, Trace: true})

	assert.Equal(t, initial, res.Scores)
	assert.Equal(t, 1, res.Visits["Sink"])
	assert.Empty(t, res.Trace)
}

func TestRun_SectorMissingFromGraph(t *testing.T) {
	res := Simulate(exampleGraph(), scores.Snapshot{"Ghost": 90}, DefaultConfig())
	assert.Equal(t, 90.0, res.Scores["Ghost"])
	assert.Equal(t, 1, res.Visits["Ghost"])
	assert.Zero(t, res.Updates)
}

func TestRun_ClientMissingFromSnapshotDefaultsToNeutral(t *testing.T) {
	res := Simulate(exampleGraph(), scores.Snapshot{"IT": 90}, DefaultConfig())
	assert.InDelta(t, 70.0, res.Scores["Banks"], 1e-9)
	assert.InDelta(t, 56.0, res.Scores["Construction"], 1e-9)
}

func TestRun_NilAndEmptyGraph(t *testing.T) {
	initial := scores.Snapshot{"A": 99}
	assert.Equal(t, initial, Simulate(nil, initial, DefaultConfig()).Scores)
	assert.Equal(t, initial, Simulate(graph.Empty(), initial, DefaultConfig()).Scores)
}

func TestRun_ClampsAtBounds(t *testing.T) {
	g := graph.New(map[string][]graph.Edge{
		"A": {{Target: "B", Weight: 0.9}},
		"C": {{Target: "D", Weight: 0.9}},
	})
	res := Simulate(g, scores.Snapshot{"A": 100, "B": 90, "C": 0, "D": 10}, DefaultConfig())
	assert.Equal(t, 100.0, res.Scores["B"])
	assert.Equal(t, 0.0, res.Scores["D"])
}

func TestRun_TerminatesOnAcyclicGraph(t *testing.T) {
	g := graph.New(map[string][]graph.Edge{
		"A": {{Target: "B", Weight: 0.6}, {Target: "C", Weight: 0.4}},
		"B": {{Target: "D", Weight: 0.7}},
		"C": {{Target: "D", Weight: 0.5}, {Target: "E", Weight: 0.5}},
		"D": {{Target: "E", Weight: 0.9}},
	})
	res := Simulate(g, scores.Snapshot{"A": 95, "C": 20}, DefaultConfig())

	assert.True(t, res.Quiescent())
	for id, v := range res.Visits {
		assert.LessOrEqual(t, v, DefaultConfig().MaxDepth, id)
	}
}

func TestRun_TerminatesOnCyclicGraph(t *testing.T) {
	g := graph.New(map[string][]graph.Edge{
		"A": {{Target: "B", Weight: 0.9}},
		"B": {{Target: "A", Weight: 0.9}},
	})
	res := Simulate(g, scores.Snapshot{"A": 60, "B": 50}, Config{ImpactThreshold: 1, MaxDepth: 100, Trace: true})

	assert.True(t, res.Quiescent())
	assert.Equal(t, 100.0, res.Scores["A"])
	assert.Equal(t, 100.0, res.Scores["B"])
	assert.Equal(t, 4, res.Visits["A"])
	assert.Equal(t, 3, res.Visits["B"])
	require.Len(t, res.Trace, 6)
	assert.Equal(t, 7, res.Dequeues)
	assert.Equal(t, Update{Step: 1, Source: "A", Target: "B", Force: 10, Weight: 0.9, Impact: 9, Before: 50, After: 59}, roundUpdate(res.Trace[0]))
}

func roundUpdate(u Update) Update {
	r := func(v float64) float64 { return float64(int64(v*1e6+0.5)) / 1e6 }
	u.Force, u.Weight, u.Impact, u.Before, u.After = r(u.Force), r(u.Weight), r(u.Impact), r(u.Before), r(u.After)
	return u
}

func TestRun_MaxDepthCapsReprocessing(t *testing.T) {
	g := graph.New(map[string][]graph.Edge{
		"A": {{Target: "B", Weight: 0.9}},
		"B": {{Target: "A", Weight: 0.9}},
	})
	res := Simulate(g, scores.Snapshot{"A": 60, "B": 50}, Config{ImpactThreshold: 1, MaxDepth: 2})

	assert.False(t, res.Quiescent())
	assert.Equal(t, []string{"A"}, res.Capped)
	assert.Equal(t, 3, res.Visits["A"])
	for _, v := range res.Scores {
		assert.GreaterOrEqual(t, v, scores.Min)
		assert.LessOrEqual(t, v, scores.Max)
	}
}

func TestRun_SelfLoopDecays(t *testing.T) {
	g := graph.New(map[string][]graph.Edge{"A": {{Target: "A", Weight: 0.5}}})
	res := Simulate(g, scores.Snapshot{"A": 60}, DefaultConfig())

	assert.True(t, res.Quiescent())
	assert.Equal(t, 100.0, res.Scores["A"])
}

func TestRun_IdempotentAtRest(t *testing.T) {
	// Active sectors whose impacts are immaterial or already saturated.
	g := graph.New(map[string][]graph.Edge{
		"A": {{Target: "B", Weight: 0.1}},
		"C": {{Target: "D", Weight: 0.5}},
	})
	initial := scores.Snapshot{"A": 55, "B": 50, "C": 100, "D": 100}
	e := NewEngine(DefaultConfig())

	first := e.Run(g, initial)
	second := e.Run(g, first.Scores)

	assert.Equal(t, first.Scores, second.Scores)
	assert.Zero(t, second.Updates)
}

func TestNewEngine_Defaults(t *testing.T) {
	e := NewEngine(Config{})
	assert.Equal(t, DefaultConfig(), e.Config())

	e = NewEngine(Config{ImpactThreshold: 0.5, MaxDepth: 7, Trace: true})
	assert.Equal(t, Config{ImpactThreshold: 0.5, MaxDepth: 7, Trace: true}, e.Config())
}

func TestQueue_Compacts(t *testing.T) {
	q := &queue{}
	for i := 0; i < 5000; i++ {
		q.push("x")
	}
	n := 0
	for !q.empty() {
		q.pop()
		n++
	}
	assert.Equal(t, 5000, n)
	assert.Less(t, len(q.items), 5000)
}
