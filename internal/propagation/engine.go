// Package propagation simulates how score deviations from equilibrium ripple
// through the sector dependency graph.
//
// The engine is a FIFO work-queue processor. Every sector deviating from the
// equilibrium by more than the impact threshold is queued; dequeuing a sector
// pushes force*weight onto each client, and a client whose score moves by more
// than the threshold is written and queued again. Updates are applied as they
// happen (not in simultaneous rounds), so the queue order shapes the path
// taken towards quiescence.
package propagation

import (
	"math"
	"sort"

	"github.com/sawpanic/sectorpulse/internal/graph"
	"github.com/sawpanic/sectorpulse/internal/scores"
)

// Config tunes one engine. Engines with different configs can run side by side.
type Config struct {
	// ImpactThreshold is the smallest force or score change considered material.
	ImpactThreshold float64 `yaml:"impact_threshold" json:"impact_threshold" validate:"gt=0"`
	// MaxDepth caps how often a single sector is processed.
	MaxDepth int `yaml:"max_depth" json:"max_depth" validate:"gte=1"`
	// Trace records every material update in the result.
	Trace bool `yaml:"trace" json:"trace"`
}

// DefaultConfig returns a threshold of 1 point and a depth cap of 100.
func DefaultConfig() Config {
	return Config{
		ImpactThreshold: 1.0,
		MaxDepth:        100,
	}
}

// Update is one material change written during a run.
type Update struct {
	Step   int     `json:"step"`
	Source string  `json:"source"`
	Target string  `json:"target"`
	Force  float64 `json:"force"`
	Weight float64 `json:"weight"`
	Impact float64 `json:"impact"`
	Before float64 `json:"before"`
	After  float64 `json:"after"`
}

// Result is the outcome of a run. Scores is a new snapshot; the input is untouched.
type Result struct {
	Scores   scores.Snapshot `json:"scores"`
	Visits   map[string]int  `json:"visits"`
	Capped   []string        `json:"capped,omitempty"`
	Dequeues int             `json:"dequeues"`
	Updates  int             `json:"updates"`
	Trace    []Update        `json:"trace,omitempty"`
}

// Quiescent reports whether the run drained its queue without any sector
// reaching the depth cap.
func (r *Result) Quiescent() bool {
	return len(r.Capped) == 0
}

// Engine runs simulations with a fixed configuration.
type Engine struct {
	cfg Config
}

// NewEngine returns an engine; zero or negative settings fall back to defaults.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.ImpactThreshold <= 0 {
		cfg.ImpactThreshold = def.ImpactThreshold
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = def.MaxDepth
	}
	return &Engine{cfg: cfg}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Run propagates the deviations of initial through g until the queue drains.
// A nil graph behaves like an empty one.
func (e *Engine) Run(g *graph.Graph, initial scores.Snapshot) *Result {
	if g == nil {
		g = graph.Empty()
	}
	threshold := e.cfg.ImpactThreshold
	snap := initial.Clone()
	res := &Result{
		Scores: snap,
		Visits: make(map[string]int, len(snap)),
	}
	capped := make(map[string]struct{})

	q := &queue{}
	for _, id := range snap.Active(threshold) {
		q.push(id)
	}

	for !q.empty() {
		u := q.pop()
		res.Dequeues++

		if res.Visits[u] > e.cfg.MaxDepth {
			capped[u] = struct{}{}
			continue
		}
		res.Visits[u]++

		force := snap.Get(u) - scores.Equilibrium
		if math.Abs(force) < threshold {
			continue
		}

		for _, edge := range g.Edges(u) {
			impact := force * edge.Weight
			before := snap.Get(edge.Target)
			after := scores.Clamp(before + impact)
			if math.Abs(after-before) <= threshold {
				continue
			}
			snap[edge.Target] = after
			q.push(edge.Target)
			res.Updates++
			if e.cfg.Trace {
				res.Trace = append(res.Trace, Update{
					Step:   res.Dequeues,
					Source: u,
					Target: edge.Target,
					Force:  force,
					Weight: edge.Weight,
					Impact: impact,
					Before: before,
					After:  after,
				})
			}
		}
	}

	for id := range capped {
		res.Capped = append(res.Capped, id)
	}
	sort.Strings(res.Capped)
	return res
}

// Simulate runs a single simulation with cfg.
func Simulate(g *graph.Graph, initial scores.Snapshot, cfg Config) *Result {
	return NewEngine(cfg).Run(g, initial)
}

// queue is a FIFO of sector ids that reuses its backing array.
type queue struct {
	items []string
	head  int
}

func (q *queue) push(id string) { q.items = append(q.items, id) }

func (q *queue) empty() bool { return q.head >= len(q.items) }

func (q *queue) pop() string {
	id := q.items[q.head]
	q.head++
	if q.head >= 1024 && q.head*2 >= len(q.items) {
		q.items = append(q.items[:0], q.items[q.head:]...)
		q.head = 0
	}
	return id
}
