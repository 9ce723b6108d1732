package propagation

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/sawpanic/sectorpulse/internal/graph"
	"github.com/sawpanic/sectorpulse/internal/scores"
)

// randomNetwork builds a graph of n sectors with fractional weights in (0,1)
// and a random snapshot, both derived from seed.
func randomNetwork(seed int64, n int) (*graph.Graph, scores.Snapshot) {
	r := rand.New(rand.NewSource(seed))
	adj := make(map[string][]graph.Edge, n)
	snap := make(scores.Snapshot, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("S%02d", i)
		snap[id] = r.Float64() * 100
		for j := 0; j < n; j++ {
			if r.Float64() < 0.35 {
				adj[id] = append(adj[id], graph.Edge{
					Target: fmt.Sprintf("S%02d", j),
					Weight: 0.01 + r.Float64()*0.98,
				})
			}
		}
	}
	return graph.New(adj), snap
}

func TestEngineProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("scores stay within [0,100]", prop.ForAll(
		func(seed int64, n int) bool {
			g, snap := randomNetwork(seed, n)
			res := Simulate(g, snap, DefaultConfig())
			for _, v := range res.Scores {
				if v < scores.Min || v > scores.Max {
					return false
				}
			}
			return true
		},
		gen.Int64(),
		gen.IntRange(1, 16),
	))

	properties.Property("input snapshot is never mutated", prop.ForAll(
		func(seed int64, n int) bool {
			g, snap := randomNetwork(seed, n)
			before := snap.Clone()
			Simulate(g, snap, DefaultConfig())
			if len(before) != len(snap) {
				return false
			}
			for k, v := range before {
				if snap[k] != v {
					return false
				}
			}
			return true
		},
		gen.Int64(),
		gen.IntRange(1, 16),
	))

	properties.Property("no sector is processed more than max_depth+1 times", prop.ForAll(
		func(seed int64, n, depth int) bool {
			g, snap := randomNetwork(seed, n)
			res := Simulate(g, snap, Config{ImpactThreshold: 1, MaxDepth: depth})
			for _, v := range res.Visits {
				if v > depth+1 {
					return false
				}
			}
			return true
		},
		gen.Int64(),
		gen.IntRange(1, 16),
		gen.IntRange(1, 5),
	))

	properties.Property("neutral snapshot is a fixed point", prop.ForAll(
		func(seed int64, n int) bool {
			g, snap := randomNetwork(seed, n)
			for k := range snap {
				snap[k] = scores.Equilibrium
			}
			res := Simulate(g, snap, DefaultConfig())
			return res.Dequeues == 0 && len(res.Scores) == len(snap)
		},
		gen.Int64(),
		gen.IntRange(1, 16),
	))

	properties.Property("sinks never source an update", prop.ForAll(
		func(seed int64, n int) bool {
			g, snap := randomNetwork(seed, n)
			snap["SINK"] = 99
			cfg := DefaultConfig()
			cfg.Trace = true
			for _, u := range Simulate(g, snap, cfg).Trace {
				if u.Source == "SINK" {
					return false
				}
			}
			return true
		},
		gen.Int64(),
		gen.IntRange(1, 16),
	))

	properties.TestingRun(t)
}
