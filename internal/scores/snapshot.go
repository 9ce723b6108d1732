// Package scores holds the sector score snapshot consumed and produced by the
// propagation engine.
package scores

import (
	"math"
	"sort"
)

const (
	// Equilibrium is the neutral score from which deviation drives propagation.
	Equilibrium = 50.0
	Min         = 0.0
	Max         = 100.0
)

// Snapshot maps sector id to score in [0,100].
type Snapshot map[string]float64

// Clamp bounds v to [Min, Max]. NaN maps to Equilibrium.
func Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return Equilibrium
	}
	return math.Max(Min, math.Min(Max, v))
}

// Clone returns an independent copy.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Get returns the score of id, or Equilibrium when absent.
func (s Snapshot) Get(id string) float64 {
	if v, ok := s[id]; ok {
		return v
	}
	return Equilibrium
}

// Set stores a clamped score.
func (s Snapshot) Set(id string, v float64) {
	s[id] = Clamp(v)
}

// IDs returns the sector ids in ascending order.
func (s Snapshot) IDs() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Active returns, in ascending id order, the sectors deviating from
// Equilibrium by more than threshold.
func (s Snapshot) Active(threshold float64) []string {
	var out []string
	for _, id := range s.IDs() {
		if math.Abs(s[id]-Equilibrium) > threshold {
			out = append(out, id)
		}
	}
	return out
}

// Delta is the change of one sector between two snapshots.
type Delta struct {
	Sector string  `json:"sector"`
	Before float64 `json:"before"`
	After  float64 `json:"after"`
	Change float64 `json:"change"`
}

// Diff lists sectors whose score differs between s (before) and after,
// ordered by descending absolute change. Missing entries count as Equilibrium.
func (s Snapshot) Diff(after Snapshot) []Delta {
	seen := make(map[string]struct{}, len(s)+len(after))
	for k := range s {
		seen[k] = struct{}{}
	}
	for k := range after {
		seen[k] = struct{}{}
	}
	var out []Delta
	for id := range seen {
		b, a := s.Get(id), after.Get(id)
		if a == b {
			continue
		}
		out = append(out, Delta{Sector: id, Before: b, After: a, Change: a - b})
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := math.Abs(out[i].Change), math.Abs(out[j].Change)
		if ci != cj {
			return ci > cj
		}
		return out[i].Sector < out[j].Sector
	})
	return out
}
