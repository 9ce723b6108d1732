package graph

import "sort"

// budgetEpsilon absorbs float error in normalized outgoing sums.
const budgetEpsilon = 1e-9

// BudgetViolation is a supplier whose outgoing weights sum above 1.
type BudgetViolation struct {
	Supplier string  `json:"supplier"`
	Total    float64 `json:"total"`
}

// HeavyEdge is a single edge that passes on the full force or more.
type HeavyEdge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Weight float64 `json:"weight"`
}

// StabilityReport lists structures that can keep a simulation alive until
// the per-node depth cap stops it.
type StabilityReport struct {
	OverBudget []BudgetViolation `json:"over_budget,omitempty"`
	HeavyEdges []HeavyEdge       `json:"heavy_edges,omitempty"`
	Cycles     [][]string        `json:"cycles,omitempty"`
	SelfLoops  []string          `json:"self_loops,omitempty"`
}

// Stable reports whether every supplier stays within its influence budget and
// no edge carries a weight of 1 or more.
func (r StabilityReport) Stable() bool {
	return len(r.OverBudget) == 0 && len(r.HeavyEdges) == 0
}

// CheckStability inspects g for weights that may not decay under propagation.
func CheckStability(g *Graph) StabilityReport {
	var r StabilityReport
	for _, src := range g.Suppliers() {
		total := 0.0
		for _, e := range g.adj[src] {
			total += e.Weight
			if e.Weight >= 1 {
				r.HeavyEdges = append(r.HeavyEdges, HeavyEdge{Source: src, Target: e.Target, Weight: e.Weight})
			}
			if e.Target == src {
				r.SelfLoops = append(r.SelfLoops, src)
			}
		}
		if total > 1+budgetEpsilon {
			r.OverBudget = append(r.OverBudget, BudgetViolation{Supplier: src, Total: total})
		}
	}
	for _, scc := range StronglyConnected(g) {
		if len(scc) > 1 {
			r.Cycles = append(r.Cycles, scc)
		}
	}
	return r
}

type tarjanState struct {
	index   int
	lowlink int
	onStack bool
}

// StronglyConnected returns the strongly connected components of g using
// Tarjan's algorithm. Members of each component are sorted; components are
// ordered by their first member.
func StronglyConnected(g *Graph) [][]string {
	state := make(map[string]*tarjanState, len(g.nodes))
	var (
		stack      []string
		counter    int
		components [][]string
	)

	var connect func(u string)
	connect = func(u string) {
		state[u] = &tarjanState{index: counter, lowlink: counter, onStack: true}
		counter++
		stack = append(stack, u)

		for _, e := range g.adj[u] {
			v := e.Target
			if _, seen := state[v]; !seen {
				connect(v)
				if state[v].lowlink < state[u].lowlink {
					state[u].lowlink = state[v].lowlink
				}
			} else if state[v].onStack && state[v].index < state[u].lowlink {
				state[u].lowlink = state[v].index
			}
		}

		if state[u].lowlink == state[u].index {
			var members []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				state[w].onStack = false
				members = append(members, w)
				if w == u {
					break
				}
			}
			sort.Strings(members)
			components = append(components, members)
		}
	}

	for _, id := range g.Nodes() {
		if _, seen := state[id]; !seen {
			connect(id)
		}
	}
	sort.Slice(components, func(i, j int) bool { return components[i][0] < components[j][0] })
	return components
}
