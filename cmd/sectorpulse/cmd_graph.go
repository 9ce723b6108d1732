package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/sectorpulse/internal/graph"
	"github.com/sawpanic/sectorpulse/internal/sector"
)

// graphSummary is the JSON form of the graph command
type graphSummary struct {
	Nodes     int                     `json:"nodes"`
	Edges     int                     `json:"edges"`
	Report    graph.LoadReport        `json:"report"`
	Top       map[string][]graph.Edge `json:"top"`
	Stability *graph.StabilityReport  `json:"stability,omitempty"`
}

func (a *app) graphCmd() *cobra.Command {
	var (
		graphPath string
		format    string
		top       int
		stability bool
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Inspect the sector dependency graph",
		Long: `Load the dependency table, normalize each supplier's weights and list the
strongest client links. With --stability, report suppliers and cycles that can
keep a simulation alive until the depth cap stops it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if graphPath == "" {
				graphPath = a.cfg.Graph.Path
			}
			opts := a.cfg.GraphLoadOptions()
			if format != "" {
				opts.Format = graph.Format(format)
			}
			if top <= 0 {
				top = a.cfg.Graph.TopN
			}

			g, report, err := graph.Load(graphPath, opts)
			if err != nil {
				if errors.Is(err, graph.ErrDataUnavailable) {
					return fmt.Errorf("%w (path %s)", err, graphPath)
				}
				return err
			}
			if report.Malformed > 0 {
				log.Warn().Int("cells", report.Malformed).Msg("Skipped malformed dependency values")
			}

			summary := graphSummary{
				Nodes:  g.NodeCount(),
				Edges:  g.EdgeCount(),
				Report: report,
				Top:    make(map[string][]graph.Edge),
			}
			for _, id := range g.Suppliers() {
				summary.Top[id] = g.TopDependencies(id, top)
			}
			if stability {
				st := graph.CheckStability(g)
				summary.Stability = &st
			}
			return a.printGraph(g, summary)
		},
	}

	cmd.Flags().StringVar(&graphPath, "graph", "", "Dependency table (default from config)")
	cmd.Flags().StringVar(&format, "format", "", "Table layout: matrix or edges (default from config)")
	cmd.Flags().IntVar(&top, "top", 0, "Strongest links listed per supplier (default from config)")
	cmd.Flags().BoolVar(&stability, "stability", false, "Check weights and cycles that may not decay")
	return cmd
}

func (a *app) printGraph(g *graph.Graph, s graphSummary) error {
	if !a.tableOutput() {
		return writeJSONOut(a.out, s)
	}

	rows := make([][]any, 0, len(s.Top))
	for _, id := range g.Suppliers() {
		links := make([]string, 0, len(s.Top[id]))
		for _, e := range s.Top[id] {
			links = append(links, fmt.Sprintf("%s %.1f%%", e.Target, e.Weight*100))
		}
		rows = append(rows, []any{id, sector.Label(id), len(g.Edges(id)), strings.Join(links, ", ")})
	}
	title := fmt.Sprintf("%d sectors, %d links", s.Nodes, s.Edges)
	if err := table(a.out, title, []any{"SUPPLIER", "LABEL", "CLIENTS", "TOP LINKS"}, rows); err != nil {
		return err
	}
	if len(s.Report.DroppedRows)+len(s.Report.DroppedColumns) > 0 {
		fmt.Fprintf(a.out, "\nOutside whitelist: %d rows, %d columns\n", len(s.Report.DroppedRows), len(s.Report.DroppedColumns))
	}

	if st := s.Stability; st != nil {
		fmt.Fprintln(a.out)
		if st.Stable() {
			fmt.Fprintln(a.out, titleStyle.Render("Stable: every supplier within its influence budget"))
		} else {
			fmt.Fprintln(a.out, titleStyle.Render("Unstable structures"))
		}
		for _, v := range st.OverBudget {
			fmt.Fprintf(a.out, "  over budget: %s total %.3f\n", v.Supplier, v.Total)
		}
		for _, e := range st.HeavyEdges {
			fmt.Fprintf(a.out, "  heavy edge: %s -> %s %.3f\n", e.Source, e.Target, e.Weight)
		}
		for _, c := range st.Cycles {
			fmt.Fprintf(a.out, "  cycle: %s\n", strings.Join(c, " <-> "))
		}
		for _, id := range st.SelfLoops {
			fmt.Fprintf(a.out, "  self loop: %s\n", id)
		}
	}
	return nil
}
