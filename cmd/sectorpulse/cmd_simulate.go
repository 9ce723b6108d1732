package main

import (
	"fmt"
	stdio "io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sawpanic/sectorpulse/internal/application/simulate"
	atomicio "github.com/sawpanic/sectorpulse/internal/io"
	"github.com/sawpanic/sectorpulse/internal/scores"
	"github.com/sawpanic/sectorpulse/internal/sector"
)

func (a *app) simulateCmd() *cobra.Command {
	var (
		graphPath  string
		scoresPath string
		shocks     shockFlag
		threshold  float64
		maxDepth   int
		trace      bool
		outPath    string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Propagate sector shocks through the dependency graph",
		Long: `Apply one or more shocks to the latest sector scores and propagate them
to client sectors until every change falls below the impact threshold.

Examples:
  sectorpulse simulate --shock 62=+10
  sectorpulse simulate --shock 41=-20 --shock 68=-10 --trace
  sectorpulse simulate --shock 24=30 --out out/after.csv`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(shocks.shocks) == 0 {
				return fmt.Errorf("at least one --shock is required")
			}
			src := a.sources()
			if graphPath != "" {
				src.GraphPath = graphPath
			}
			if scoresPath != "" {
				src.ScoresPath = scoresPath
			}

			ctx := cmd.Context()
			rt, err := a.newWired(ctx, src, a.cfg.Propagation)
			if err != nil {
				return err
			}
			defer rt.Close()

			resp, err := rt.svc.Run(ctx, simulate.Request{
				Shocks:          shocks.shocks,
				ImpactThreshold: threshold,
				MaxDepth:        maxDepth,
				Trace:           trace,
			})
			if err != nil {
				return err
			}
			if outPath != "" {
				if err := saveSnapshot(outPath, resp.Result.Scores); err != nil {
					return err
				}
			}
			return a.printSimulation(resp)
		},
	}

	cmd.Flags().StringVar(&graphPath, "graph", "", "Dependency table (default from config)")
	cmd.Flags().StringVar(&scoresPath, "scores", "", "Score master table (default from config)")
	cmd.Flags().Var(&shocks, "shock", "Shock as SECTOR=VALUE, absolute (62=80) or relative (62=+10); repeatable")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Impact threshold override")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "Per-sector processing cap override")
	cmd.Flags().BoolVar(&trace, "trace", false, "Include every material update")
	cmd.Flags().StringVar(&outPath, "out", "", "Write the final snapshot to a .csv or .json file")
	return cmd
}

// saveSnapshot writes snap atomically as JSON or CSV depending on the extension.
func saveSnapshot(path string, snap scores.Snapshot) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return atomicio.WriteJSONAtomic(path, snap)
	}
	return atomicio.WriteStreamAtomic(path, func(w stdio.Writer) error {
		return scores.WriteCSV(w, snap)
	})
}

func (a *app) printSimulation(resp *simulate.Response) error {
	if !a.tableOutput() {
		return writeJSONOut(a.out, resp)
	}

	rows := make([][]any, 0, len(resp.Changes))
	for _, d := range resp.Changes {
		rows = append(rows, []any{d.Sector, sector.Label(d.Sector), d.Before, d.After, fmt.Sprintf("%+.2f", d.Change)})
	}
	title := fmt.Sprintf("Simulation %s (baseline: %s)", resp.RunID, resp.Source)
	if err := table(a.out, title, []any{"SECTOR", "LABEL", "BEFORE", "AFTER", "CHANGE"}, rows); err != nil {
		return err
	}

	res := resp.Result
	fmt.Fprintf(a.out, "\n%d dequeues, %d updates, threshold %.2f, max depth %d\n",
		res.Dequeues, res.Updates, resp.Config.ImpactThreshold, resp.Config.MaxDepth)
	if !res.Quiescent() {
		fmt.Fprintf(a.out, "Depth cap reached for: %s\n", strings.Join(res.Capped, ", "))
	}
	if len(res.Trace) > 0 {
		trows := make([][]any, 0, len(res.Trace))
		for _, u := range res.Trace {
			trows = append(trows, []any{u.Step, u.Source, u.Target, u.Force, u.Weight, u.Before, u.After})
		}
		fmt.Fprintln(a.out)
		return table(a.out, "Trace", []any{"STEP", "FROM", "TO", "FORCE", "WEIGHT", "BEFORE", "AFTER"}, trows)
	}
	return nil
}
