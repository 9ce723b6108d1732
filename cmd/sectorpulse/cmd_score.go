package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/sectorpulse/internal/scoring"
	"github.com/sawpanic/sectorpulse/internal/sector"
)

// scoreSummary is the JSON form of the score command
type scoreSummary struct {
	Output  string        `json:"output"`
	Rows    int           `json:"rows"`
	Mock    bool          `json:"mock"`
	Latest  []scoring.Row `json:"latest"`
	Created time.Time     `json:"created"`
}

func (a *app) scoreCmd() *cobra.Command {
	var (
		hardPath string
		softPath string
		outPath  string
		mock     bool
		seed     int64
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Compute the sector health index",
		Long: `Merge yearly financial data with monthly macro and sentiment data, compute
growth, margin and risk features, and write the Health_Score master table used
by the simulator.

Examples:
  sectorpulse score --hard data/hard_data.csv --soft data/soft_data.csv
  sectorpulse score --mock --seed 7 --out data/MASTER_DATA.csv`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc := a.cfg.Scoring
			if hardPath == "" {
				hardPath = sc.HardPath
			}
			if softPath == "" {
				softPath = sc.SoftPath
			}
			if outPath == "" {
				outPath = a.cfg.Scores.Path
			}
			if !cmd.Flags().Changed("seed") {
				seed = sc.Seed
			}

			var (
				hard []scoring.HardRecord
				soft []scoring.SoftRecord
				err  error
			)
			if mock {
				opts := scoring.DefaultMockOptions()
				opts.Seed = seed
				if wl := a.cfg.Graph.Whitelist; len(wl) > 0 {
					opts.Codes = wl
				}
				hard, soft = scoring.Mock(opts)
				log.Info().Int64("seed", seed).Msg("Using synthetic input data")
			} else {
				hard, soft, err = scoring.LoadInputs(hardPath, softPath)
				if errors.Is(err, scoring.ErrDataUnavailable) {
					return fmt.Errorf("%w; run with --mock to generate synthetic data", err)
				}
				if err != nil {
					return err
				}
			}

			rows, err := scoring.NewPipeline(sc.Config).Run(hard, soft, time.Now())
			if err != nil {
				return err
			}
			if err := scoring.SaveMaster(outPath, rows); err != nil {
				return err
			}
			log.Info().Str("path", outPath).Int("rows", len(rows)).Msg("Master table written")

			return a.printScores(scoreSummary{
				Output:  outPath,
				Rows:    len(rows),
				Mock:    mock,
				Latest:  latestRows(rows),
				Created: time.Now().UTC(),
			})
		},
	}

	cmd.Flags().StringVar(&hardPath, "hard", "", "Yearly financial table (default from config)")
	cmd.Flags().StringVar(&softPath, "soft", "", "Monthly macro/sentiment table (default from config)")
	cmd.Flags().StringVar(&outPath, "out", "", "Master table output (default scores.path)")
	cmd.Flags().BoolVar(&mock, "mock", false, "Generate synthetic inputs instead of reading files")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Seed for --mock")
	return cmd
}

// latestRows keeps the most recent row of each sector, in code order.
func latestRows(rows []scoring.Row) []scoring.Row {
	last := make(map[string]int)
	var order []string
	for i, r := range rows {
		j, ok := last[r.Code]
		if !ok {
			order = append(order, r.Code)
		}
		if !ok || !r.Date.Before(rows[j].Date) {
			last[r.Code] = i
		}
	}
	out := make([]scoring.Row, 0, len(order))
	for _, code := range order {
		out = append(out, rows[last[code]])
	}
	return out
}

func (a *app) printScores(s scoreSummary) error {
	if !a.tableOutput() {
		return writeJSONOut(a.out, s)
	}
	rows := make([][]any, 0, len(s.Latest))
	for _, r := range s.Latest {
		rows = append(rows, []any{r.Code, sector.Label(r.Code), r.Date.Format("2006-01"), r.Score, string(r.Class)})
	}
	title := fmt.Sprintf("Health index: %d rows written to %s", s.Rows, s.Output)
	return table(a.out, title, []any{"SECTOR", "LABEL", "MONTH", "SCORE", "CLASS"}, rows)
}
