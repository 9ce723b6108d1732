package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/sectorpulse/internal/application/simulate"
	"github.com/sawpanic/sectorpulse/internal/forecast"
	"github.com/sawpanic/sectorpulse/internal/infrastructure/db"
	"github.com/sawpanic/sectorpulse/internal/persistence"
	"github.com/sawpanic/sectorpulse/internal/scores"
	"github.com/sawpanic/sectorpulse/internal/sector"
)

// sectorForecast is one sector's projection
type sectorForecast struct {
	Sector    string              `json:"sector"`
	LastScore float64             `json:"last_score"`
	Simulated bool                `json:"simulated,omitempty"`
	Points    []forecast.Forecast `json:"forecast"`
}

// forecastSummary is the JSON form of the forecast command
type forecastSummary struct {
	Model    string                   `json:"model"`
	Horizon  int                      `json:"horizon"`
	Sectors  []sectorForecast         `json:"sectors"`
	Skipped  []string                 `json:"skipped,omitempty"`
	Backtest *forecast.BacktestReport `json:"backtest,omitempty"`
}

func (a *app) forecastCmd() *cobra.Command {
	var (
		historyPath string
		source      string
		sectors     []string
		horizon     int
		cutoff      string
		shocks      shockFlag
		workers     int
	)

	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Project sector health scores forward",
		Long: `Fit a smoothed linear trend to each sector's score history and project it
month by month with a confidence band. With --shock, the post-propagation score
of a simulation becomes the newest observation before fitting.

Examples:
  sectorpulse forecast --horizon 6
  sectorpulse forecast --source db --sector 62
  sectorpulse forecast --sector 41 --shock 41=-15
  sectorpulse forecast --backtest-cutoff 2023-06-01`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if historyPath == "" {
				historyPath = a.cfg.Scores.Path
			}
			if horizon <= 0 {
				horizon = a.cfg.Forecast.Horizon
			}

			series, err := a.loadHistory(ctx, source, historyPath)
			if err != nil {
				return err
			}
			if len(sectors) > 0 {
				keep := sector.NewWhitelist(sectors)
				for id := range series {
					if !keep.Allows(id) {
						delete(series, id)
					}
				}
			}

			model := forecast.NewLinearTrend(a.cfg.Forecast)
			summary := forecastSummary{Model: model.Name(), Horizon: horizon}

			if c := cutoff; c != "" {
				at, err := time.Parse("2006-01-02", c)
				if err != nil {
					return fmt.Errorf("invalid --backtest-cutoff %q: %w", c, err)
				}
				report, err := forecast.Backtest(ctx, model, series, at, forecast.DefaultBacktestOptions())
				if err != nil {
					return err
				}
				summary.Backtest = report
			}

			simulated := map[string]bool{}
			if len(shocks.shocks) > 0 {
				src := a.sources()
				src.ScoresPath = historyPath
				rt, err := a.newWired(ctx, src, a.cfg.Propagation)
				if err != nil {
					return err
				}
				resp, err := rt.svc.Run(ctx, simulate.Request{Shocks: shocks.shocks})
				rt.Close()
				if err != nil {
					return err
				}
				for _, d := range resp.Changes {
					obs := series[d.Sector]
					if len(obs) == 0 {
						continue
					}
					next := obs[len(obs)-1].Date.AddDate(0, 1, 0)
					series[d.Sector] = append(obs, scores.Observation{Date: next, Score: d.After})
					simulated[d.Sector] = true
				}
			}

			history := make(map[string][]forecast.Point, len(series))
			for id, obs := range series {
				history[id] = forecast.FromObservations(obs)
			}
			results, err := forecast.PredictAll(ctx, model, history, horizon, workers)
			if err != nil {
				return err
			}
			for _, r := range results {
				if r.Err != nil {
					log.Debug().Err(r.Err).Str("sector", r.Sector).Msg("Skipping forecast")
					summary.Skipped = append(summary.Skipped, r.Sector)
					continue
				}
				summary.Sectors = append(summary.Sectors, sectorForecast{
					Sector:    r.Sector,
					LastScore: lastScore(r.History),
					Simulated: simulated[r.Sector],
					Points:    r.Forecast,
				})
			}
			return a.printForecast(summary)
		},
	}

	cmd.Flags().StringVar(&historyPath, "scores-history", "", "Score master table with dated rows (default scores.path)")
	cmd.Flags().StringVar(&source, "source", "file", "History source: file (--scores-history) or db (stored baselines)")
	cmd.Flags().StringSliceVar(&sectors, "sector", nil, "Restrict to these sectors")
	cmd.Flags().IntVar(&horizon, "horizon", 0, "Months to project (default from config)")
	cmd.Flags().StringVar(&cutoff, "backtest-cutoff", "", "Backtest against observations after this date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Sectors fitted in parallel (default number of CPUs)")
	cmd.Flags().Var(&shocks, "shock", "Run a simulation first and use its scores as the latest point; repeatable")
	return cmd
}

// loadHistory reads score history from the master table or from the
// baselines stored in the database.
func (a *app) loadHistory(ctx context.Context, source, path string) (scores.Series, error) {
	switch source {
	case "", "file":
		return scores.LoadSeries(path)
	case "db":
		manager, err := db.NewManager(a.cfg.Database)
		if err != nil {
			return nil, err
		}
		defer manager.Close()
		if !manager.IsEnabled() {
			return nil, fmt.Errorf("--source db needs database.enabled")
		}
		return persistence.LoadSeries(ctx, manager.Repository().Scores, nil, persistence.TimeRange{})
	default:
		return nil, fmt.Errorf("unknown --source %q: want file or db", source)
	}
}

// lastScore is the most recent observation of an unsorted history.
func lastScore(history []forecast.Point) float64 {
	last := history[0]
	for _, p := range history[1:] {
		if !p.Date.Before(last.Date) {
			last = p
		}
	}
	return last.Score
}

func (a *app) printForecast(s forecastSummary) error {
	if !a.tableOutput() {
		return writeJSONOut(a.out, s)
	}

	rows := make([][]any, 0, len(s.Sectors))
	for _, f := range s.Sectors {
		end := f.Points[len(f.Points)-1]
		mark := ""
		if f.Simulated {
			mark = "*"
		}
		rows = append(rows, []any{f.Sector + mark, sector.Label(f.Sector), f.LastScore, end.Score, fmt.Sprintf("%.2f-%.2f", end.Lower, end.Upper), end.Date.Format("2006-01")})
	}
	title := fmt.Sprintf("%s forecast, %d months", s.Model, s.Horizon)
	if err := table(a.out, title, []any{"SECTOR", "LABEL", "LAST", "FORECAST", "BAND", "MONTH"}, rows); err != nil {
		return err
	}
	if len(s.Skipped) > 0 {
		fmt.Fprintf(a.out, "\nInsufficient history: %v\n", s.Skipped)
	}

	if bt := s.Backtest; bt != nil {
		brows := make([][]any, 0, len(bt.Sectors))
		for _, e := range bt.Sectors {
			brows = append(brows, []any{e.Sector, e.Train, e.Test, e.MAE})
		}
		fmt.Fprintln(a.out)
		title := fmt.Sprintf("Backtest from %s, mean MAE %.2f", bt.Cutoff.Format("2006-01-02"), bt.MeanMAE)
		return table(a.out, title, []any{"SECTOR", "TRAIN", "TEST", "MAE"}, brows)
	}
	return nil
}
