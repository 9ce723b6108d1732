package forecast

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/sectorpulse/internal/scores"
)

// BacktestOptions sets the minimum series lengths on each side of the cutoff.
type BacktestOptions struct {
	MinTrain int
	MinTest  int
}

// DefaultBacktestOptions requires a year of training and half a year of test data.
func DefaultBacktestOptions() BacktestOptions {
	return BacktestOptions{MinTrain: 12, MinTest: 6}
}

// SectorError is the backtest outcome for one sector.
type SectorError struct {
	Sector string  `json:"sector"`
	MAE    float64 `json:"mae"`
	Train  int     `json:"train_points"`
	Test   int     `json:"test_points"`
}

// BacktestReport aggregates per-sector errors.
type BacktestReport struct {
	Cutoff  time.Time     `json:"cutoff"`
	Sectors []SectorError `json:"sectors"`
	Skipped []string      `json:"skipped,omitempty"`
	MeanMAE float64       `json:"mean_mae"`
}

// Backtest fits p on observations up to cutoff and scores the forecast
// against the observations after it. Sectors failing the length requirements
// or the fit are listed in Skipped.
func Backtest(ctx context.Context, p Predictor, series scores.Series, cutoff time.Time, opts BacktestOptions) (*BacktestReport, error) {
	if opts.MinTrain <= 0 || opts.MinTest <= 0 {
		opts = DefaultBacktestOptions()
	}
	report := &BacktestReport{Cutoff: cutoff}

	ids := make([]string, 0, len(series))
	for id := range series {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var total float64
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pts := sortedCopy(FromObservations(series[id]))
		var train, test []Point
		for _, pt := range pts {
			if pt.Date.After(cutoff) {
				test = append(test, pt)
			} else {
				train = append(train, pt)
			}
		}
		if len(train) < opts.MinTrain || len(test) < opts.MinTest {
			report.Skipped = append(report.Skipped, id)
			continue
		}

		horizon := int(monthIndex(train[len(train)-1].Date, test[len(test)-1].Date))
		fc, err := p.Predict(ctx, id, train, horizon)
		if err != nil {
			log.Warn().Err(err).Str("sector", id).Msg("Backtest fit failed")
			report.Skipped = append(report.Skipped, id)
			continue
		}
		byMonth := make(map[time.Time]float64, len(fc))
		for _, f := range fc {
			byMonth[monthStart(f.Date)] = f.Score
		}

		var sum float64
		var n int
		for _, pt := range test {
			if yhat, ok := byMonth[monthStart(pt.Date)]; ok {
				sum += math.Abs(pt.Score - yhat)
				n++
			}
		}
		if n == 0 {
			report.Skipped = append(report.Skipped, id)
			continue
		}
		mae := sum / float64(n)
		report.Sectors = append(report.Sectors, SectorError{Sector: id, MAE: mae, Train: len(train), Test: n})
		total += mae
	}
	if len(report.Sectors) > 0 {
		report.MeanMAE = total / float64(len(report.Sectors))
	}
	return report, nil
}
