package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sawpanic/sectorpulse/internal/scores"
)

// LinearTrend fits a least-squares line through the rolling mean of the
// history and extends it month by month.
type LinearTrend struct {
	cfg Config
}

// NewLinearTrend applies defaults to non-positive fields.
func NewLinearTrend(cfg Config) *LinearTrend {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Z <= 0 {
		cfg.Z = def.Z
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = def.Horizon
	}
	return &LinearTrend{cfg: cfg}
}

func (l *LinearTrend) Name() string { return "linear_trend" }

// Config returns the effective configuration.
func (l *LinearTrend) Config() Config { return l.cfg }

func (l *LinearTrend) Predict(ctx context.Context, sector string, history []Point, horizon int) ([]Forecast, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if horizon <= 0 {
		horizon = l.cfg.Horizon
	}
	pts := sortedCopy(history)
	if len(pts) < 2 {
		return nil, fmt.Errorf("%s: %d points: %w", sector, len(pts), ErrInsufficientHistory)
	}

	origin := pts[0].Date
	xs, ys := smooth(origin, pts, l.window(len(pts)))
	slope, intercept := fitLine(xs, ys)
	sd := residualStdDev(xs, ys, slope, intercept)
	band := l.cfg.Z * sd

	last := pts[len(pts)-1].Date
	lastX := monthIndex(origin, last)
	out := make([]Forecast, horizon)
	for k := 1; k <= horizon; k++ {
		x := lastX + float64(k)
		y := intercept + slope*x
		out[k-1] = Forecast{
			Date:  monthStart(last).AddDate(0, k, 0),
			Score: scores.Clamp(y),
			Lower: scores.Clamp(y - band),
			Upper: scores.Clamp(y + band),
		}
	}
	return out, nil
}

// window shrinks to 1 when the series cannot yield two smoothed points.
func (l *LinearTrend) window(n int) int {
	if n < l.cfg.Window+1 {
		return 1
	}
	return l.cfg.Window
}

// smooth returns trailing rolling means placed at the centre of their window,
// so a straight line survives smoothing unchanged.
func smooth(origin time.Time, pts []Point, w int) ([]float64, []float64) {
	xs := make([]float64, 0, len(pts)-w+1)
	ys := make([]float64, 0, len(pts)-w+1)
	var sumX, sumY float64
	for i, p := range pts {
		sumX += monthIndex(origin, p.Date)
		sumY += p.Score
		if i >= w {
			sumX -= monthIndex(origin, pts[i-w].Date)
			sumY -= pts[i-w].Score
		}
		if i >= w-1 {
			xs = append(xs, sumX/float64(w))
			ys = append(ys, sumY/float64(w))
		}
	}
	return xs, ys
}

func fitLine(xs, ys []float64) (slope, intercept float64) {
	n := float64(len(xs))
	var mx, my float64
	for i := range xs {
		mx += xs[i]
		my += ys[i]
	}
	mx /= n
	my /= n
	var sxy, sxx float64
	for i := range xs {
		sxy += (xs[i] - mx) * (ys[i] - my)
		sxx += (xs[i] - mx) * (xs[i] - mx)
	}
	if sxx == 0 {
		return 0, my
	}
	slope = sxy / sxx
	return slope, my - slope*mx
}

func residualStdDev(xs, ys []float64, slope, intercept float64) float64 {
	if len(xs) <= 2 {
		return 0
	}
	var ss float64
	for i := range xs {
		r := ys[i] - (intercept + slope*xs[i])
		ss += r * r
	}
	return math.Sqrt(ss / float64(len(xs)-2))
}
