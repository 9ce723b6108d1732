// Package forecast projects sector health scores forward in time.
package forecast

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/sawpanic/sectorpulse/internal/scores"
)

// ErrInsufficientHistory is returned when a series is too short to fit.
var ErrInsufficientHistory = errors.New("insufficient history")

// Point is one observed score.
type Point struct {
	Date  time.Time `json:"date"`
	Score float64   `json:"score"`
}

// Forecast is one predicted month with its confidence band.
type Forecast struct {
	Date  time.Time `json:"date"`
	Score float64   `json:"score"`
	Lower float64   `json:"lower"`
	Upper float64   `json:"upper"`
}

// Predictor produces monthly forecasts for one sector. Implementations are
// opaque to callers; history need not be sorted.
type Predictor interface {
	Name() string
	Predict(ctx context.Context, sector string, history []Point, horizon int) ([]Forecast, error)
}

// Config tunes the default predictor.
type Config struct {
	Window  int     `yaml:"window" json:"window" validate:"gte=1"`
	Z       float64 `yaml:"z" json:"z" validate:"gt=0"`
	Horizon int     `yaml:"horizon" json:"horizon" validate:"gte=1"`
}

// DefaultConfig smooths over 6 months and reports an 80% band one year ahead.
func DefaultConfig() Config {
	return Config{Window: 6, Z: 1.2816, Horizon: 12}
}

// FromObservations converts a stored score series into forecast points.
func FromObservations(obs []scores.Observation) []Point {
	out := make([]Point, len(obs))
	for i, o := range obs {
		out[i] = Point{Date: o.Date, Score: o.Score}
	}
	return out
}

func sortedCopy(history []Point) []Point {
	out := append([]Point(nil), history...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func monthIndex(origin, t time.Time) float64 {
	a, b := monthStart(origin), monthStart(t)
	return float64((b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month()))
}
