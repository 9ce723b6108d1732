package scoring

import (
	"fmt"
	"math"
)

// Weights blends the normalized features into the raw score. Risk and
// Bankruptcy are subtracted.
type Weights struct {
	ProfitMargin  float64 `yaml:"profit_margin" json:"profit_margin" validate:"gte=0"`
	RevenueGrowth float64 `yaml:"revenue_growth" json:"revenue_growth" validate:"gte=0"`
	Trends        float64 `yaml:"trends" json:"trends" validate:"gte=0"`
	Risk          float64 `yaml:"risk" json:"risk" validate:"gte=0"`
	Bankruptcy    float64 `yaml:"bankruptcy" json:"bankruptcy" validate:"gte=0"`
}

// Sum of the absolute weights.
func (w Weights) Sum() float64 {
	return w.ProfitMargin + w.RevenueGrowth + w.Trends + w.Risk + w.Bankruptcy
}

// Sensitivity is how strongly a sector reacts to interest rates and energy prices.
type Sensitivity struct {
	WIBOR  float64 `yaml:"wibor" json:"wibor"`
	Energy float64 `yaml:"energy" json:"energy"`
}

// Config holds the formula constants of the index.
type Config struct {
	Weights            Weights                `yaml:"weights" json:"weights"`
	DefaultSensitivity Sensitivity            `yaml:"default_sensitivity" json:"default_sensitivity"`
	Sensitivity        map[string]Sensitivity `yaml:"sensitivity" json:"sensitivity"`
	LeaderThreshold    float64                `yaml:"leader_threshold" json:"leader_threshold" validate:"gte=0,lte=100"`
	StableThreshold    float64                `yaml:"stable_threshold" json:"stable_threshold" validate:"gte=0,lte=100"`
	YoYLag             int                    `yaml:"yoy_lag" json:"yoy_lag" validate:"gte=1"`
}

// DefaultConfig returns the expert weights and risk table of the index.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			ProfitMargin:  0.20,
			RevenueGrowth: 0.25,
			Trends:        0.25,
			Risk:          0.15,
			Bankruptcy:    0.15,
		},
		DefaultSensitivity: Sensitivity{WIBOR: 0.5, Energy: 0.5},
		Sensitivity: map[string]Sensitivity{
			"41": {WIBOR: 1.0, Energy: 0.3}, // construction
			"68": {WIBOR: 1.0, Energy: 0.2}, // real estate
			"24": {WIBOR: 0.4, Energy: 1.0}, // metals
			"35": {WIBOR: 0.3, Energy: -0.5},
			"49": {WIBOR: 0.5, Energy: 0.8},
			"10": {WIBOR: 0.4, Energy: 0.6},
		},
		LeaderThreshold: 70,
		StableThreshold: 40,
		YoYLag:          12,
	}
}

// SensitivityFor returns the table entry for code or the default.
func (c Config) SensitivityFor(code string) Sensitivity {
	if s, ok := c.Sensitivity[code]; ok {
		return s
	}
	return c.DefaultSensitivity
}

// Classify buckets a score.
func (c Config) Classify(score float64) Class {
	switch {
	case score >= c.LeaderThreshold:
		return ClassGrowthLeader
	case score >= c.StableThreshold:
		return ClassStable
	default:
		return ClassAtRisk
	}
}

// Validate checks the weights sum to 1 and the class thresholds are ordered.
func (c Config) Validate() error {
	if sum := c.Weights.Sum(); math.Abs(sum-1.0) > 0.001 {
		return fmt.Errorf("scoring weights sum to %.3f, expected 1.000", sum)
	}
	if c.StableThreshold > c.LeaderThreshold {
		return fmt.Errorf("stable threshold %.1f above leader threshold %.1f", c.StableThreshold, c.LeaderThreshold)
	}
	return nil
}
