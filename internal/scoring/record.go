// Package scoring computes the sector health index from financial,
// macroeconomic and sentiment inputs.
package scoring

import (
	"time"
)

// HardRecord is a yearly financial observation of one sector.
type HardRecord struct {
	Date           time.Time
	Code           string
	Revenue        float64
	Profit         float64
	BankruptcyRate float64
}

// SoftRecord is a monthly macro/sentiment observation of one sector.
type SoftRecord struct {
	Date         time.Time
	Code         string
	GoogleTrends float64
	WIBOR        float64
	EnergyPrice  float64
}

// Row is one sector-month of the master table.
type Row struct {
	Date           time.Time `json:"date"`
	Code           string    `json:"code"`
	Revenue        float64   `json:"revenue"`
	Profit         float64   `json:"profit"`
	BankruptcyRate float64   `json:"bankruptcy_rate"`
	GoogleTrends   float64   `json:"google_trends"`
	WIBOR          float64   `json:"wibor"`
	EnergyPrice    float64   `json:"energy_price"`

	RevGrowthYoY float64 `json:"rev_growth_yoy"`
	ProfitMargin float64 `json:"profit_margin"`

	NormRevGrowth  float64 `json:"norm_rev_growth"`
	NormMargin     float64 `json:"norm_profit_margin"`
	NormTrends     float64 `json:"norm_google_trends"`
	NormWIBOR      float64 `json:"norm_wibor"`
	NormEnergy     float64 `json:"norm_energy_price"`
	NormBankruptcy float64 `json:"norm_bankruptcy_rate"`
	NormTotalRisk  float64 `json:"norm_total_risk"`

	RawScore float64 `json:"raw_score"`
	Score    float64 `json:"score"`
	Class    Class   `json:"class"`
}

// Class buckets a health score.
type Class string

const (
	ClassGrowthLeader Class = "growth_leader"
	ClassStable       Class = "stable"
	ClassAtRisk       Class = "at_risk"
)

// monthStart truncates t to the first day of its month (UTC).
func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// monthsBetween counts whole months from a to b (both month starts).
func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}
