package scoring

import (
	"math"
	"math/rand"
	"time"

	"github.com/sawpanic/sectorpulse/internal/sector"
)

// MockOptions controls the synthetic data generator.
type MockOptions struct {
	Seed   int64
	Start  time.Time
	Months int
	Codes  []string
}

// DefaultMockOptions covers the key industries over 54 months from January 2020.
func DefaultMockOptions() MockOptions {
	return MockOptions{
		Seed:   42,
		Start:  time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
		Months: 54,
		Codes:  sector.KeyIndustries,
	}
}

// Mock generates hard and soft tables deterministically from opts.Seed.
// Hard records are emitted every January plus the final month so Upsample
// reconstructs the full range.
func Mock(opts MockOptions) ([]HardRecord, []SoftRecord) {
	def := DefaultMockOptions()
	if opts.Months <= 0 {
		opts.Months = def.Months
	}
	if opts.Start.IsZero() {
		opts.Start = def.Start
	}
	if len(opts.Codes) == 0 {
		opts.Codes = def.Codes
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	start := monthStart(opts.Start)

	var hard []HardRecord
	var soft []SoftRecord
	for _, code := range opts.Codes {
		baseRev := 2000 + float64(rng.Intn(8000))
		for m := 0; m < opts.Months; m++ {
			date := start.AddDate(0, m, 0)
			rev := baseRev + math.Sin(float64(date.Month()))*500 + float64(rng.Intn(400)-200)

			if date.Month() == time.January || m == opts.Months-1 {
				hard = append(hard, HardRecord{
					Date:           date,
					Code:           code,
					Revenue:        rev,
					Profit:         rev * (0.05 + rng.Float64()*0.15),
					BankruptcyRate: rng.Float64() * 0.05,
				})
			}

			wibor := 0.2
			if date.Year() > 2021 {
				wibor = 5.85
			}
			soft = append(soft, SoftRecord{
				Date:         date,
				Code:         code,
				GoogleTrends: float64(30 + rng.Intn(50)),
				WIBOR:        wibor,
				EnergyPrice:  100 + float64(date.Year()-2020)*20,
			})
		}
	}
	return hard, soft
}
