package scoring

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/sectorpulse/internal/scores"
)

// ErrNoOverlap is returned when hard and soft data share no (month, sector) pair.
var ErrNoOverlap = errors.New("hard and soft data do not overlap")

// Pipeline turns raw tables into the master table of health scores.
type Pipeline struct {
	cfg Config
}

// NewPipeline creates a pipeline. Zero-valued fields of cfg fall back to DefaultConfig.
func NewPipeline(cfg Config) *Pipeline {
	def := DefaultConfig()
	if cfg.Weights.Sum() == 0 {
		cfg.Weights = def.Weights
	}
	if cfg.DefaultSensitivity == (Sensitivity{}) {
		cfg.DefaultSensitivity = def.DefaultSensitivity
	}
	if cfg.Sensitivity == nil {
		cfg.Sensitivity = def.Sensitivity
	}
	if cfg.LeaderThreshold == 0 && cfg.StableThreshold == 0 {
		cfg.LeaderThreshold = def.LeaderThreshold
		cfg.StableThreshold = def.StableThreshold
	}
	if cfg.YoYLag <= 0 {
		cfg.YoYLag = def.YoYLag
	}
	return &Pipeline{cfg: cfg}
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Run computes the master table. Rows dated after now are dropped. The result
// is ordered by sector code, then date.
func (p *Pipeline) Run(hard []HardRecord, soft []SoftRecord, now time.Time) ([]Row, error) {
	monthly := Upsample(hard)
	softByKey := aggregateSoft(soft)

	cutoff := monthStart(now)
	var rows []Row
	for _, h := range monthly {
		s, ok := softByKey[key{h.Code, h.Date}]
		if !ok || h.Date.After(cutoff) {
			continue
		}
		rows = append(rows, Row{
			Date:           h.Date,
			Code:           h.Code,
			Revenue:        h.Revenue,
			Profit:         h.Profit,
			BankruptcyRate: h.BankruptcyRate,
			GoogleTrends:   s.GoogleTrends,
			WIBOR:          s.WIBOR,
			EnergyPrice:    s.EnergyPrice,
		})
	}
	if len(rows) == 0 {
		return nil, ErrNoOverlap
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Code != rows[j].Code {
			return rows[i].Code < rows[j].Code
		}
		return rows[i].Date.Before(rows[j].Date)
	})

	p.features(rows)
	p.normalize(rows)
	p.score(rows)

	log.Debug().Int("rows", len(rows)).Int("hard", len(hard)).Int("soft", len(soft)).Msg("health index computed")
	return rows, nil
}

type key struct {
	code  string
	month time.Time
}

// features fills RevGrowthYoY and ProfitMargin. rows must be sorted by code, date.
func (p *Pipeline) features(rows []Row) {
	lag := p.cfg.YoYLag
	start := 0
	for i := range rows {
		if rows[i].Code != rows[start].Code {
			start = i
		}
		if i-start >= lag {
			prev := rows[i-lag].Revenue
			if prev != 0 {
				rows[i].RevGrowthYoY = rows[i].Revenue/prev - 1
			}
		}
		if rows[i].Revenue != 0 {
			rows[i].ProfitMargin = rows[i].Profit / rows[i].Revenue
		}
	}
}

func (p *Pipeline) normalize(rows []Row) {
	column := func(get func(*Row) float64, set func(*Row, float64)) {
		vals := make([]float64, len(rows))
		for i := range rows {
			vals[i] = get(&rows[i])
		}
		norm := MinMax(vals)
		for i := range rows {
			set(&rows[i], norm[i])
		}
	}
	column(func(r *Row) float64 { return r.RevGrowthYoY }, func(r *Row, v float64) { r.NormRevGrowth = v })
	column(func(r *Row) float64 { return r.ProfitMargin }, func(r *Row, v float64) { r.NormMargin = v })
	column(func(r *Row) float64 { return r.GoogleTrends }, func(r *Row, v float64) { r.NormTrends = v })
	column(func(r *Row) float64 { return r.WIBOR }, func(r *Row, v float64) { r.NormWIBOR = v })
	column(func(r *Row) float64 { return r.EnergyPrice }, func(r *Row, v float64) { r.NormEnergy = v })
	column(func(r *Row) float64 { return r.BankruptcyRate }, func(r *Row, v float64) { r.NormBankruptcy = v })

	column(func(r *Row) float64 {
		s := p.cfg.SensitivityFor(r.Code)
		return r.NormWIBOR*s.WIBOR + r.NormEnergy*s.Energy
	}, func(r *Row, v float64) { r.NormTotalRisk = v })
}

func (p *Pipeline) score(rows []Row) {
	w := p.cfg.Weights
	raw := make([]float64, len(rows))
	for i := range rows {
		r := &rows[i]
		r.RawScore = w.ProfitMargin*r.NormMargin +
			w.RevenueGrowth*r.NormRevGrowth +
			w.Trends*r.NormTrends -
			w.Risk*r.NormTotalRisk -
			w.Bankruptcy*r.NormBankruptcy
		raw[i] = r.RawScore
	}
	final := MinMax(raw)
	for i := range rows {
		rows[i].Score = final[i]
		rows[i].Class = p.cfg.Classify(final[i])
	}
}

// MinMax rescales values to [0,100]. A constant (or empty) column maps to 50.
func MinMax(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo
	for i, v := range values {
		if span == 0 {
			out[i] = scores.Equilibrium
			continue
		}
		out[i] = (v - lo) / span * scores.Max
	}
	return out
}

// Upsample converts yearly hard records into month-start records by linear
// interpolation between consecutive observations of the same sector.
// Several records in one month collapse to the last one.
func Upsample(hard []HardRecord) []HardRecord {
	bySector := make(map[string][]HardRecord)
	for _, h := range hard {
		h.Date = monthStart(h.Date)
		bySector[h.Code] = append(bySector[h.Code], h)
	}
	codes := make([]string, 0, len(bySector))
	for code := range bySector {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var out []HardRecord
	for _, code := range codes {
		recs := bySector[code]
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].Date.Before(recs[j].Date) })
		recs = dedupeMonths(recs)

		out = append(out, recs[0])
		for i := 1; i < len(recs); i++ {
			a, b := recs[i-1], recs[i]
			n := monthsBetween(a.Date, b.Date)
			for m := 1; m <= n; m++ {
				f := float64(m) / float64(n)
				out = append(out, HardRecord{
					Date:           a.Date.AddDate(0, m, 0),
					Code:           code,
					Revenue:        lerp(a.Revenue, b.Revenue, f),
					Profit:         lerp(a.Profit, b.Profit, f),
					BankruptcyRate: lerp(a.BankruptcyRate, b.BankruptcyRate, f),
				})
			}
		}
	}
	return out
}

func dedupeMonths(recs []HardRecord) []HardRecord {
	out := recs[:0]
	for _, r := range recs {
		if n := len(out); n > 0 && out[n-1].Date.Equal(r.Date) {
			out[n-1] = r
			continue
		}
		out = append(out, r)
	}
	return out
}

func lerp(a, b, f float64) float64 { return a + (b-a)*f }

// aggregateSoft averages soft records per (sector, month).
func aggregateSoft(soft []SoftRecord) map[key]SoftRecord {
	type acc struct {
		sum SoftRecord
		n   float64
	}
	sums := make(map[key]*acc)
	for _, s := range soft {
		k := key{s.Code, monthStart(s.Date)}
		a, ok := sums[k]
		if !ok {
			a = &acc{}
			sums[k] = a
		}
		a.sum.GoogleTrends += s.GoogleTrends
		a.sum.WIBOR += s.WIBOR
		a.sum.EnergyPrice += s.EnergyPrice
		a.n++
	}
	out := make(map[key]SoftRecord, len(sums))
	for k, a := range sums {
		out[k] = SoftRecord{
			Date:         k.month,
			Code:         k.code,
			GoogleTrends: a.sum.GoogleTrends / a.n,
			WIBOR:        a.sum.WIBOR / a.n,
			EnergyPrice:  a.sum.EnergyPrice / a.n,
		}
	}
	return out
}

// Latest returns the most recent score of every sector.
func Latest(rows []Row) scores.Snapshot {
	latest := make(map[string]Row)
	for _, r := range rows {
		if cur, ok := latest[r.Code]; !ok || !r.Date.Before(cur.Date) {
			latest[r.Code] = r
		}
	}
	snap := make(scores.Snapshot, len(latest))
	for code, r := range latest {
		snap[code] = r.Score
	}
	return snap
}

// History groups scores into per-sector time series, ordered by date.
func History(rows []Row) scores.Series {
	out := make(scores.Series)
	for _, r := range rows {
		out[r.Code] = append(out[r.Code], scores.Observation{Date: r.Date, Score: r.Score})
	}
	for code := range out {
		obs := out[code]
		sort.Slice(obs, func(i, j int) bool { return obs[i].Date.Before(obs[j].Date) })
	}
	return out
}
