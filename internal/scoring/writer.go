package scoring

import (
	"encoding/csv"
	"io"
	"strconv"

	atomicio "github.com/sawpanic/sectorpulse/internal/io"
	"github.com/sawpanic/sectorpulse/internal/scores"
)

var masterHeader = []string{
	scores.ColumnDate, scores.ColumnCode, "Revenue", "Profit", "Bankruptcy_Rate",
	"Google_Trends", "WIBOR", "Energy_Price",
	"Rev_Growth_YoY", "Profit_Margin",
	"Norm_Growth", "Norm_Margin", "Norm_Google", "Norm_WIBOR", "Norm_Energy",
	"Norm_Bankrupt", "Norm_Total_Risk",
	"Raw_Score", scores.ColumnScore, "Class",
}

// WriteMaster encodes rows as the master CSV read back by scores.LoadLatest.
func WriteMaster(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(masterHeader); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
	for _, r := range rows {
		rec := []string{
			r.Date.Format("2006-01-02"), r.Code,
			f(r.Revenue), f(r.Profit), f(r.BankruptcyRate),
			f(r.GoogleTrends), f(r.WIBOR), f(r.EnergyPrice),
			f(r.RevGrowthYoY), f(r.ProfitMargin),
			f(r.NormRevGrowth), f(r.NormMargin), f(r.NormTrends), f(r.NormWIBOR), f(r.NormEnergy),
			f(r.NormBankruptcy), f(r.NormTotalRisk),
			f(r.RawScore), f(r.Score), string(r.Class),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveMaster writes the master CSV to path atomically.
func SaveMaster(path string, rows []Row) error {
	return atomicio.WriteStreamAtomic(path, func(w io.Writer) error {
		return WriteMaster(w, rows)
	})
}
