package scoring

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sawpanic/sectorpulse/internal/sector"
)

// ErrDataUnavailable is returned when an input table is missing or unreadable.
var ErrDataUnavailable = errors.New("scoring input unavailable")

var dateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339, "2006-01", "2006"}

// table is a header-indexed CSV.
type table struct {
	index map[string]int
	rows  [][]string
}

func readTable(r io.Reader) (*table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty table", ErrDataUnavailable)
	}
	t := &table{index: make(map[string]int), rows: records[1:]}
	for i, h := range records[0] {
		t.index[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	return t, nil
}

func (t *table) require(cols ...string) error {
	for _, c := range cols {
		if _, ok := t.index[c]; !ok {
			return fmt.Errorf("%w: missing column %s", ErrDataUnavailable, c)
		}
	}
	return nil
}

func (t *table) str(row []string, col string) string {
	i, ok := t.index[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// num parses a numeric cell. Missing, empty or malformed cells yield 0, false.
func (t *table) num(row []string, col string) (float64, bool) {
	s := strings.ReplaceAll(t.str(row, col), ",", ".")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (t *table) date(row []string) (time.Time, bool) {
	raw := t.str(row, "Date")
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// ReadHard parses yearly financial data: Date, PKD_Code, Revenue, Profit, Bankruptcy_Rate.
func ReadHard(r io.Reader) ([]HardRecord, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}
	if err := t.require("Date", "PKD_Code", "Revenue", "Profit"); err != nil {
		return nil, err
	}
	var out []HardRecord
	for _, row := range t.rows {
		d, ok := t.date(row)
		if !ok {
			continue
		}
		rev, _ := t.num(row, "Revenue")
		profit, _ := t.num(row, "Profit")
		bankr, _ := t.num(row, "Bankruptcy_Rate")
		out = append(out, HardRecord{
			Date:           d,
			Code:           sector.Clean(t.str(row, "PKD_Code")),
			Revenue:        rev,
			Profit:         profit,
			BankruptcyRate: bankr,
		})
	}
	return out, nil
}

// ReadSoft parses monthly macro data: Date, PKD_Code, Google_Trends, WIBOR, Energy_Price.
func ReadSoft(r io.Reader) ([]SoftRecord, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}
	if err := t.require("Date", "PKD_Code"); err != nil {
		return nil, err
	}
	var out []SoftRecord
	for _, row := range t.rows {
		d, ok := t.date(row)
		if !ok {
			continue
		}
		trends, _ := t.num(row, "Google_Trends")
		wibor, _ := t.num(row, "WIBOR")
		energy, _ := t.num(row, "Energy_Price")
		out = append(out, SoftRecord{
			Date:         d,
			Code:         sector.Clean(t.str(row, "PKD_Code")),
			GoogleTrends: trends,
			WIBOR:        wibor,
			EnergyPrice:  energy,
		})
	}
	return out, nil
}

// LoadInputs reads the hard and soft tables from disk.
func LoadInputs(hardPath, softPath string) ([]HardRecord, []SoftRecord, error) {
	hf, err := os.Open(hardPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	defer hf.Close()
	sf, err := os.Open(softPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	defer sf.Close()

	hard, err := ReadHard(hf)
	if err != nil {
		return nil, nil, fmt.Errorf("hard data %s: %w", hardPath, err)
	}
	soft, err := ReadSoft(sf)
	if err != nil {
		return nil, nil, fmt.Errorf("soft data %s: %w", softPath, err)
	}
	return hard, soft, nil
}
