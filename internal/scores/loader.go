package scores

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/sectorpulse/internal/sector"
)

// ErrDataUnavailable is returned with an empty result when the score table
// cannot be read.
var ErrDataUnavailable = errors.New("score data unavailable")

// Column names of the master score table.
const (
	ColumnDate  = "Date"
	ColumnCode  = "PKD_Code"
	ColumnScore = "Health_Score"
)

// scoreAliases are accepted in place of ColumnScore, in priority order.
var scoreAliases = []string{ColumnScore, "PKO_SCORE_FINAL", "Final_Score"}

var dateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339, "2006-01"}

// Observation is one dated score of a sector.
type Observation struct {
	Date  time.Time `json:"date"`
	Score float64   `json:"score"`
}

// Series maps sector id to observations in ascending date order.
type Series map[string][]Observation

// Latest returns the most recent score per sector.
func (s Series) Latest() Snapshot {
	out := make(Snapshot, len(s))
	for id, obs := range s {
		if len(obs) > 0 {
			out[id] = obs[len(obs)-1].Score
		}
	}
	return out
}

// LoadLatest reads the master score table at path and keeps the most recent
// score per sector. A missing file yields an empty snapshot and ErrDataUnavailable.
func LoadLatest(path string) (Snapshot, error) {
	series, err := LoadSeries(path)
	if err != nil {
		return Snapshot{}, err
	}
	return series.Latest(), nil
}

// LoadSeries reads every dated score in the master table at path.
func LoadSeries(path string) (Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return Series{}, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	defer f.Close()
	return ReadSeries(f)
}

// ReadSeries parses a master score table. Rows with an unparseable date or
// score are skipped.
func ReadSeries(r io.Reader) (Series, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return Series{}, fmt.Errorf("%w: reading header: %v", ErrDataUnavailable, err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}

	dateCol, okDate := idx[ColumnDate]
	codeCol, okCode := idx[ColumnCode]
	scoreCol, okScore := -1, false
	for _, alias := range scoreAliases {
		if i, ok := idx[alias]; ok {
			scoreCol, okScore = i, true
			break
		}
	}
	if !okDate || !okCode || !okScore {
		return Series{}, fmt.Errorf("%w: header must contain %s, %s and %s", ErrDataUnavailable, ColumnDate, ColumnCode, ColumnScore)
	}

	series := make(Series)
	skipped := 0
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Series{}, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
		}
		if len(row) <= dateCol || len(row) <= codeCol || len(row) <= scoreCol {
			skipped++
			continue
		}
		date, ok := parseDate(row[dateCol])
		if !ok {
			skipped++
			continue
		}
		score, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(row[scoreCol]), ",", "."), 64)
		if err != nil || !finite(score) {
			skipped++
			continue
		}
		code := sector.Clean(row[codeCol])
		series[code] = append(series[code], Observation{Date: date, Score: Clamp(score)})
	}

	for id := range series {
		obs := series[id]
		sort.SliceStable(obs, func(i, j int) bool { return obs[i].Date.Before(obs[j].Date) })
	}
	if skipped > 0 {
		log.Debug().Int("skipped", skipped).Msg("Skipped malformed score rows")
	}
	return series, nil
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// WriteCSV writes the snapshot as sector,label,score rows in id order.
func WriteCSV(w io.Writer, s Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"sector", "label", "score"}); err != nil {
		return err
	}
	for _, id := range s.IDs() {
		if err := cw.Write([]string{id, sector.Label(id), strconv.FormatFloat(s[id], 'f', 4, 64)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
