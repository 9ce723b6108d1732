package scores

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotBasics(t *testing.T) {
	s := Snapshot{"B": 70, "A": 20}
	assert.Equal(t, []string{"A", "B"}, s.IDs())
	assert.Equal(t, Equilibrium, s.Get("missing"))

	c := s.Clone()
	c["A"] = 99
	assert.Equal(t, 20.0, s["A"])

	s.Set("C", 140)
	assert.Equal(t, 100.0, s["C"])
	s.Set("D", -3)
	assert.Equal(t, 0.0, s["D"])

	assert.Equal(t, []string{"A", "B", "C", "D"}, s.Active(1.0))
	assert.Empty(t, Snapshot{"A": 50.5}.Active(1.0))
}

func TestDiff(t *testing.T) {
	before := Snapshot{"A": 50, "B": 60}
	after := Snapshot{"A": 55, "B": 60, "C": 30}
	d := before.Diff(after)
	require.Len(t, d, 2)
	assert.Equal(t, Delta{Sector: "C", Before: 50, After: 30, Change: -20}, d[0])
	assert.Equal(t, Delta{Sector: "A", Before: 50, After: 55, Change: 5}, d[1])
}

func TestParseShock(t *testing.T) {
	s, err := ParseShock("62=80")
	require.NoError(t, err)
	assert.Equal(t, Shock{Sector: "62", Value: 80}, s)

	s, err = ParseShock("( 35 )=-12,5")
	require.NoError(t, err)
	assert.Equal(t, Shock{Sector: "35", Value: -12.5, Relative: true}, s)
	assert.Equal(t, "35=-12.5", s.String())

	for _, bad := range []string{"62", "=10", "62=abc", "62=120", "62=NaN", "62=nan", "62=+NaN", "62=Inf", "62=+Inf", "62=-inf"} {
		_, err := ParseShock(bad)
		assert.Error(t, err, bad)
	}
}

func TestApplyShocks(t *testing.T) {
	base := Snapshot{"A": 50, "B": 95}
	out := Apply(base, []Shock{
		{Sector: "A", Value: 80},
		{Sector: "B", Value: 10, Relative: true},
		{Sector: "C", Value: -20, Relative: true},
	})
	assert.Equal(t, Snapshot{"A": 80, "B": 100, "C": 30}, out)
	assert.Equal(t, Snapshot{"A": 50, "B": 95}, base)
}

func TestReadSeriesLatest(t *testing.T) {
	in := strings.Join([]string{
		"Date,PKD_Code,Revenue,PKO_SCORE_FINAL",
		"2024-01-01,01,10,40",
		"2024-03-01,01,10,45.5",
		"2024-02-01,01,10,41",
		"2024-03-01,62,10,bad",
		"2024-02-01,62,10,70",
		"not-a-date,62,10,10",
		"2024-04-01,62,10,NaN",
		"2024-05-01,62,10,+Inf",
		"2024-04-01,10,10,nan",
	}, "\n")
	series, err := ReadSeries(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, series["01"], 3)
	assert.Equal(t, 40.0, series["01"][0].Score)

	require.Len(t, series["62"], 1)
	assert.NotContains(t, series, "10")

	latest := series.Latest()
	assert.Equal(t, Snapshot{"01": 45.5, "62": 70}, latest)
}

func TestClampNaN(t *testing.T) {
	assert.Equal(t, Equilibrium, Clamp(math.NaN()))
	assert.Equal(t, Max, Clamp(math.Inf(1)))
	assert.Equal(t, Min, Clamp(math.Inf(-1)))

	s := Snapshot{}
	s.Set("62", math.NaN())
	assert.Equal(t, Equilibrium, s["62"])
}

func TestLoadLatestMissing(t *testing.T) {
	s, err := LoadLatest(filepath.Join(t.TempDir(), "missing.csv"))
	assert.True(t, errors.Is(err, ErrDataUnavailable))
	assert.Empty(t, s)
}

func TestReadSeriesBadHeader(t *testing.T) {
	_, err := ReadSeries(strings.NewReader("a,b\n1,2\n"))
	assert.True(t, errors.Is(err, ErrDataUnavailable))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, Snapshot{"62": 54.5, "01": 50}))
	assert.Equal(t, "sector,label,score\n01,Agriculture,50.0000\n62,IT services,54.5000\n", buf.String())
}
