package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeRange_Valid(t *testing.T) {
	t0 := time.Date(2025, 9, 7, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		tr    TimeRange
		valid bool
	}{
		{name: "ordered", tr: TimeRange{From: t0, To: t0.Add(time.Hour)}, valid: true},
		{name: "same_time", tr: TimeRange{From: t0, To: t0}, valid: true},
		{name: "open_ended", tr: TimeRange{From: t0}, valid: true},
		{name: "zero_times", tr: TimeRange{}, valid: true},
		{name: "reversed", tr: TimeRange{From: t0, To: t0.Add(-time.Hour)}, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.tr.Valid())
		})
	}
}
