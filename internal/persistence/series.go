package persistence

import (
	"context"
	"fmt"

	"github.com/sawpanic/sectorpulse/internal/scores"
)

// LoadSeries reads the stored score history of ids into a series. With no
// ids every sector of the latest stored snapshot is loaded. Sectors without
// history are left out.
func LoadSeries(ctx context.Context, repo ScoreRepo, ids []string, tr TimeRange) (scores.Series, error) {
	if len(ids) == 0 {
		snap, _, err := repo.Latest(ctx)
		if err != nil {
			return nil, err
		}
		ids = snap.IDs()
	}

	series := make(scores.Series, len(ids))
	for _, id := range ids {
		recs, err := repo.History(ctx, id, tr)
		if err != nil {
			return nil, fmt.Errorf("failed to load history of sector %s: %w", id, err)
		}
		for _, rec := range recs {
			series[id] = append(series[id], scores.Observation{Date: rec.Timestamp, Score: rec.Score})
		}
	}
	return series, nil
}
