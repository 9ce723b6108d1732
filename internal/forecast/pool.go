package forecast

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"sync"
)

// SectorResult is the outcome of one sector in PredictAll.
type SectorResult struct {
	Sector   string
	History  []Point
	Forecast []Forecast
	Err      error
}

// PredictAll runs p over every series on a fixed pool of workers. Results are
// returned in sector order. A sector that fails keeps its error in the result;
// only cancellation of ctx fails the whole call.
func PredictAll(ctx context.Context, p Predictor, series map[string][]Point, horizon, workers int) ([]SectorResult, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ids := make([]string, 0, len(series))
	for id := range series {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if workers > len(ids) {
		workers = len(ids)
	}

	results := make([]SectorResult, len(ids))
	tasks := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range tasks {
				id := ids[i]
				fc, err := p.Predict(ctx, id, series[id], horizon)
				results[i] = SectorResult{Sector: id, History: series[id], Forecast: fc, Err: err}
			}
		}()
	}

dispatch:
	for i := range ids {
		select {
		case tasks <- i:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(tasks)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Insufficient reports whether a result failed only for lack of history.
func (r SectorResult) Insufficient() bool {
	return errors.Is(r.Err, ErrInsufficientHistory)
}
