package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sawpanic/sectorpulse/internal/scores"
)

const (
	baselineKey = "baseline"
	resultKey   = "result:"
)

// Snapshots stores score snapshots under a common key prefix.
type Snapshots struct {
	cache  Cache
	prefix string
	ttl    time.Duration
}

// NewSnapshots wraps c. A non-positive ttl means no expiry.
func NewSnapshots(c Cache, prefix string, ttl time.Duration) *Snapshots {
	return &Snapshots{cache: c, prefix: prefix, ttl: ttl}
}

// Baseline returns the cached baseline, if any.
func (s *Snapshots) Baseline(ctx context.Context) (scores.Snapshot, bool, error) {
	return s.get(ctx, s.prefix+baselineKey)
}

// PutBaseline caches the baseline snapshot.
func (s *Snapshots) PutBaseline(ctx context.Context, snap scores.Snapshot) error {
	return s.put(ctx, s.prefix+baselineKey, snap)
}

// InvalidateBaseline drops the cached baseline, e.g. after a reload.
func (s *Snapshots) InvalidateBaseline(ctx context.Context) error {
	return s.cache.Delete(ctx, s.prefix+baselineKey)
}

// Result returns the cached final snapshot of a run.
func (s *Snapshots) Result(ctx context.Context, runID string) (scores.Snapshot, bool, error) {
	return s.get(ctx, s.prefix+resultKey+runID)
}

// PutResult caches the final snapshot of a run.
func (s *Snapshots) PutResult(ctx context.Context, runID string, snap scores.Snapshot) error {
	return s.put(ctx, s.prefix+resultKey+runID, snap)
}

func (s *Snapshots) get(ctx context.Context, key string) (scores.Snapshot, bool, error) {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	var snap scores.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, false, fmt.Errorf("decode cached snapshot %s: %w", key, err)
	}
	return snap, true, nil
}

func (s *Snapshots) put(ctx context.Context, key string, snap scores.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, key, raw, s.ttl)
}
