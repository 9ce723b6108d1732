package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/sectorpulse/internal/persistence"
	"github.com/sawpanic/sectorpulse/internal/scores"
)

// scoreRepo implements ScoreRepo interface for PostgreSQL
type scoreRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewScoreRepo creates a new PostgreSQL baseline score repository
func NewScoreRepo(db *sqlx.DB, timeout time.Duration) persistence.ScoreRepo {
	return &scoreRepo{
		db:      db,
		timeout: timeout,
	}
}

// Upsert writes every sector of snap at ts in one transaction
func (r *scoreRepo) Upsert(ctx context.Context, ts time.Time, source string, snap scores.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if len(snap) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO sector_scores (ts, sector, score, source)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ts, sector) DO UPDATE SET
			score = EXCLUDED.score,
			source = EXCLUDED.source`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, id := range snap.IDs() {
		if _, err := stmt.ExecContext(ctx, ts, id, snap[id], source); err != nil {
			return fmt.Errorf("failed to upsert score for %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Latest returns the most recent stored snapshot
func (r *scoreRepo) Latest(ctx context.Context) (scores.Snapshot, time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ts, sector, score, source
		FROM sector_scores
		WHERE ts = (SELECT MAX(ts) FROM sector_scores)`

	var records []persistence.ScoreRecord
	if err := r.db.SelectContext(ctx, &records, query); err != nil {
		return scores.Snapshot{}, time.Time{}, fmt.Errorf("failed to get latest scores: %w", err)
	}

	snap := make(scores.Snapshot, len(records))
	var ts time.Time
	for _, rec := range records {
		snap[rec.Sector] = rec.Score
		ts = rec.Timestamp
	}
	return snap, ts, nil
}

// History returns the dated scores of one sector, oldest first
func (r *scoreRepo) History(ctx context.Context, sector string, tr persistence.TimeRange) ([]persistence.ScoreRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	from, to := bounds(tr)
	query := `
		SELECT ts, sector, score, source
		FROM sector_scores
		WHERE sector = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC`

	var records []persistence.ScoreRecord
	if err := r.db.SelectContext(ctx, &records, query, sector, from, to); err != nil {
		return nil, fmt.Errorf("failed to get score history: %w", err)
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Timestamp.Before(records[j].Timestamp) })
	return records, nil
}
