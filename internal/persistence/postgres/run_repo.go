package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/sectorpulse/internal/persistence"
)

// runRepo implements RunRepo interface for PostgreSQL
type runRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRunRepo creates a new PostgreSQL simulation run repository
func NewRunRepo(db *sqlx.DB, timeout time.Duration) persistence.RunRepo {
	return &runRepo{
		db:      db,
		timeout: timeout,
	}
}

const runColumns = `id, ts, impact_threshold, max_depth, shocks, baseline, result,
		       capped, dequeues, updates, created_at`

// Insert records a run
func (r *runRepo) Insert(ctx context.Context, run persistence.SimulationRun) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if run.Timestamp.IsZero() {
		return fmt.Errorf("run timestamp is required")
	}

	shocks, err := json.Marshal(nonNil(run.Shocks))
	if err != nil {
		return fmt.Errorf("failed to marshal shocks: %w", err)
	}
	baseline, err := json.Marshal(run.Baseline)
	if err != nil {
		return fmt.Errorf("failed to marshal baseline: %w", err)
	}
	result, err := json.Marshal(run.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	capped, err := json.Marshal(nonNil(run.Capped))
	if err != nil {
		return fmt.Errorf("failed to marshal capped sectors: %w", err)
	}

	query := `
		INSERT INTO simulation_runs
		(id, ts, impact_threshold, max_depth, shocks, baseline, result, capped, dequeues, updates)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.ExecContext(ctx, query,
		run.ID, run.Timestamp, run.ImpactThreshold, run.MaxDepth,
		shocks, baseline, result, capped, run.Dequeues, run.Updates)
	if err != nil {
		return fmt.Errorf("failed to insert simulation run: %w", err)
	}
	return nil
}

// Get retrieves a run by ID
func (r *runRepo) Get(ctx context.Context, id string) (*persistence.SimulationRun, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + runColumns + `
		FROM simulation_runs
		WHERE id = $1`

	run, err := scanRun(r.db.QueryRowxContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get simulation run: %w", err)
	}
	return run, nil
}

// ListRange returns runs within the time window, newest first
func (r *runRepo) ListRange(ctx context.Context, tr persistence.TimeRange, limit int) ([]persistence.SimulationRun, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if !tr.Valid() {
		return nil, fmt.Errorf("invalid time range")
	}
	if limit <= 0 {
		limit = 100
	}
	from, to := bounds(tr)

	query := `SELECT ` + runColumns + `
		FROM simulation_runs
		WHERE ts >= $1 AND ts <= $2
		ORDER BY ts DESC
		LIMIT $3`

	rows, err := r.db.QueryxContext(ctx, query, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list simulation runs: %w", err)
	}
	defer rows.Close()

	var runs []persistence.SimulationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*persistence.SimulationRun, error) {
	var run persistence.SimulationRun
	var shocks, baseline, result, capped []byte

	err := row.Scan(
		&run.ID, &run.Timestamp, &run.ImpactThreshold, &run.MaxDepth,
		&shocks, &baseline, &result, &capped,
		&run.Dequeues, &run.Updates, &run.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, f := range []struct {
		name string
		raw  []byte
		dst  interface{}
	}{
		{"shocks", shocks, &run.Shocks},
		{"baseline", baseline, &run.Baseline},
		{"result", result, &run.Result},
		{"capped", capped, &run.Capped},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", f.name, err)
		}
	}
	return &run, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var (
	minTime = time.Unix(0, 0).UTC()
	maxTime = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)
)

// bounds substitutes open range ends.
func bounds(tr persistence.TimeRange) (time.Time, time.Time) {
	from, to := tr.From, tr.To
	if from.IsZero() {
		from = minTime
	}
	if to.IsZero() {
		to = maxTime
	}
	return from, to
}
