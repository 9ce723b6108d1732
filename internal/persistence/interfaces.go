package persistence

import (
	"context"
	"time"

	"github.com/sawpanic/sectorpulse/internal/scores"
)

// TimeRange represents a time window for history queries
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Valid reports whether the range is ordered. Zero bounds are open.
func (tr TimeRange) Valid() bool {
	return tr.From.IsZero() || tr.To.IsZero() || !tr.To.Before(tr.From)
}

// SimulationRun is one recorded propagation run
type SimulationRun struct {
	ID              string          `json:"id" db:"id"`
	Timestamp       time.Time       `json:"ts" db:"ts"`
	ImpactThreshold float64         `json:"impact_threshold" db:"impact_threshold"`
	MaxDepth        int             `json:"max_depth" db:"max_depth"`
	Shocks          []string        `json:"shocks" db:"shocks"`
	Baseline        scores.Snapshot `json:"baseline" db:"baseline"`
	Result          scores.Snapshot `json:"result" db:"result"`
	Capped          []string        `json:"capped" db:"capped"`
	Dequeues        int             `json:"dequeues" db:"dequeues"`
	Updates         int             `json:"updates" db:"updates"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// ScoreRecord is one sector score of a stored baseline
type ScoreRecord struct {
	Timestamp time.Time `json:"ts" db:"ts"`
	Sector    string    `json:"sector" db:"sector"`
	Score     float64   `json:"score" db:"score"`
	Source    string    `json:"source" db:"source"`
}

// RunRepo stores simulation runs
type RunRepo interface {
	// Insert records a run; the ID must be unique
	Insert(ctx context.Context, run SimulationRun) error

	// Get retrieves a run by ID, or nil when absent
	Get(ctx context.Context, id string) (*SimulationRun, error)

	// ListRange returns runs within the time window, newest first
	ListRange(ctx context.Context, tr TimeRange, limit int) ([]SimulationRun, error)
}

// ScoreRepo stores baseline snapshots as per-sector rows
type ScoreRepo interface {
	// Upsert writes every sector of snap at ts
	Upsert(ctx context.Context, ts time.Time, source string, snap scores.Snapshot) error

	// Latest returns the most recent stored snapshot and its timestamp.
	// An empty store yields an empty snapshot and a zero time.
	Latest(ctx context.Context) (scores.Snapshot, time.Time, error)

	// History returns the dated scores of one sector, oldest first
	History(ctx context.Context, sector string, tr TimeRange) ([]ScoreRecord, error)
}

// Repository aggregates all persistence interfaces
type Repository struct {
	Runs   RunRepo
	Scores ScoreRepo
}

// HealthCheck is the storage status reported by the health endpoint
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Backend        string         `json:"backend"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool,omitempty"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth reports on the storage behind the repositories
type RepositoryHealth interface {
	Health(ctx context.Context) HealthCheck
	Ping(ctx context.Context) error
}
