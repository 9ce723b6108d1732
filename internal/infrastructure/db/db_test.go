package db

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/sectorpulse/internal/persistence"
	"github.com/sawpanic/sectorpulse/internal/scores"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 10, config.MaxOpenConns)
	assert.Equal(t, 5, config.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, config.ConnMaxLifetime)
	assert.Equal(t, 5*time.Minute, config.ConnMaxIdleTime)
	assert.Equal(t, 30*time.Second, config.QueryTimeout)
	assert.False(t, config.Enabled) // Should be disabled by default
	assert.NoError(t, config.Validate())
}

func TestConfigValidate(t *testing.T) {
	config := DefaultConfig()
	config.Enabled = true
	assert.ErrorContains(t, config.Validate(), "DSN is required")

	config = DefaultConfig()
	config.MaxIdleConns = 20
	assert.Error(t, config.Validate())
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://localhost/sectorpulse")
	t.Setenv("PG_ENABLED", "true")
	t.Setenv("PG_QUERY_TIMEOUT", "2s")
	t.Setenv("PG_MAX_OPEN_CONNS", "not-a-number")

	config := DefaultConfig()
	config.ApplyEnv()

	assert.Equal(t, "postgres://localhost/sectorpulse", config.DSN)
	assert.True(t, config.Enabled)
	assert.Equal(t, 2*time.Second, config.QueryTimeout)
	assert.Equal(t, 10, config.MaxOpenConns, "malformed values are ignored")
}

func TestNewManager_Disabled(t *testing.T) {
	manager, err := NewManager(Config{Enabled: false})
	require.NoError(t, err)

	assert.False(t, manager.IsEnabled())
	assert.Nil(t, manager.Repository())
	assert.Nil(t, manager.DB())
	assert.NoError(t, manager.Migrate(context.Background()))
	assert.NoError(t, manager.Close())

	health := manager.Health().Health(context.Background())
	assert.True(t, health.Healthy)
	assert.Equal(t, "file", health.Backend)
	assert.Contains(t, health.Errors[0], "disabled")
	assert.NoError(t, manager.Health().Ping(context.Background()))
}

func TestNewManager_MissingDSN(t *testing.T) {
	_, err := NewManager(Config{Enabled: true})
	assert.ErrorContains(t, err, "DSN is required")
}

func newMockManager(t *testing.T) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return NewManagerWithDB(sqlx.NewDb(mockDB, "postgres"), DefaultConfig()), mock
}

func TestManagerWithDB(t *testing.T) {
	manager, mock := newMockManager(t)
	require.True(t, manager.IsEnabled())
	require.NotNil(t, manager.Repository())

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS simulation_runs")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, manager.Migrate(context.Background()))

	mock.ExpectPing()
	health := manager.Health().Health(context.Background())
	assert.True(t, health.Healthy)
	assert.Equal(t, "postgres", health.Backend)
	assert.Empty(t, health.Errors)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	health = manager.Health().Health(context.Background())
	assert.False(t, health.Healthy)
	assert.Contains(t, health.Errors[0], "connection refused")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStore_FileOnly(t *testing.T) {
	store := NewRunStore(nil, t.TempDir())
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"older", "newer"} {
		require.NoError(t, store.Save(ctx, persistence.SimulationRun{
			ID:        id,
			Timestamp: t0.Add(time.Duration(i) * time.Hour),
			Result:    scores.Snapshot{"62": float64(60 + i)},
		}))
	}

	run, err := store.Get(ctx, "newer")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, 61.0, run.Result["62"])

	missing, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	runs, err := store.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "newer", runs[0].ID)
}

func TestRunStore_DatabaseFailureIsReported(t *testing.T) {
	manager, mock := newMockManager(t)
	store := NewRunStore(manager, "")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO simulation_runs")).
		WillReturnError(assert.AnError)

	err := store.Save(context.Background(), persistence.SimulationRun{ID: "r", Timestamp: time.Now()})
	assert.ErrorIs(t, err, assert.AnError)
	require.NoError(t, mock.ExpectationsWereMet())
}
