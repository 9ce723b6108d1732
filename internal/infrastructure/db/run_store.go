package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	atomicio "github.com/sawpanic/sectorpulse/internal/io"
	"github.com/sawpanic/sectorpulse/internal/persistence"
)

// RunStore archives simulation runs to JSON files and, when enabled, to the
// database. Reads try the database first and fall back to the files.
type RunStore struct {
	manager  *Manager
	fileBase string
}

// NewRunStore creates a run archive rooted at fileBase. An empty fileBase
// disables the file copy; a nil or disabled manager disables the database copy.
func NewRunStore(manager *Manager, fileBase string) *RunStore {
	return &RunStore{manager: manager, fileBase: fileBase}
}

func (s *RunStore) dbEnabled() bool {
	return s.manager != nil && s.manager.IsEnabled() && s.manager.Repository() != nil
}

// Save stores the run in every enabled backend. The error joins the
// failures of all backends; each is also logged.
func (s *RunStore) Save(ctx context.Context, run persistence.SimulationRun) error {
	var errs []error

	if s.fileBase != "" {
		if err := atomicio.WriteJSONAtomic(s.path(run.ID), run); err != nil {
			log.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to archive simulation run to file")
			errs = append(errs, err)
		}
	}

	if s.dbEnabled() {
		if err := s.manager.Repository().Runs.Insert(ctx, run); err != nil {
			log.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to store simulation run in database")
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Get loads a run by id, or returns nil when no backend has it.
func (s *RunStore) Get(ctx context.Context, id string) (*persistence.SimulationRun, error) {
	if s.dbEnabled() {
		run, err := s.manager.Repository().Runs.Get(ctx, id)
		if err == nil && run != nil {
			return run, nil
		}
		if err != nil {
			log.Debug().Err(err).Str("run_id", id).Msg("Database read failed, falling back to file")
		}
	}
	if s.fileBase == "" {
		return nil, nil
	}
	return s.readFile(s.path(id))
}

// List returns up to limit archived runs, newest first.
func (s *RunStore) List(ctx context.Context, limit int) ([]persistence.SimulationRun, error) {
	if s.dbEnabled() {
		runs, err := s.manager.Repository().Runs.ListRange(ctx, persistence.TimeRange{}, limit)
		if err == nil && len(runs) > 0 {
			return runs, nil
		}
	}
	if s.fileBase == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(s.fileBase)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list run archive: %w", err)
	}
	var runs []persistence.SimulationRun
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		run, err := s.readFile(filepath.Join(s.fileBase, e.Name()))
		if err != nil || run == nil {
			continue
		}
		runs = append(runs, *run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *RunStore) path(id string) string {
	return filepath.Join(s.fileBase, filepath.Base(id)+".json")
}

func (s *RunStore) readFile(path string) (*persistence.SimulationRun, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read run file: %w", err)
	}
	var run persistence.SimulationRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to decode run file %s: %w", path, err)
	}
	return &run, nil
}
