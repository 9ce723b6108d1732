package main

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/sectorpulse/internal/application/simulate"
	"github.com/sawpanic/sectorpulse/internal/cache"
	"github.com/sawpanic/sectorpulse/internal/events"
	"github.com/sawpanic/sectorpulse/internal/infrastructure/db"
	"github.com/sawpanic/sectorpulse/internal/metrics"
	"github.com/sawpanic/sectorpulse/internal/persistence"
	"github.com/sawpanic/sectorpulse/internal/propagation"
)

// wired is a simulation service plus the resources it holds.
type wired struct {
	svc     *simulate.Service
	metrics *metrics.Registry
	storage persistence.RepositoryHealth
	runs    *db.RunStore
	closers []func() error
}

func (r *wired) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newWired wires the service from the configuration. Remote stores that
// cannot be reached are logged and left out.
func (a *app) newWired(ctx context.Context, src simulate.Sources, engine propagation.Config) (*wired, error) {
	cfg := a.cfg
	rt := &wired{metrics: metrics.NewRegistry()}

	manager, err := db.NewManager(cfg.Database)
	if err != nil {
		log.Warn().Err(err).Msg("Database unavailable, continuing without it")
		manager, _ = db.NewManager(db.Config{})
	}
	rt.closers = append(rt.closers, manager.Close)
	rt.storage = manager.Health()
	if manager.IsEnabled() {
		src.Repo = manager.Repository().Scores
	}

	store, err := cache.New(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Redis cache unavailable, using in-memory cache")
		store = cache.NewMemory()
	}
	if rc, ok := store.(*cache.RedisCache); ok {
		rt.closers = append(rt.closers, rc.Close)
	}
	src.Cache = cache.NewSnapshots(store, cfg.Redis.Prefix, cfg.Redis.TTL)

	publisher := events.New(cfg.Events)
	rt.closers = append(rt.closers, publisher.Close)

	rt.runs = db.NewRunStore(manager, cfg.Archive.Dir)
	rt.svc = simulate.New(engine, src, simulate.Deps{
		Metrics:   rt.metrics,
		Runs:      rt.runs,
		Publisher: publisher,
		Breaker:   cfg.Breaker,
	})
	if _, err := rt.svc.Reload(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// sources builds the file inputs from the configuration.
func (a *app) sources() simulate.Sources {
	return simulate.Sources{
		GraphPath:    a.cfg.Graph.Path,
		GraphOptions: a.cfg.GraphLoadOptions(),
		ScoresPath:   a.cfg.Scores.Path,
	}
}
