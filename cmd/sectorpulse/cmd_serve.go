package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/sectorpulse/internal/config"
	httpapi "github.com/sawpanic/sectorpulse/internal/interfaces/http"
	"github.com/sawpanic/sectorpulse/internal/watch"
)

func (a *app) serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the simulation API",
		Long: `Start the HTTP API with /health, /graph, /scores, /simulate,
/simulate/stream and /metrics. Input tables are reloaded when they change on disk.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.HTTP.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := a.newWired(ctx, a.sources(), a.cfg.Propagation)
			if err != nil {
				return err
			}
			defer rt.Close()

			if a.cfg.Watch.Enabled {
				w, err := watch.New([]string{a.cfg.Graph.Path, a.cfg.Scores.Path}, a.cfg.Watch.Debounce)
				if err != nil {
					log.Warn().Err(err).Msg("Hot reload disabled")
				} else {
					go func() {
						err := w.Run(ctx, func(files []string) {
							log.Info().Strs("files", files).Msg("Input change detected")
							if _, err := rt.svc.Reload(ctx); err != nil {
								log.Error().Err(err).Msg("Reload failed, keeping previous inputs")
							}
						})
						if err != nil && !errors.Is(err, context.Canceled) {
							log.Warn().Err(err).Msg("File watcher stopped")
						}
					}()
				}
			}

			srv := httpapi.NewServer(serverConfig(a.cfg), rt.svc, rt.metrics)
			srv.SetStorageHealth(rt.storage)
			srv.SetRunStore(rt.runs)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(ctx) }()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}

func serverConfig(cfg *config.Config) httpapi.ServerConfig {
	h := cfg.HTTP
	return httpapi.ServerConfig{
		Addr:           h.Addr,
		ReadTimeout:    h.ReadTimeout,
		WriteTimeout:   h.WriteTimeout,
		IdleTimeout:    h.IdleTimeout,
		RequestTimeout: h.RequestTimeout,
		ReadRPS:        h.RateLimitRPS,
		ReadBurst:      h.RateLimitBurst,
		SimulateRPS:    h.SimulateRPS,
		SimulateBurst:  h.SimulateBurst,
		AllowedOrigins: h.AllowedOrigins,
		TopN:           cfg.Graph.TopN,
	}
}
