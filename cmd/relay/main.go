package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/scythe504/mathquest-backend/internal/config"
	fxmodules "github.com/scythe504/mathquest-backend/internal/fx"
	"github.com/scythe504/mathquest-backend/internal/persist"
	"github.com/scythe504/mathquest-backend/internal/server"
	"github.com/scythe504/mathquest-backend/internal/store"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runRelay),
	).Run()
}

func runRelay(
	lc fx.Lifecycle,
	cfg *config.RelayConfig,
	hub *store.Hub,
	mirror *persist.Mirror,
	srv *server.Server,
	pool *pgxpool.Pool,
	logger zerolog.Logger,
) {
	mirrorCtx, stopMirror := context.WithCancel(context.Background())
	mirrorDone := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if _, err := mirror.Restore(ctx, hub); err != nil {
				logger.Warn().Err(err).Msg("starting without restored accounts")
			}
			hub.OnWrite(mirror.Hook)

			go func() {
				defer close(mirrorDone)
				_ = mirror.Run(mirrorCtx)
			}()
			return srv.Start()
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down relay")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()

			err := srv.Shutdown(shutdownCtx)
			if err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
			}

			stopMirror()
			select {
			case <-mirrorDone:
			case <-shutdownCtx.Done():
				logger.Warn().Int("pending", mirror.Pending()).Msg("mirror did not drain in time")
			}
			if pool != nil {
				pool.Close()
			}

			if err == nil {
				logger.Info().Msg("relay stopped gracefully")
			}
			return err
		},
	})
}
