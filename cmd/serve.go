package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/melophiliacs/internal/auth"
	"github.com/desertthunder/melophiliacs/internal/library"
	"github.com/desertthunder/melophiliacs/internal/metrics"
	"github.com/desertthunder/melophiliacs/internal/server"
	"github.com/desertthunder/melophiliacs/internal/services"
	"github.com/desertthunder/melophiliacs/internal/session"
	"github.com/desertthunder/melophiliacs/internal/shared"
	"github.com/urfave/cli/v3"
)

const defaultShutdownTimeout = 10 * time.Second

// Serve wires the store, Spotify client, auth flow and library aggregator into the HTTP server
// and runs it until SIGINT or SIGTERM.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	if port := cmd.Int("port"); port > 0 {
		config.Server.Port = port
	}
	if err := config.Validate(); err != nil {
		return err
	}

	logger, err := shared.NewLoggerFromConfig(nil, config.Log)
	if err != nil {
		return err
	}
	logger = shared.WithLogger(logger, "app", config.App.Name, "env", config.App.Env)

	store, closeStore, err := r.openStore(config, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	m := metrics.New()
	spotify, err := services.NewSpotifyService(config.Credentials.Spotify, services.SpotifyOpts{
		Metrics: m,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	sessions := session.NewStore(store, config.Auth.SessionTTL)
	cache := library.NewCache(store, m)

	controller, err := auth.NewController(auth.ControllerOpts{
		Provider:  spotify,
		Sessions:  sessions,
		CacheKeys: cache.Keys,
		Config:    config.Auth,
		Logger:    logger,
		Metrics:   m,
	})
	if err != nil {
		return err
	}

	srv, err := server.New(server.Opts{
		Config:     config,
		Controller: controller,
		Guard:      auth.NewGuard(spotify, sessions, config.Auth.RefreshBuffer, logger, m),
		Library:    library.NewAggregator(spotify, cache, config.Library, logger, m),
		Store:      store,
		Metrics:    m,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	timeout := config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	logger.Info("shutting down", "timeout", timeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}
