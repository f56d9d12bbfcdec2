package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"homebudget/internal/backend"
	"homebudget/internal/cli"
	"homebudget/internal/config"
	apphttp "homebudget/internal/http"
	"homebudget/internal/log"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidate((*config.Config).Validate)
	logger := cli.SetupLogger(cfg, os.Stdout)

	res := cli.OpenBackend(context.Background(), logger, cfg)

	var ready apphttp.ReadyFunc
	if p, ok := res.Store.(interface{ Ping(context.Context) error }); ok {
		ready = p.Ping
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		Store:              res.Store,
		Logger:             logger,
		UserHeader:         cfg.UserHeader,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Sessions: apphttp.SessionsConfig{
			MaxSessions: cfg.SessionCacheSize,
			IdleTTL:     cfg.SessionTTL,
		},
		Ready: ready,
	})

	// WriteTimeout stays unset: /api/events streams for the life of the connection.
	srv.ReadTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting homebudget server", "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if res.Feed != nil {
		if store, ok := res.Store.(backend.Refresher); ok {
			g.Go(func() error {
				err := res.Feed.ConsumeDocumentChanges(gctx, backend.RefreshHandler(store, cfg.InstanceID))
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Warn("Change feed stopped", log.FieldError, err)
				}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
