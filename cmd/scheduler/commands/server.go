// Package commands contains the scheduler binary's CLI command implementations.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/allisson/leadsequencer/internal/app"
	"github.com/allisson/leadsequencer/internal/config"
)

// RunScheduler starts the scheduler's tick loop alongside its /health,
// /ready, /metrics surface, blocking until SIGINT/SIGTERM or a fatal error.
func RunScheduler(ctx context.Context, version string) error {
	cfg := config.Load()
	if err := cfg.ValidateForScheduler(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	gin.SetMode(cfg.GetGinMode())

	container := app.NewContainer(cfg)
	logger := container.Logger()
	logger.Info("starting scheduler", slog.String("version", version))
	defer closeContainer(container, logger)

	sched, err := container.Scheduler()
	if err != nil {
		return fmt.Errorf("initialize scheduler: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	httpServer, err := container.HTTPServer(ctx)
	if err != nil {
		return fmt.Errorf("initialize http server: %w", err)
	}

	runErr := make(chan error, 2)
	go func() {
		if err := sched.Run(ctx); err != nil {
			runErr <- fmt.Errorf("scheduler loop error: %w", err)
		}
	}()
	go func() {
		if err := httpServer.Start(ctx); err != nil {
			runErr <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		return shutdownWithGrace(cfg, logger, httpServer)
	case err := <-runErr:
		logger.Error("component error, shutting down", slog.Any("error", err))
		if shutErr := shutdownWithGrace(cfg, logger, httpServer); shutErr != nil {
			return errors.Join(err, shutErr)
		}
		return err
	}
}
