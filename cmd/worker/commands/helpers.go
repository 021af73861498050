package commands

import (
	"context"
	"log/slog"

	"github.com/allisson/leadsequencer/internal/app"
	"github.com/allisson/leadsequencer/internal/config"
	apphttp "github.com/allisson/leadsequencer/internal/http"
)

func closeContainer(container *app.Container, logger *slog.Logger) {
	if err := container.Shutdown(context.Background()); err != nil {
		logger.Error("failed to shutdown container", slog.Any("error", err))
	}
}

func shutdownWithGrace(cfg *config.Config, logger *slog.Logger, httpServer *apphttp.MetricsServer) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", slog.Any("error", err))
		return err
	}
	return nil
}
