package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/allisson/leadsequencer/internal/metrics"
)

// MetricsServer is the combined /health, /ready, and /metrics surface each
// binary exposes on one port. /health and /ready are always served; /metrics
// is registered only when a metrics provider is given (ENABLE_METRICS).
type MetricsServer struct {
	server *http.Server
	logger *slog.Logger
}

// NewMetricsServer creates a new MetricsServer. readinessCheckers are
// consulted by /ready in addition to the shutdown-in-progress check.
func NewMetricsServer(
	ctx context.Context,
	host string,
	port int,
	logger *slog.Logger,
	metricsProvider *metrics.Provider,
	readinessCheckers ...ReadinessChecker,
) *MetricsServer {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLoggerMiddleware(logger))

	router.GET("/health", gin.WrapH(HealthHandler()))
	router.GET("/ready", gin.WrapH(ReadinessHandler(ctx, readinessCheckers...)))

	if metricsProvider != nil {
		router.GET("/metrics", gin.WrapH(metricsProvider.Handler()))
	}

	return &MetricsServer{
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// GetHandler returns the http.Handler for testing purposes.
func (s *MetricsServer) GetHandler() http.Handler {
	return s.server.Handler
}

// Start starts the metrics HTTP server.
func (s *MetricsServer) Start(ctx context.Context) error {
	s.logger.Info("starting metrics server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the metrics HTTP server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down metrics server")
	return s.server.Shutdown(ctx)
}

// ginLoggerMiddleware logs every request to this surface (probes and
// /metrics scrapes alike) at debug level so routine polling doesn't flood
// info-level logs.
func ginLoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("metrics http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}
