// Package app provides the dependency injection container for assembling
// the Scheduler, Pump, and Worker binaries from shared infrastructure.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/allisson/leadsequencer/internal/aiopen"
	"github.com/allisson/leadsequencer/internal/broker"
	"github.com/allisson/leadsequencer/internal/config"
	"github.com/allisson/leadsequencer/internal/database"
	"github.com/allisson/leadsequencer/internal/domain"
	apphttp "github.com/allisson/leadsequencer/internal/http"
	"github.com/allisson/leadsequencer/internal/leadcatalog"
	"github.com/allisson/leadsequencer/internal/metrics"
	outboxRepository "github.com/allisson/leadsequencer/internal/outbox/repository"
	"github.com/allisson/leadsequencer/internal/provider"
	"github.com/allisson/leadsequencer/internal/pump"
	"github.com/allisson/leadsequencer/internal/scheduler"
	"github.com/allisson/leadsequencer/internal/template"
	"github.com/allisson/leadsequencer/internal/worker"
)

// Container holds all application dependencies and provides methods to
// access them. Components are created lazily on first access via
// sync.Once, so a single Container can back any of the three binaries
// without eagerly wiring collaborators the binary never needs.
type Container struct {
	config *config.Config

	logger *slog.Logger

	db     *sql.DB
	dbErr  error
	dbOnce sync.Once

	txManager     database.TxManager
	txManagerOnce sync.Once

	brokerChan     *broker.Channel
	brokerErr      error
	brokerOnce     sync.Once

	metricsProvider *metrics.Provider
	metricsErr      error
	metricsOnce     sync.Once

	bizMetrics     metrics.BusinessMetrics
	bizMetricsOnce sync.Once

	outboxRepo     *outboxRepository.PostgreSQLOutboxRepository
	outboxRepoOnce sync.Once

	catalogRepo     *leadcatalog.Repository
	catalogRepoOnce sync.Once

	emailProvider     provider.Provider
	emailProviderErr  error
	emailProviderOnce sync.Once

	templateProcessor     *template.Processor
	templateProcessorOnce sync.Once

	aiClient     *aiopen.Client
	aiClientOnce sync.Once

	scheduler     *scheduler.Scheduler
	schedulerOnce sync.Once

	pump     *pump.Pump
	pumpOnce sync.Once

	worker     *worker.Worker
	workerOnce sync.Once

	loggerOnce sync.Once
}

// NewContainer creates a new dependency injection container.
func NewContainer(cfg *config.Config) *Container {
	return &Container{config: cfg}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the process-wide structured logger.
func (c *Container) Logger() *slog.Logger {
	c.loggerOnce.Do(func() {
		c.logger = newLogger(c.config.LogLevel)
	})
	return c.logger
}

func newLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

// DB returns the shared database connection pool.
func (c *Container) DB() (*sql.DB, error) {
	c.dbOnce.Do(func() {
		c.db, c.dbErr = database.Connect(database.Config{
			ConnectionString:   c.config.DatabaseURL,
			MaxOpenConnections: c.config.DBMaxOpenConnections,
			MaxIdleConnections: c.config.DBMaxIdleConnections,
			ConnMaxLifetime:    c.config.DBConnMaxLifetime,
		})
		if c.dbErr != nil {
			c.dbErr = fmt.Errorf("connect to database: %w", c.dbErr)
		}
	})
	return c.db, c.dbErr
}

// TxManager returns the shared transaction manager.
func (c *Container) TxManager() (database.TxManager, error) {
	db, err := c.DB()
	if err != nil {
		return nil, err
	}
	c.txManagerOnce.Do(func() {
		c.txManager = database.NewTxManager(db)
	})
	return c.txManager, nil
}

// Broker returns the process's single AMQP channel, declaring the sequence
// topic (and its DLQ) on first use.
func (c *Container) Broker() (*broker.Channel, error) {
	c.brokerOnce.Do(func() {
		ch, err := broker.Connect(c.config.RabbitMQURL, c.config.WorkerPrefetchCount)
		if err != nil {
			c.brokerErr = fmt.Errorf("connect to broker: %w", err)
			return
		}
		if err := ch.DeclareTopic(domain.SequenceTopic); err != nil {
			c.brokerErr = fmt.Errorf("declare topic: %w", err)
			return
		}
		c.brokerChan = ch
	})
	return c.brokerChan, c.brokerErr
}

// MetricsProvider returns the OpenTelemetry/Prometheus metrics provider, or
// nil when ENABLE_METRICS is false.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	if !c.config.EnableMetrics {
		return nil, nil
	}
	c.metricsOnce.Do(func() {
		c.metricsProvider, c.metricsErr = metrics.NewProvider("leadsequencer")
	})
	return c.metricsProvider, c.metricsErr
}

// BusinessMetrics returns the business operation metrics recorder, falling
// back to a no-op implementation when metrics are disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	c.bizMetricsOnce.Do(func() {
		mp, err := c.MetricsProvider()
		if err != nil {
			c.bizMetrics = metrics.NewNoOpBusinessMetrics()
			return
		}
		if mp == nil {
			c.bizMetrics = metrics.NewNoOpBusinessMetrics()
			return
		}
		bm, err := metrics.NewBusinessMetrics(mp.MeterProvider(), "leadsequencer")
		if err != nil {
			c.bizMetrics = metrics.NewNoOpBusinessMetrics()
			return
		}
		c.bizMetrics = bm
	})
	return c.bizMetrics, nil
}

// OutboxRepository returns the outbox persistence layer.
func (c *Container) OutboxRepository() (*outboxRepository.PostgreSQLOutboxRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, err
	}
	c.outboxRepoOnce.Do(func() {
		c.outboxRepo = outboxRepository.NewPostgreSQLOutboxRepository(db)
	})
	return c.outboxRepo, nil
}

// LeadCatalog returns the read-mostly lead/sequence/template repository.
func (c *Container) LeadCatalog() (*leadcatalog.Repository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, err
	}
	c.catalogRepoOnce.Do(func() {
		c.catalogRepo = leadcatalog.NewRepository(db)
	})
	return c.catalogRepo, nil
}

// EmailProvider returns the email delivery collaborator: SES in production,
// a synthetic mock provider everywhere else.
func (c *Container) EmailProvider(ctx context.Context) (provider.Provider, error) {
	c.emailProviderOnce.Do(func() {
		if c.config.NodeEnv != "production" {
			c.emailProvider = provider.NewMockProvider()
			return
		}
		ses, err := provider.NewSESProvider(ctx, c.config.AWSRegion, c.config.SESFromEmail)
		if err != nil {
			c.emailProviderErr = fmt.Errorf("build ses provider: %w", err)
			return
		}
		c.emailProvider = ses
	})
	return c.emailProvider, c.emailProviderErr
}

// AIOpener returns the Gemini-backed opener client for the aiOpener
// template special key.
func (c *Container) AIOpener() *aiopen.Client {
	c.aiClientOnce.Do(func() {
		c.aiClient = aiopen.New(
			c.config.GeminiAPIKey, c.config.ExternalCallTimeout,
			c.config.AIOpenerRateLimitPerSec, c.config.AIOpenerRateLimitBurst,
		)
	})
	return c.aiClient
}

// TemplateProcessor returns the shared placeholder-rendering processor.
func (c *Container) TemplateProcessor() *template.Processor {
	c.templateProcessorOnce.Do(func() {
		ai := c.AIOpener()
		c.templateProcessor = template.New(c.config.MainAppBaseURL, func(ctx context.Context) (string, error) {
			return ai.Opener(ctx, "Write a one-sentence, friendly cold-email opener.")
		}, nil)
	})
	return c.templateProcessor
}

// Scheduler builds the Scheduler pipeline stage.
func (c *Container) Scheduler() (*scheduler.Scheduler, error) {
	var err error
	c.schedulerOnce.Do(func() {
		var catalog *leadcatalog.Repository
		var outbox *outboxRepository.PostgreSQLOutboxRepository
		var txManager database.TxManager
		var bizMetrics metrics.BusinessMetrics

		if catalog, err = c.LeadCatalog(); err != nil {
			return
		}
		if outbox, err = c.OutboxRepository(); err != nil {
			return
		}
		if txManager, err = c.TxManager(); err != nil {
			return
		}
		if bizMetrics, err = c.BusinessMetrics(); err != nil {
			return
		}

		c.scheduler = scheduler.New(
			catalog, outbox, txManager, c.Logger(), bizMetrics,
			c.config.SchedulerBatchSize, c.config.OutboxMaxRetries,
			c.config.SchedulerTickActive, c.config.SchedulerTickIdle,
		)
	})
	if err != nil {
		return nil, err
	}
	return c.scheduler, nil
}

// Pump builds the Pump pipeline stage.
func (c *Container) Pump() (*pump.Pump, error) {
	var err error
	c.pumpOnce.Do(func() {
		var outbox *outboxRepository.PostgreSQLOutboxRepository
		var ch *broker.Channel
		var bizMetrics metrics.BusinessMetrics

		if outbox, err = c.OutboxRepository(); err != nil {
			return
		}
		if ch, err = c.Broker(); err != nil {
			return
		}
		if bizMetrics, err = c.BusinessMetrics(); err != nil {
			return
		}

		c.pump = pump.New(
			outbox, ch, c.Logger(), bizMetrics,
			c.config.PumpClaimSize, c.config.PumpPollActive, c.config.PumpPollIdle,
		)
	})
	if err != nil {
		return nil, err
	}
	return c.pump, nil
}

// Worker builds the Worker pipeline stage.
func (c *Container) Worker(ctx context.Context) (*worker.Worker, error) {
	var err error
	c.workerOnce.Do(func() {
		var catalog *leadcatalog.Repository
		var ch *broker.Channel
		var prov provider.Provider
		var bizMetrics metrics.BusinessMetrics

		if catalog, err = c.LeadCatalog(); err != nil {
			return
		}
		if ch, err = c.Broker(); err != nil {
			return
		}
		if prov, err = c.EmailProvider(ctx); err != nil {
			return
		}
		if bizMetrics, err = c.BusinessMetrics(); err != nil {
			return
		}

		c.worker = worker.New(
			catalog, ch, prov, c.TemplateProcessor(), c.Logger(), bizMetrics,
			worker.Config{
				ConsumerTag:         "leadsequencer-worker",
				MaxRetries:          c.config.WorkerMaxRetries,
				ExternalCallTimeout: c.config.ExternalCallTimeout,
				ShutdownGracePeriod: c.config.ShutdownGracePeriod,
				StrictTemplates:     false,
				TemplateReplacement: "",
				ProviderRateLimit:   rate.Limit(c.config.ProviderRateLimitPerSec),
				ProviderRateBurst:   c.config.ProviderRateLimitBurst,
			},
		)
	})
	if err != nil {
		return nil, err
	}
	return c.worker, nil
}

// HTTPServer builds the combined /health, /ready, /metrics surface for
// whichever binary calls it.
func (c *Container) HTTPServer(ctx context.Context) (*apphttp.MetricsServer, error) {
	mp, err := c.MetricsProvider()
	if err != nil {
		return nil, err
	}

	var checkers []apphttp.ReadinessChecker
	if db, dbErr := c.DB(); dbErr == nil {
		checkers = append(checkers, apphttp.DBReadinessChecker(db))
	}
	if c.brokerChan != nil {
		ch := c.brokerChan
		checkers = append(checkers, func(ctx context.Context) error {
			if !ch.IsOpen() {
				return fmt.Errorf("broker connection closed")
			}
			return nil
		})
	}

	return apphttp.NewMetricsServer(ctx, c.config.ServerHost, c.config.MetricsPort, c.Logger(), mp, checkers...), nil
}

// Shutdown releases all initialized resources.
func (c *Container) Shutdown(ctx context.Context) error {
	var errs []error

	if c.brokerChan != nil {
		if err := c.brokerChan.Close(); err != nil {
			errs = append(errs, fmt.Errorf("broker close: %w", err))
		}
	}
	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}
	if c.db != nil {
		if err := drainDB(c.db, c.config.DBDrainTimeout, c.Logger()); err != nil {
			errs = append(errs, fmt.Errorf("database close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// drainDB closes db, giving in-flight queries up to timeout to finish before
// giving up on waiting. db.Close is not cancellable, so a timeout can only
// stop this function from waiting on it, not the close itself; the
// underlying Close call keeps running in the background and the pool is
// abandoned either way once the process exits.
func drainDB(db *sql.DB, timeout time.Duration, logger *slog.Logger) error {
	done := make(chan error, 1)
	go func() { done <- db.Close() }()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		logger.Warn("database drain timed out, proceeding with shutdown", "timeout", timeout)
		return nil
	}
}
