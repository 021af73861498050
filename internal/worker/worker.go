// Package worker consumes SEQUENCE_TOPIC deliveries, renders and sends the
// email for each pending lead, and advances its sequence state. It is the
// terminal stage of the Scheduler -> Pump -> Worker pipeline.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"time"

	"github.com/go-playground/validator/v10"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/allisson/leadsequencer/internal/broker"
	"github.com/allisson/leadsequencer/internal/domain"
	"github.com/allisson/leadsequencer/internal/leadcatalog"
	"github.com/allisson/leadsequencer/internal/metrics"
	"github.com/allisson/leadsequencer/internal/provider"
	"github.com/allisson/leadsequencer/internal/template"
)

const businessDomain = "worker"

// LeadCatalog is the subset of leadcatalog.Repository the Worker needs.
type LeadCatalog interface {
	GetLead(ctx context.Context, id string) (*domain.Lead, error)
	GetLeadEnrichment(ctx context.Context, leadID string) (*domain.LeadEnrichment, error)
	GetSequenceStep(ctx context.Context, id string) (*domain.SequenceStep, error)
	GetTemplatesForStep(ctx context.Context, stepID string) ([]domain.SequenceTemplate, error)
	AdvanceState(ctx context.Context, leadStateID, sequenceID string) (*leadcatalog.AdvanceResult, error)
}

// Consumer is the broker surface the Worker depends on.
type Consumer interface {
	Consume(queue, consumerTag string) (<-chan amqp.Delivery, error)
	Publish(ctx context.Context, queue string, body []byte, retries int) error
}

// Worker consumes SEQUENCE_TOPIC and drives the per-message send pipeline:
// load context, render, send, advance state, ack.
type Worker struct {
	catalog    LeadCatalog
	consumer   Consumer
	provider   provider.Provider
	renderer   *template.Processor
	validate   *validator.Validate
	limiter    *rate.Limiter
	logger     *slog.Logger
	bizMetrics metrics.BusinessMetrics

	consumerTag string
	maxRetries  int
	callTimeout time.Duration
	gracePeriod time.Duration
	strict      bool
	replacement string

	rand *rand.Rand
}

// Config bundles the Worker's tuning knobs.
type Config struct {
	ConsumerTag         string
	MaxRetries          int
	ExternalCallTimeout time.Duration
	ShutdownGracePeriod time.Duration
	StrictTemplates     bool
	TemplateReplacement string
	ProviderRateLimit   rate.Limit
	ProviderRateBurst   int
}

// New builds a Worker.
func New(
	catalog LeadCatalog,
	consumer Consumer,
	prov provider.Provider,
	renderer *template.Processor,
	logger *slog.Logger,
	bizMetrics metrics.BusinessMetrics,
	cfg Config,
) *Worker {
	limit := cfg.ProviderRateLimit
	if limit == 0 {
		limit = rate.Inf
	}
	burst := cfg.ProviderRateBurst
	if burst == 0 {
		burst = 1
	}
	grace := cfg.ShutdownGracePeriod
	if grace == 0 {
		grace = 5 * time.Second
	}

	return &Worker{
		catalog:     catalog,
		consumer:    consumer,
		provider:    prov,
		renderer:    renderer,
		validate:    validator.New(),
		limiter:     rate.NewLimiter(limit, burst),
		logger:      logger,
		bizMetrics:  bizMetrics,
		consumerTag: cfg.ConsumerTag,
		maxRetries:  cfg.MaxRetries,
		callTimeout: cfg.ExternalCallTimeout,
		gracePeriod: grace,
		strict:      cfg.StrictTemplates,
		replacement: cfg.TemplateReplacement,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run consumes deliveries until ctx is cancelled or the delivery channel
// closes. ctx cancellation only stops new deliveries from being read; a
// delivery already being processed runs on a context detached from ctx so
// shutdown doesn't abort a send that's already in flight. That detached
// context is itself cut short w.gracePeriod after ctx is cancelled, so a
// stuck handler can't block shutdown forever.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.consumer.Consume(domain.SequenceTopic, w.consumerTag)
	if err != nil {
		return err
	}

	procCtx, hardStop := context.WithCancel(context.Background())
	defer hardStop()

	go func() {
		select {
		case <-procCtx.Done():
			return
		case <-ctx.Done():
		}
		timer := time.NewTimer(w.gracePeriod)
		defer timer.Stop()
		select {
		case <-timer.C:
			hardStop()
		case <-procCtx.Done():
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			w.handle(procCtx, d)
		}
	}
}

// handle runs the full per-message pipeline, deciding ack/republish/reject.
func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	start := time.Now()

	var lead domain.PendingLead
	if err := json.Unmarshal(d.Body, &lead); err != nil {
		w.logger.Error("malformed delivery, acking without redelivery", "error", err)
		w.ack(d)
		w.bizMetrics.RecordOperation(ctx, businessDomain, "parse", "error")
		return
	}
	if err := w.validate.Struct(lead); err != nil {
		w.logger.Error("invalid pending lead payload, acking without redelivery", "error", err)
		w.ack(d)
		w.bizMetrics.RecordOperation(ctx, businessDomain, "parse", "error")
		return
	}

	if err := w.process(ctx, lead); err != nil {
		w.retryOrDeadLetter(ctx, d, err)
		w.bizMetrics.RecordDuration(ctx, businessDomain, "send", time.Since(start), "error")
		return
	}

	w.ack(d)
	w.bizMetrics.RecordDuration(ctx, businessDomain, "send", time.Since(start), "success")
}

// process loads the lead/step/template context, checks eligibility, renders
// and sends the email, and advances sequence state for one pending lead.
func (w *Worker) process(ctx context.Context, pending domain.PendingLead) error {
	var lead *domain.Lead
	var enrichment *domain.LeadEnrichment
	var step *domain.SequenceStep
	var templates []domain.SequenceTemplate

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lead, err = w.catalog.GetLead(gctx, pending.LeadID)
		return err
	})
	g.Go(func() error {
		var err error
		enrichment, err = w.catalog.GetLeadEnrichment(gctx, pending.LeadID)
		return err
	})
	g.Go(func() error {
		var err error
		step, err = w.catalog.GetSequenceStep(gctx, pending.StepID)
		return err
	})
	g.Go(func() error {
		var err error
		templates, err = w.catalog.GetTemplatesForStep(gctx, pending.StepID)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := eligible(lead, templates); err != nil {
		return err
	}

	tpl := templates[w.rand.Intn(len(templates))]

	subject := w.renderer.Render(ctx, tpl.Subject, *lead, enrichment, nil, w.templateOptions())
	body := w.renderer.Render(ctx, tpl.Body, *lead, enrichment, nil, w.templateOptions())

	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.callTimeout)
	defer cancel()

	res, err := w.provider.Send(sendCtx, provider.EmailData{
		To:         lead.Email,
		Subject:    subject,
		Body:       body,
		LeadID:     lead.ID,
		SequenceID: pending.SequenceID,
		StepID:     step.ID,
		TemplateID: tpl.ID,
	})
	if err != nil {
		return err
	}
	if !res.Success {
		return errNotSent
	}

	result, err := w.catalog.AdvanceState(ctx, pending.LeadStateID, pending.SequenceID)
	if err != nil {
		return err
	}
	if result == nil {
		w.logger.Info("state already advanced or terminal, treating as success", "lead_state_id", pending.LeadStateID)
	}

	return nil
}

func (w *Worker) templateOptions() template.Options {
	return template.Options{Strict: w.strict, Replacement: w.replacement}
}

// retryOrDeadLetter republishes with an incremented x-retries header while
// under the ceiling, otherwise rejects without requeue so the broker routes
// the delivery to its configured DLQ.
func (w *Worker) retryOrDeadLetter(ctx context.Context, d amqp.Delivery, cause error) {
	retries := broker.Retries(d)
	w.logger.Error("message processing failed", "retries", retries, "error", cause)

	if retries < w.maxRetries {
		if err := w.consumer.Publish(ctx, domain.SequenceTopic, d.Body, retries+1); err != nil {
			w.logger.Error("republish failed, rejecting with requeue", "error", err)
			w.reject(d, true)
			return
		}
		w.ack(d)
		w.bizMetrics.RecordOperation(ctx, businessDomain, "retry", "success")
		return
	}

	w.reject(d, false)
	w.bizMetrics.RecordOperation(ctx, businessDomain, "dead_letter", "success")
}

func (w *Worker) ack(d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		w.logger.Error("ack failed", "error", err)
	}
}

func (w *Worker) reject(d amqp.Delivery, requeue bool) {
	if err := d.Reject(requeue); err != nil {
		w.logger.Error("reject failed", "error", err)
	}
}

// eligible enforces the hard-fail checks a lead must pass before a send is attempted.
func eligible(lead *domain.Lead, templates []domain.SequenceTemplate) error {
	if lead == nil || lead.Email == "" {
		return errIneligible
	}
	if !lead.IsSubscribedToEmail {
		return errIneligible
	}
	if lead.IsEmailValid == domain.EmailValidityInvalid {
		return errIneligible
	}
	if len(templates) == 0 {
		return errIneligible
	}
	return nil
}
