// Package scheduler runs the cooperative tick loop that finds leads whose
// next sequence step is due and hands them off to the outbox, the first
// stage of the Scheduler -> Pump -> Worker pipeline.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/leadsequencer/internal/apperrors"
	"github.com/allisson/leadsequencer/internal/database"
	"github.com/allisson/leadsequencer/internal/domain"
	"github.com/allisson/leadsequencer/internal/idempotency"
	"github.com/allisson/leadsequencer/internal/metrics"
)

const businessDomain = "scheduler"

// OutboxRepository is the subset of outbox persistence the Scheduler needs.
type OutboxRepository interface {
	ExistsByIdemKey(ctx context.Context, idemKey string) (bool, error)
	Create(ctx context.Context, o *domain.Outbox) error
}

// Catalog is the subset of leadcatalog.Repository the Scheduler needs.
type Catalog interface {
	FindEligible(ctx context.Context, limit int) ([]domain.PendingLead, error)
	MarkRunning(ctx context.Context, leadStateID string) (bool, error)
}

// Scheduler drives the tick loop: on an active interval while the last tick
// found work, backing off to an idle interval once a tick finds nothing.
type Scheduler struct {
	catalog    Catalog
	outbox     OutboxRepository
	txManager  database.TxManager
	logger     *slog.Logger
	bizMetrics metrics.BusinessMetrics

	batchSize  int
	maxRetries int

	tickActive time.Duration
	tickIdle   time.Duration
}

// New builds a Scheduler.
func New(
	catalog Catalog,
	outbox OutboxRepository,
	txManager database.TxManager,
	logger *slog.Logger,
	bizMetrics metrics.BusinessMetrics,
	batchSize, maxRetries int,
	tickActive, tickIdle time.Duration,
) *Scheduler {
	return &Scheduler{
		catalog:    catalog,
		outbox:     outbox,
		txManager:  txManager,
		logger:     logger,
		bizMetrics: bizMetrics,
		batchSize:  batchSize,
		maxRetries: maxRetries,
		tickActive: tickActive,
		tickIdle:   tickIdle,
	}
}

// Run drives the tick loop until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.tickActive
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			found, err := s.tick(ctx)
			if err != nil {
				s.logger.Error("scheduler tick failed", "error", err)
			}
			if found {
				interval = s.tickActive
			} else {
				interval = s.tickIdle
			}
			timer.Reset(interval)
		}
	}
}

// tick runs one eligibility scan and enqueue pass, returning whether any
// leads were found (used to pick the next interval).
func (s *Scheduler) tick(ctx context.Context) (bool, error) {
	eligible, err := s.catalog.FindEligible(ctx, s.batchSize)
	if err != nil {
		return false, err
	}
	if len(eligible) == 0 {
		return false, nil
	}

	for _, lead := range eligible {
		if err := s.enqueue(ctx, lead); err != nil {
			s.logger.Error("enqueue failed", "lead_state_id", lead.LeadStateID, "error", err)
			s.bizMetrics.RecordOperation(ctx, businessDomain, "enqueue", "error")
		}
	}

	return true, nil
}

// enqueue runs the idemKey dedup check, outbox insert, and RUNNING
// transition for one lead, all in one DB transaction.
func (s *Scheduler) enqueue(ctx context.Context, lead domain.PendingLead) error {
	start := time.Now()
	idemKey := idempotency.Key(lead.SequenceID, lead.LeadID, lead.StepNumber, 0, "")

	// errSkipLead rolls the transaction back for a lead that must not be
	// enqueued; enqueue reports it as a skip, not an error.
	errSkipLead := errors.New("skip lead")

	err := s.txManager.WithTx(ctx, func(ctx context.Context) error {
		exists, err := s.outbox.ExistsByIdemKey(ctx, idemKey)
		if err != nil {
			return err
		}
		if exists {
			s.logger.Info("idempotency key already enqueued, aborting lead", "lead_state_id", lead.LeadStateID, "idem_key", idemKey)
			s.bizMetrics.RecordOperation(ctx, businessDomain, "enqueue", "skipped")
			return nil
		}

		payload, err := json.Marshal(lead)
		if err != nil {
			return apperrors.Wrap("scheduler.marshal_payload", apperrors.CategorySystem, err, "marshal pending lead")
		}

		row := &domain.Outbox{
			ID:         uuid.Must(uuid.NewV7()).String(),
			Topic:      domain.SequenceTopic,
			Payload:    payload,
			IdemKey:    idemKey,
			MaxRetries: s.maxRetries,
		}
		if err := s.outbox.Create(ctx, row); err != nil {
			if apperrors.IsIdemKeyConflict(err) {
				s.logger.Info("idempotency key conflict on insert, aborting lead", "lead_state_id", lead.LeadStateID, "idem_key", idemKey)
				s.bizMetrics.RecordOperation(ctx, businessDomain, "enqueue", "skipped")
				return errSkipLead
			}
			return err
		}

		ok, err := s.catalog.MarkRunning(ctx, lead.LeadStateID)
		if err != nil {
			return err
		}
		if !ok {
			// the state left PENDING/RUNNING after the eligibility scan;
			// roll back the outbox insert so nothing is published for it.
			s.logger.Info("lead concurrently advanced, aborting lead", "lead_state_id", lead.LeadStateID)
			s.bizMetrics.RecordOperation(ctx, businessDomain, "enqueue", "skipped")
			return errSkipLead
		}

		s.bizMetrics.RecordOperation(ctx, businessDomain, "enqueue", "success")
		return nil
	})
	if errors.Is(err, errSkipLead) {
		err = nil
	}

	s.bizMetrics.RecordDuration(ctx, businessDomain, "enqueue", time.Since(start), status(err))
	return err
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
