// Package pump runs the cooperative poll loop that claims outbox rows and
// publishes them to the broker, the second stage of the pipeline.
package pump

import (
	"context"
	"log/slog"
	"time"

	"github.com/allisson/leadsequencer/internal/domain"
	"github.com/allisson/leadsequencer/internal/metrics"
)

const businessDomain = "pump"

// OutboxRepository is the subset of outbox persistence the Pump needs.
type OutboxRepository interface {
	ClaimBatch(ctx context.Context, limit int) ([]*domain.Outbox, error)
	Revert(ctx context.Context, id string) error
}

// Publisher is the broker surface the Pump depends on.
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte, retries int) error
}

// Pump drains claimed outbox rows onto the broker in a claim-then-publish
// loop, using the same active/idle backoff shape the Scheduler uses.
type Pump struct {
	outbox     OutboxRepository
	publisher  Publisher
	logger     *slog.Logger
	bizMetrics metrics.BusinessMetrics

	claimSize int

	pollActive time.Duration
	pollIdle   time.Duration
}

// New builds a Pump.
func New(
	outbox OutboxRepository,
	publisher Publisher,
	logger *slog.Logger,
	bizMetrics metrics.BusinessMetrics,
	claimSize int,
	pollActive, pollIdle time.Duration,
) *Pump {
	return &Pump{
		outbox:     outbox,
		publisher:  publisher,
		logger:     logger,
		bizMetrics: bizMetrics,
		claimSize:  claimSize,
		pollActive: pollActive,
		pollIdle:   pollIdle,
	}
}

// Run drives the poll loop until ctx is cancelled.
func (p *Pump) Run(ctx context.Context) error {
	interval := p.pollActive
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			found, err := p.tick(ctx)
			if err != nil {
				p.logger.Error("pump tick failed", "error", err)
			}
			if found {
				interval = p.pollActive
			} else {
				interval = p.pollIdle
			}
			timer.Reset(interval)
		}
	}
}

// tick claims a batch of outbox rows and publishes each; a publish failure
// reverts that row so a later claim can retry it, bounded by max_retries.
func (p *Pump) tick(ctx context.Context) (bool, error) {
	claimed, err := p.outbox.ClaimBatch(ctx, p.claimSize)
	if err != nil {
		return false, err
	}
	if len(claimed) == 0 {
		return false, nil
	}

	for _, row := range claimed {
		start := time.Now()
		err := p.publisher.Publish(ctx, row.Topic, row.Payload, 0)
		p.bizMetrics.RecordDuration(ctx, businessDomain, "publish", time.Since(start), status(err))
		if err != nil {
			p.logger.Error("publish failed, reverting outbox row", "outbox_id", row.ID, "error", err)
			p.bizMetrics.RecordOperation(ctx, businessDomain, "publish", "error")
			if revertErr := p.outbox.Revert(ctx, row.ID); revertErr != nil {
				p.logger.Error("revert failed", "outbox_id", row.ID, "error", revertErr)
			}
			continue
		}
		p.bizMetrics.RecordOperation(ctx, businessDomain, "publish", "success")
	}

	return true, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
