package pump

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/allisson/leadsequencer/internal/domain"
	"github.com/allisson/leadsequencer/internal/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeOutbox struct {
	claimed  []*domain.Outbox
	claimErr error
	reverted []string
}

func (f *fakeOutbox) ClaimBatch(ctx context.Context, limit int) ([]*domain.Outbox, error) {
	return f.claimed, f.claimErr
}
func (f *fakeOutbox) Revert(ctx context.Context, id string) error {
	f.reverted = append(f.reverted, id)
	return nil
}

type fakePublisher struct {
	err       error
	published []string
}

func (f *fakePublisher) Publish(ctx context.Context, queue string, body []byte, retries int) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, queue)
	return nil
}

func newTestPump(outbox OutboxRepository, pub Publisher) *Pump {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(outbox, pub, logger, metrics.NewNoOpBusinessMetrics(), 10, time.Millisecond, time.Millisecond)
}

func TestTick_PublishesClaimedRows(t *testing.T) {
	outbox := &fakeOutbox{claimed: []*domain.Outbox{
		{ID: "o1", Topic: domain.SequenceTopic, Payload: []byte("{}")},
	}}
	pub := &fakePublisher{}
	p := newTestPump(outbox, pub)

	found, err := p.tick(context.Background())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{domain.SequenceTopic}, pub.published)
	assert.Empty(t, outbox.reverted)
}

func TestTick_RevertsOnPublishFailure(t *testing.T) {
	outbox := &fakeOutbox{claimed: []*domain.Outbox{{ID: "o1", Topic: domain.SequenceTopic}}}
	pub := &fakePublisher{err: errors.New("broker unavailable")}
	p := newTestPump(outbox, pub)

	found, err := p.tick(context.Background())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"o1"}, outbox.reverted)
}

func TestTick_ReturnsFalseWhenNothingClaimed(t *testing.T) {
	outbox := &fakeOutbox{}
	p := newTestPump(outbox, &fakePublisher{})

	found, err := p.tick(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTick_PropagatesClaimError(t *testing.T) {
	outbox := &fakeOutbox{claimErr: errors.New("db down")}
	p := newTestPump(outbox, &fakePublisher{})

	_, err := p.tick(context.Background())
	require.Error(t, err)
}

func TestRun_ExitsCleanlyOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newTestPump(&fakeOutbox{}, &fakePublisher{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after context cancel")
	}
}
