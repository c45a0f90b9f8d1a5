package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
	"github.com/vladislavdragonenkov/creditmarket/internal/metrics"
	"github.com/vladislavdragonenkov/creditmarket/internal/storage/memory"
)

func reserveEvent(id, customerID string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: domain.AggregateAccount,
		AggregateID:   customerID,
		EventType:     domain.LedgerEventCreditReserved,
		Payload:       []byte(`{"amount_minor":120000}`),
	}
}

func TestWorker_ProcessOnce_MarkSent(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{reserveEvent("msg-1", "cust-1")}}
	publisher := &stubPublisher{}

	worker := NewWorker(repo, publisher,
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
		WithMetrics(metrics.NewWorkerMetricsWithRegisterer(prometheus.NewRegistry())),
	)

	require.Equal(t, 1, worker.ProcessOnce(context.Background()))
	require.Equal(t, []string{"msg-1"}, repo.sentIDs)
	require.Empty(t, repo.failedIDs)
	require.Equal(t, 1, publisher.calls())
}

func TestWorker_ProcessOnce_MarkFailedAndDLQAfterRetries(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{reserveEvent("msg-2", "cust-2")}}
	publisher := &stubPublisher{err: errors.New("publish failed")}
	dlq := &stubPublisher{}

	worker := NewWorker(repo, publisher,
		WithDLQPublisher(dlq),
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)

	require.Zero(t, worker.ProcessOnce(context.Background()))
	require.Equal(t, 3, publisher.calls())
	require.Empty(t, repo.sentIDs)
	require.Equal(t, []string{"msg-2"}, repo.failedIDs)
	require.Equal(t, 1, dlq.calls())

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(dlq.last().Payload, &envelope))
	require.Equal(t, "msg-2", envelope["outbox_id"])
	require.Contains(t, envelope["publish_error"], "publish failed")
}

func TestWorker_ProcessOnce_DLQFailureKeepsPending(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{reserveEvent("msg-3", "cust-3")}}
	worker := NewWorker(repo, &stubPublisher{err: errors.New("broker down")},
		WithDLQPublisher(&stubPublisher{err: errors.New("dlq down")}),
		WithRetryBaseDelay(0),
		WithMaxAttempts(1),
	)

	worker.ProcessOnce(context.Background())
	require.Empty(t, repo.sentIDs)
	require.Empty(t, repo.failedIDs)
}

func TestWorker_ProcessOnce_SuccessAfterRetry(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{reserveEvent("msg-4", "cust-4")}}
	publisher := &stubPublisher{sequenceErrors: []error{errors.New("attempt 1"), errors.New("attempt 2"), nil}}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(3))
	worker.ProcessOnce(context.Background())

	require.Equal(t, 3, publisher.calls())
	require.Equal(t, []string{"msg-4"}, repo.sentIDs)
	require.Empty(t, repo.failedIDs)
}

func TestWorker_ProcessOnce_DefersRestOfFailedAggregate(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{
		reserveEvent("a-1", "cust-a"),
		reserveEvent("b-1", "cust-b"),
		reserveEvent("a-2", "cust-a"),
	}}
	publisher := &stubPublisher{failFor: map[string]bool{"a-1": true}}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(2))
	require.Equal(t, 1, worker.ProcessOnce(context.Background()))

	require.Equal(t, []string{"b-1"}, repo.sentIDs)
	require.Equal(t, []string{"a-1"}, repo.failedIDs)
	// a-2 не публиковался в этом цикле
	require.Equal(t, 3, publisher.calls())
}

func TestWorker_ProcessOnce_WithMemoryRepository(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewOutboxRepository()
	for _, id := range []string{"m-1", "m-2"} {
		_, err := repo.Enqueue(ctx, reserveEvent(id, "cust-9"))
		require.NoError(t, err)
	}

	worker := NewWorker(repo, &stubPublisher{}, WithRetryBaseDelay(0))
	require.Equal(t, 2, worker.ProcessOnce(ctx))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	worker := NewWorker(&stubOutboxRepo{}, &stubPublisher{},
		WithPollInterval(5*time.Millisecond),
		WithRetryBaseDelay(0),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

type stubOutboxRepo struct {
	pending   []domain.OutboxMessage
	sentIDs   []string
	failedIDs []string
}

func (s *stubOutboxRepo) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	return msg, nil
}

func (s *stubOutboxRepo) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 || limit >= len(s.pending) {
		return append([]domain.OutboxMessage(nil), s.pending...), nil
	}
	return append([]domain.OutboxMessage(nil), s.pending[:limit]...), nil
}

func (s *stubOutboxRepo) Stats(context.Context) (domain.OutboxStats, error) {
	stats := domain.OutboxStats{PendingCount: len(s.pending)}
	if len(s.pending) > 0 {
		stats.OldestPendingAt = time.Now().UTC().Add(-time.Second)
	}
	return stats, nil
}

func (s *stubOutboxRepo) MarkSent(_ context.Context, id string) error {
	s.sentIDs = append(s.sentIDs, id)
	return nil
}

func (s *stubOutboxRepo) MarkFailed(_ context.Context, id string) error {
	s.failedIDs = append(s.failedIDs, id)
	return nil
}

type stubPublisher struct {
	mu             sync.Mutex
	err            error
	sequenceErrors []error
	failFor        map[string]bool
	callCount      int
	published      []domain.OutboxMessage
}

func (s *stubPublisher) Publish(_ context.Context, event domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	s.published = append(s.published, event)
	if len(s.sequenceErrors) > 0 {
		err := s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
		return err
	}
	if s.failFor[event.ID] {
		return errors.New("rejected by broker")
	}
	return s.err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

func (s *stubPublisher) last() domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published[len(s.published)-1]
}

var _ domain.OutboxRepository = (*stubOutboxRepo)(nil)
var _ domain.OutboxPublisher = (*stubPublisher)(nil)
