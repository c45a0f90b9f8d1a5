// Package idempotency чистит хранилище ключей идемпотентности денежных операций.
package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
	"github.com/vladislavdragonenkov/creditmarket/internal/metrics"
	"github.com/vladislavdragonenkov/creditmarket/internal/worker"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
)

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupWorker)

func WithLogger(logger *log.Entry) CleanupOption {
	return func(w *CleanupWorker) { w.logger = logger }
}

// WithMetrics задаёт метрики; nil отключает.
func WithMetrics(m *metrics.WorkerMetrics) CleanupOption {
	return func(w *CleanupWorker) { w.metrics = m }
}

func WithInterval(interval time.Duration) CleanupOption {
	return func(w *CleanupWorker) { w.interval = interval }
}

// WithBatchSize — сколько ключей удаляется одним запросом.
func WithBatchSize(batchSize int) CleanupOption {
	return func(w *CleanupWorker) { w.batchSize = batchSize }
}

func WithClock(now func() time.Time) CleanupOption {
	return func(w *CleanupWorker) { w.now = now }
}

// CleanupWorker удаляет сохранённые ответы checkout, платежей и выплат,
// срок повтора которых истёк.
type CleanupWorker struct {
	repo      domain.IdempotencyRepository
	logger    *log.Entry
	metrics   *metrics.WorkerMetrics
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewCleanupWorker(repo domain.IdempotencyRepository, options ...CleanupOption) *CleanupWorker {
	w := &CleanupWorker{repo: repo}
	for _, option := range options {
		option(w)
	}

	if w.logger == nil {
		w.logger = log.WithField("component", "idempotency-cleanup-worker")
	}
	if w.interval <= 0 {
		w.interval = defaultCleanupInterval
	}
	if w.batchSize <= 0 {
		w.batchSize = defaultCleanupBatchSize
	}
	if w.now == nil {
		w.now = worker.UTCNow
	}
	return w
}

// Run чистит ключи сразу и затем каждые interval до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("idempotency cleanup worker is disabled: repo is nil")
		return
	}
	worker.Loop(ctx, w.interval, w.cleanup)
}

func (w *CleanupWorker) cleanup(ctx context.Context) {
	deleted, err := w.DeleteExpired(ctx, w.now())
	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		w.record("error", deleted)
		w.logger.WithError(err).WithField("deleted", deleted).Warn("idempotency cleanup run failed")
	default:
		w.record("success", deleted)
		if deleted > 0 {
			w.logger.WithField("deleted", deleted).Info("expired idempotency keys removed")
		}
	}
}

func (w *CleanupWorker) record(result string, deleted int) {
	if w.metrics == nil {
		return
	}
	w.metrics.RecordRun(metrics.WorkerIdempotency, result)
	w.metrics.RecordProcessed(metrics.WorkerIdempotency, deleted)
}

// DeleteExpired удаляет порциями все ключи с TTL не позже before.
// Неполная порция означает, что просроченных ключей больше нет.
func (w *CleanupWorker) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = w.now()
	}

	total := 0
	for ctx.Err() == nil {
		deleted, err := w.repo.DeleteExpired(ctx, before, w.batchSize)
		total += deleted
		if err != nil {
			return total, err
		}
		if deleted < w.batchSize {
			return total, nil
		}
	}
	return total, ctx.Err()
}
