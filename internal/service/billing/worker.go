package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
	"github.com/vladislavdragonenkov/creditmarket/internal/metrics"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/settlement"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/statement"
	"github.com/vladislavdragonenkov/creditmarket/internal/worker"
)

const defaultCloseInterval = time.Hour

// StatementGenerator формирует выписки за месяц по всем клиентам.
type StatementGenerator interface {
	GenerateAll(ctx context.Context, month domain.Month) (statement.Summary, error)
}

// SettlementGenerator формирует выплаты за месяц по всем магазинам.
type SettlementGenerator interface {
	GenerateAll(ctx context.Context, month domain.Month) (settlement.Summary, error)
}

// Result — итог закрытия одного месяца.
type Result struct {
	Month       domain.Month
	Statements  statement.Summary
	Settlements settlement.Summary
}

// Failed — сколько клиентов и магазинов не удалось обработать.
func (r Result) Failed() int {
	return r.Statements.Failed + r.Settlements.Failed
}

// Options задаёт параметры воркера закрытия месяца.
type Options struct {
	Logger   *log.Entry
	Metrics  *metrics.WorkerMetrics
	Interval time.Duration
	Clock    func() time.Time
}

// Option настраивает Worker.
type Option func(*Options)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики; nil отключает.
func WithMetrics(m *metrics.WorkerMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithInterval задаёт интервал проверки, не закрыт ли новый месяц.
func WithInterval(interval time.Duration) Option {
	return func(opts *Options) {
		opts.Interval = interval
	}
}

// WithClock подменяет часы.
func WithClock(now func() time.Time) Option {
	return func(opts *Options) {
		opts.Clock = now
	}
}

// Worker закрывает прошедший месяц: выписки клиентам и выплаты магазинам.
// Генерация идемпотентна, поэтому повторный запуск за тот же месяц ничего не меняет.
type Worker struct {
	statements  StatementGenerator
	settlements SettlementGenerator
	logger      *log.Entry
	metrics     *metrics.WorkerMetrics
	interval    time.Duration
	now         func() time.Time

	mu         sync.Mutex
	lastClosed domain.Month
}

// NewWorker создаёт воркер закрытия месяца.
func NewWorker(statements StatementGenerator, settlements SettlementGenerator, options ...Option) *Worker {
	opts := Options{Interval: defaultCloseInterval}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "billing-close-worker")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultCloseInterval
	}
	if opts.Clock == nil {
		opts.Clock = worker.UTCNow
	}

	return &Worker{
		statements:  statements,
		settlements: settlements,
		logger:      logger,
		metrics:     opts.Metrics,
		interval:    opts.Interval,
		now:         opts.Clock,
	}
}

// Run закрывает предыдущий месяц сразу и затем проверяет смену месяца по таймеру.
func (w *Worker) Run(ctx context.Context) {
	if w.statements == nil || w.settlements == nil {
		w.logger.Warn("billing close worker is disabled: generators are nil")
		return
	}

	worker.Loop(ctx, w.interval, w.tick)
}

func (w *Worker) tick(ctx context.Context) {
	month := domain.MonthOf(w.now()).Prev()

	w.mu.Lock()
	done := w.lastClosed == month
	w.mu.Unlock()
	if done {
		w.logger.WithField("month", month.String()).Debug("month already closed")
		return
	}

	result, err := w.RunOnce(ctx, month)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		w.logger.WithError(err).WithField("month", month.String()).Warn("month close failed")
		return
	}
	if result.Failed() == 0 {
		w.mu.Lock()
		w.lastClosed = month
		w.mu.Unlock()
	}
}

// RunOnce закрывает месяц month. Частичные сбои отражаются в Result.Failed,
// ошибка возвращается только если не удалось получить список клиентов или магазинов.
func (w *Worker) RunOnce(ctx context.Context, month domain.Month) (Result, error) {
	result := Result{Month: month}
	if !month.Closed(w.now()) {
		w.recordRun("error", 0)
		return result, fmt.Errorf("%w: month %s is not closed yet", domain.ErrInvalidMonth, month)
	}

	statements, err := w.statements.GenerateAll(ctx, month)
	result.Statements = statements
	if err != nil {
		w.recordRun("error", 0)
		return result, fmt.Errorf("generate statements: %w", err)
	}

	settlements, err := w.settlements.GenerateAll(ctx, month)
	result.Settlements = settlements
	if err != nil {
		w.recordRun("error", statements.Created+statements.Updated)
		return result, fmt.Errorf("generate settlements: %w", err)
	}

	processed := statements.Created + statements.Updated + settlements.Created + settlements.Updated
	if result.Failed() > 0 {
		w.recordRun("partial", processed)
	} else {
		w.recordRun("success", processed)
	}

	w.logger.WithFields(log.Fields{
		"month":               month.String(),
		"statements_created":  statements.Created,
		"statements_updated":  statements.Updated,
		"statements_failed":   statements.Failed,
		"settlements_created": settlements.Created,
		"settlements_updated": settlements.Updated,
		"settlements_frozen":  settlements.Frozen,
		"settlements_failed":  settlements.Failed,
	}).Info("month close completed")
	return result, nil
}

func (w *Worker) recordRun(result string, processed int) {
	if w.metrics == nil {
		return
	}
	w.metrics.RecordRun(metrics.WorkerBilling, result)
	w.metrics.RecordProcessed(metrics.WorkerBilling, processed)
}
