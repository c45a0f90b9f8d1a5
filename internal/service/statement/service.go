package statement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
	"github.com/vladislavdragonenkov/creditmarket/internal/metrics"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/credit"
)

// DefaultDueDay — день следующего месяца, до которого выписку нужно оплатить.
const DefaultDueDay = 15

// Типы outbox-событий выписок.
const (
	EventStatementGenerated = "StatementGenerated"
	EventStatementUpdated   = "StatementUpdated"
	EventPaymentRecorded    = "PaymentRecorded"
)

// Summary — итог пакетной генерации за месяц.
type Summary struct {
	Month     domain.Month
	Created   int
	Updated   int
	Unchanged int
	Failed    int
}

// Service формирует месячные выписки клиентов и принимает платежи по ним.
type Service struct {
	statements   domain.StatementRepository
	transactions domain.TransactionRepository
	accounts     domain.AccountRepository
	credit       *credit.Service
	outbox       domain.OutboxRepository
	ledger       domain.LedgerRepository
	metrics      *metrics.CheckoutMetrics
	tracer       trace.Tracer
	logger       *log.Entry
	now          func() time.Time
	dueDay       int
}

// Option настраивает Service.
type Option func(*Service)

func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(s *Service) { s.outbox = outbox }
}

func WithLedger(ledger domain.LedgerRepository) Option {
	return func(s *Service) { s.ledger = ledger }
}

func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func WithLogger(logger *log.Entry) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDueDay задаёт день оплаты в следующем месяце.
func WithDueDay(day int) Option {
	return func(s *Service) {
		if day > 0 {
			s.dueDay = day
		}
	}
}

// NewService создаёт сервис выписок.
func NewService(
	statements domain.StatementRepository,
	transactions domain.TransactionRepository,
	accounts domain.AccountRepository,
	creditSvc *credit.Service,
	opts ...Option,
) *Service {
	s := &Service{
		statements:   statements,
		transactions: transactions,
		accounts:     accounts,
		credit:       creditSvc,
		now:          func() time.Time { return time.Now().UTC() },
		dueDay:       DefaultDueDay,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "statement")
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("creditmarket/statement")
	}
	return s
}

// Generate создаёт или пересчитывает выписку клиента за месяц.
// Сумма — все completed-транзакции с createdAt в [начало месяца, cutoff), cutoff = min(now, конец месяца).
func (s *Service) Generate(ctx context.Context, customerID string, month domain.Month) (domain.MonthlyStatement, error) {
	ctx, span := s.tracer.Start(ctx, "statement.Generate", trace.WithAttributes(
		attribute.String("customer_id", customerID),
		attribute.String("month", month.String()),
	))
	defer span.End()

	st, outcome, err := s.generate(ctx, customerID, month)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.MonthlyStatement{}, err
	}
	span.SetAttributes(attribute.String("outcome", outcome), attribute.Int64("total_due_minor", st.TotalDueMinor))
	return st, nil
}

func (s *Service) generate(ctx context.Context, customerID string, month domain.Month) (domain.MonthlyStatement, string, error) {
	if customerID == "" {
		return domain.MonthlyStatement{}, "", domain.ErrCustomerRequired
	}
	if month.IsZero() {
		return domain.MonthlyStatement{}, "", domain.ErrInvalidMonth
	}

	var (
		result  domain.MonthlyStatement
		outcome string
	)
	_, err := s.credit.WithAccount(ctx, customerID, func(*credit.AccountTx) error {
		now := s.now()
		if now.Before(month.Start()) {
			return domain.ErrInvalidMonth
		}
		cutoff := month.CutoffAt(now)
		total, err := s.sumCompleted(ctx, customerID, month, cutoff)
		if err != nil {
			return err
		}

		existing, err := s.statements.GetByCustomerMonth(ctx, customerID, month)
		if errors.Is(err, domain.ErrStatementNotFound) {
			st := domain.MonthlyStatement{
				ID:            uuid.NewString(),
				CustomerID:    customerID,
				Month:         month,
				DueDate:       month.DueDate(s.dueDay),
				PaymentStatus: domain.PaymentStatusPending,
				CreatedAt:     now,
			}
			st.Recompute(total, cutoff, now)
			if err := s.statements.Create(ctx, st); err != nil {
				return fmt.Errorf("create statement: %w", err)
			}
			result, outcome = st, metrics.OutcomeCreated
			return nil
		}
		if err != nil {
			return err
		}

		totalChanged := existing.TotalDueMinor != total
		if !existing.Recompute(total, cutoff, now) {
			result, outcome = existing, metrics.OutcomeUnchanged
			return nil
		}
		if errs := existing.ValidateInvariants(); len(errs) > 0 {
			return errors.Join(errs...)
		}
		saved, err := s.statements.Save(ctx, existing)
		if err != nil {
			return fmt.Errorf("save statement: %w", err)
		}
		result, outcome = saved, metrics.OutcomeUnchanged
		if totalChanged {
			outcome = metrics.OutcomeUpdated
		}
		return nil
	})
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"customer_id": customerID,
			"month":       month.String(),
		}).Warn("statement generation failed")
		return domain.MonthlyStatement{}, "", err
	}

	if s.metrics != nil {
		s.metrics.RecordStatement(outcome)
	}
	switch outcome {
	case metrics.OutcomeCreated:
		s.enqueue(ctx, result, EventStatementGenerated, 0)
	case metrics.OutcomeUpdated:
		s.enqueue(ctx, result, EventStatementUpdated, 0)
	}
	s.logger.WithFields(log.Fields{
		"customer_id":     customerID,
		"month":           month.String(),
		"outcome":         outcome,
		"total_due_minor": result.TotalDueMinor,
	}).Debug("statement generated")
	return result, outcome, nil
}

func (s *Service) sumCompleted(ctx context.Context, customerID string, month domain.Month, cutoff time.Time) (int64, error) {
	txs, err := s.transactions.List(ctx, domain.TransactionFilter{
		CustomerID: customerID,
		Status:     domain.TransactionStatusCompleted,
		From:       month.Start(),
		Before:     cutoff,
	})
	if err != nil {
		return 0, fmt.Errorf("list transactions: %w", err)
	}
	return domain.SumTotals(txs), nil
}

// RecordPayment принимает платёж по выписке и возвращает на счёт ровно оплаченную сумму.
// Выписка и счёт меняются под блокировкой счёта; при ошибке сохранения выписки освобождение откатывается.
func (s *Service) RecordPayment(ctx context.Context, statementID string, amountMinor int64) (domain.MonthlyStatement, domain.CreditAccount, error) {
	ctx, span := s.tracer.Start(ctx, "statement.RecordPayment", trace.WithAttributes(
		attribute.String("statement_id", statementID),
		attribute.Int64("amount_minor", amountMinor),
	))
	defer span.End()

	if amountMinor <= 0 {
		return domain.MonthlyStatement{}, domain.CreditAccount{}, domain.ErrPaymentAmountInvalid
	}
	st, err := s.statements.Get(ctx, statementID)
	if err != nil {
		return domain.MonthlyStatement{}, domain.CreditAccount{}, err
	}

	var saved domain.MonthlyStatement
	account, err := s.credit.WithAccount(ctx, st.CustomerID, func(acc *credit.AccountTx) error {
		// перечитываем под блокировкой: конкурентный платёж мог уже изменить остаток
		current, err := s.statements.Get(ctx, statementID)
		if err != nil {
			return err
		}
		if err := current.ApplyPayment(amountMinor, s.now()); err != nil {
			return err
		}
		released, err := acc.Release(amountMinor, current.ID, "statement payment")
		if err != nil {
			return err
		}
		saved, err = s.statements.Save(ctx, current)
		if err != nil {
			if restoreErr := acc.Reserve(released, current.ID); restoreErr != nil {
				s.logger.WithError(restoreErr).WithFields(log.Fields{
					"statement_id": current.ID,
					"amount_minor": released,
				}).Error("restore credit after failed payment save")
				return errors.Join(err, restoreErr)
			}
			return fmt.Errorf("save statement: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.MonthlyStatement{}, account, err
	}

	if s.metrics != nil {
		s.metrics.RecordPayment()
	}
	s.appendLedger(ctx, saved, amountMinor)
	s.enqueue(ctx, saved, EventPaymentRecorded, amountMinor)
	s.logger.WithFields(log.Fields{
		"statement_id":    saved.ID,
		"customer_id":     saved.CustomerID,
		"amount_minor":    amountMinor,
		"payment_status":  saved.PaymentStatus,
		"available_minor": account.CreditAvailableMinor,
	}).Info("statement payment recorded")
	return saved, account, nil
}

// GenerateAll формирует выписки за месяц для всех клиентов со счётом.
// Ошибка по одному клиенту не останавливает остальных.
func (s *Service) GenerateAll(ctx context.Context, month domain.Month) (Summary, error) {
	ctx, span := s.tracer.Start(ctx, "statement.GenerateAll", trace.WithAttributes(attribute.String("month", month.String())))
	defer span.End()

	summary := Summary{Month: month}
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return summary, fmt.Errorf("list accounts: %w", err)
	}
	for _, acc := range accounts {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		_, outcome, err := s.generate(ctx, acc.CustomerID, month)
		if err != nil {
			summary.Failed++
			continue
		}
		switch outcome {
		case metrics.OutcomeCreated:
			summary.Created++
		case metrics.OutcomeUpdated:
			summary.Updated++
		default:
			summary.Unchanged++
		}
	}
	span.SetAttributes(attribute.Int("created", summary.Created), attribute.Int("failed", summary.Failed))
	return summary, nil
}

// Get возвращает выписку по идентификатору.
func (s *Service) Get(ctx context.Context, id string) (domain.MonthlyStatement, error) {
	return s.statements.Get(ctx, id)
}

// List возвращает выписки по фильтру.
func (s *Service) List(ctx context.Context, filter domain.StatementFilter) ([]domain.MonthlyStatement, error) {
	return s.statements.List(ctx, filter)
}

// Transactions — транзакции, вошедшие в выписку (для экспорта).
func (s *Service) Transactions(ctx context.Context, st domain.MonthlyStatement) ([]domain.Transaction, error) {
	return s.transactions.List(ctx, domain.TransactionFilter{
		CustomerID: st.CustomerID,
		Status:     domain.TransactionStatusCompleted,
		From:       st.Month.Start(),
		Before:     st.CutoffAt,
	})
}

func (s *Service) appendLedger(ctx context.Context, st domain.MonthlyStatement, amountMinor int64) {
	if s.ledger == nil {
		return
	}
	event := domain.LedgerEvent{
		CustomerID:  st.CustomerID,
		Type:        domain.LedgerEventPaymentRecorded,
		AmountMinor: amountMinor,
		Reference:   st.ID,
		Occurred:    s.now(),
	}
	if err := s.ledger.Append(ctx, event); err != nil {
		s.logger.WithError(err).WithField("statement_id", st.ID).Warn("append ledger event failed")
	}
}

func (s *Service) enqueue(ctx context.Context, st domain.MonthlyStatement, eventType string, amountMinor int64) {
	if s.outbox == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"statement_id":      st.ID,
		"customer_id":       st.CustomerID,
		"month":             st.Month.String(),
		"total_due_minor":   st.TotalDueMinor,
		"paid_amount_minor": st.PaidAmountMinor,
		"payment_status":    st.PaymentStatus,
		"amount_minor":      amountMinor,
		"due_date":          st.DueDate.Format(time.DateOnly),
	})
	if err != nil {
		s.logger.WithError(err).WithField("event", eventType).Error("marshal event failed")
		return
	}
	msg := domain.OutboxMessage{
		AggregateType: domain.AggregateStatement,
		AggregateID:   st.ID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     s.now(),
	}
	if _, err := s.outbox.Enqueue(ctx, msg); err != nil {
		s.logger.WithError(err).WithField("event", eventType).Error("enqueue event failed")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}
}
