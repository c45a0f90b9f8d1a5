package settlement

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

// Типы outbox-событий выплат.
const (
	EventSettlementGenerated = "SettlementGenerated"
	EventSettlementUpdated   = "SettlementUpdated"
	EventSettlementSettled   = "SettlementSettled"
)

// Summary — итог пакетной генерации выплат за месяц.
type Summary struct {
	Month     domain.Month
	Created   int
	Updated   int
	Unchanged int
	Frozen    int
	Failed    int
}

// Service агрегирует продажи магазинов в месячные выплаты.
type Service struct {
	settlements  domain.SettlementRepository
	transactions domain.TransactionRepository
	directory    domain.DirectoryRepository
	outbox       domain.OutboxRepository
	locks        *credit.KeyedMutex
	metrics      *metrics.CheckoutMetrics
	tracer       trace.Tracer
	logger       *log.Entry
	now          func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(s *Service) { s.outbox = outbox }
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

// NewService создаёт сервис выплат.
func NewService(settlements domain.SettlementRepository, transactions domain.TransactionRepository, directory domain.DirectoryRepository, opts ...Option) *Service {
	s := &Service{
		settlements:  settlements,
		transactions: transactions,
		directory:    directory,
		locks:        credit.NewKeyedMutex(),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "settlement")
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("creditmarket/settlement")
	}
	return s
}

// Generate создаёт или пересчитывает выплату магазину за месяц.
// Выплата, сформированная после конца месяца или уже проведённая, больше не меняется.
func (s *Service) Generate(ctx context.Context, shopID string, month domain.Month) (domain.ShopSettlement, error) {
	ctx, span := s.tracer.Start(ctx, "settlement.Generate", trace.WithAttributes(
		attribute.String("shop_id", shopID),
		attribute.String("month", month.String()),
	))
	defer span.End()

	st, outcome, err := s.generate(ctx, shopID, month)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.ShopSettlement{}, err
	}
	span.SetAttributes(attribute.String("outcome", outcome), attribute.Int64("amount_minor", st.AmountMinor))
	return st, nil
}

func (s *Service) generate(ctx context.Context, shopID string, month domain.Month) (domain.ShopSettlement, string, error) {
	if shopID == "" {
		return domain.ShopSettlement{}, "", domain.ErrShopRequired
	}
	if month.IsZero() {
		return domain.ShopSettlement{}, "", domain.ErrInvalidMonth
	}
	now := s.now()
	if now.Before(month.Start()) {
		return domain.ShopSettlement{}, "", domain.ErrInvalidMonth
	}

	unlock, err := s.locks.Lock(ctx, shopID)
	if err != nil {
		return domain.ShopSettlement{}, "", err
	}
	defer unlock()
	return s.generateLocked(ctx, shopID, month, now)
}

// generateLocked вызывается под блокировкой магазина.
func (s *Service) generateLocked(ctx context.Context, shopID string, month domain.Month, now time.Time) (domain.ShopSettlement, string, error) {
	existing, err := s.settlements.GetByShopMonth(ctx, shopID, month)
	found := err == nil
	switch {
	case found && existing.Frozen():
		return s.finish(ctx, existing, metrics.OutcomeFrozen)
	case !found && !errors.Is(err, domain.ErrSettlementNotFound):
		return domain.ShopSettlement{}, "", err
	}

	cutoff := month.CutoffAt(now)
	txs, err := s.transactions.List(ctx, domain.TransactionFilter{
		ShopID: shopID,
		Status: domain.TransactionStatusCompleted,
		From:   month.Start(),
		Before: cutoff,
	})
	if err != nil {
		return domain.ShopSettlement{}, "", fmt.Errorf("list transactions: %w", err)
	}
	amount := domain.SumTotals(txs)

	if !found {
		st := domain.ShopSettlement{
			ID:          uuid.NewString(),
			ShopID:      shopID,
			Month:       month,
			AmountMinor: amount,
			Status:      domain.SettlementStatusPending,
			CutoffAt:    cutoff,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.settlements.Create(ctx, st); err != nil {
			return domain.ShopSettlement{}, "", fmt.Errorf("create settlement: %w", err)
		}
		return s.finish(ctx, st, metrics.OutcomeCreated)
	}

	if existing.AmountMinor == amount && existing.CutoffAt.Equal(cutoff) {
		return s.finish(ctx, existing, metrics.OutcomeUnchanged)
	}
	outcome := metrics.OutcomeUnchanged
	if existing.AmountMinor != amount {
		outcome = metrics.OutcomeUpdated
	}
	existing.AmountMinor = amount
	existing.CutoffAt = cutoff
	existing.UpdatedAt = now
	saved, err := s.settlements.Save(ctx, existing)
	if err != nil {
		return domain.ShopSettlement{}, "", fmt.Errorf("save settlement: %w", err)
	}
	return s.finish(ctx, saved, outcome)
}

func (s *Service) finish(ctx context.Context, st domain.ShopSettlement, outcome string) (domain.ShopSettlement, string, error) {
	if s.metrics != nil {
		s.metrics.RecordSettlement(outcome)
	}
	switch outcome {
	case metrics.OutcomeCreated:
		s.enqueue(ctx, st, EventSettlementGenerated)
	case metrics.OutcomeUpdated:
		s.enqueue(ctx, st, EventSettlementUpdated)
	}
	s.logger.WithFields(log.Fields{
		"shop_id":      st.ShopID,
		"month":        st.Month.String(),
		"outcome":      outcome,
		"amount_minor": st.AmountMinor,
	}).Debug("settlement generated")
	return st, outcome, nil
}

// MarkSettled проводит выплату. Повторный вызов возвращает ErrAlreadySettled, SettledAt не меняется.
// Пока месяц открыт, выплата не проводится (ErrSettlementMonthOpen); после конца месяца
// сумма, посчитанная в середине месяца, сначала пересчитывается.
func (s *Service) MarkSettled(ctx context.Context, settlementID string) (domain.ShopSettlement, error) {
	ctx, span := s.tracer.Start(ctx, "settlement.MarkSettled", trace.WithAttributes(attribute.String("settlement_id", settlementID)))
	defer span.End()

	st, err := s.settlements.Get(ctx, settlementID)
	if err != nil {
		return domain.ShopSettlement{}, err
	}

	unlock, err := s.locks.Lock(ctx, st.ShopID)
	if err != nil {
		return domain.ShopSettlement{}, err
	}
	defer unlock()

	st, err = s.settlements.Get(ctx, settlementID)
	if err != nil {
		return domain.ShopSettlement{}, err
	}
	now := s.now()
	if st.Status == domain.SettlementStatusPending && !st.Closed() && st.Month.Closed(now) {
		if st, _, err = s.generateLocked(ctx, st.ShopID, st.Month, now); err != nil {
			return domain.ShopSettlement{}, fmt.Errorf("refresh settlement: %w", err)
		}
	}
	if err := st.MarkSettled(now); err != nil {
		return st, err
	}
	saved, err := s.settlements.Save(ctx, st)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.ShopSettlement{}, fmt.Errorf("save settlement: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordSettled()
	}
	s.enqueue(ctx, saved, EventSettlementSettled)
	s.logger.WithFields(log.Fields{
		"settlement_id": saved.ID,
		"shop_id":       saved.ShopID,
		"amount_minor":  saved.AmountMinor,
	}).Info("settlement marked settled")
	return saved, nil
}

// GenerateAll формирует выплаты за месяц всем одобренным магазинам.
func (s *Service) GenerateAll(ctx context.Context, month domain.Month) (Summary, error) {
	ctx, span := s.tracer.Start(ctx, "settlement.GenerateAll", trace.WithAttributes(attribute.String("month", month.String())))
	defer span.End()

	summary := Summary{Month: month}
	shops, err := s.directory.SearchShops(ctx, domain.DirectoryQuery{Status: domain.ApprovalStatusApproved})
	if err != nil {
		return summary, fmt.Errorf("list shops: %w", err)
	}
	for _, shop := range shops {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		_, outcome, err := s.generate(ctx, shop.ID, month)
		if err != nil {
			s.logger.WithError(err).WithField("shop_id", shop.ID).Warn("settlement generation failed")
			summary.Failed++
			continue
		}
		switch outcome {
		case metrics.OutcomeCreated:
			summary.Created++
		case metrics.OutcomeUpdated:
			summary.Updated++
		case metrics.OutcomeFrozen:
			summary.Frozen++
		default:
			summary.Unchanged++
		}
	}
	span.SetAttributes(attribute.Int("created", summary.Created), attribute.Int("failed", summary.Failed))
	return summary, nil
}

// Get возвращает выплату.
func (s *Service) Get(ctx context.Context, id string) (domain.ShopSettlement, error) {
	return s.settlements.Get(ctx, id)
}

// List возвращает выплаты по фильтру.
func (s *Service) List(ctx context.Context, filter domain.SettlementFilter) ([]domain.ShopSettlement, error) {
	return s.settlements.List(ctx, filter)
}

func (s *Service) enqueue(ctx context.Context, st domain.ShopSettlement, eventType string) {
	if s.outbox == nil {
		return
	}
	body := map[string]any{
		"settlement_id": st.ID,
		"shop_id":       st.ShopID,
		"month":         st.Month.String(),
		"amount_minor":  st.AmountMinor,
		"status":        st.Status,
	}
	if !st.SettledAt.IsZero() {
		body["settled_at"] = st.SettledAt.Format(time.RFC3339)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		s.logger.WithError(err).WithField("event", eventType).Error("marshal event failed")
		return
	}
	msg := domain.OutboxMessage{
		AggregateType: domain.AggregateSettlement,
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
