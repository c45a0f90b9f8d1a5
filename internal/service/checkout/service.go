package checkout

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
	"github.com/vladislavdragonenkov/creditmarket/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/creditmarket/internal/metrics"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/cart"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/credit"
)

// Типы outbox-событий оформления.
const (
	EventCheckoutCompleted    = "CheckoutCompleted"
	EventTransactionCompleted = "TransactionCompleted"
	EventTransactionFailed    = "TransactionFailed"
)

// Receipt — результат оформления: по транзакции на магазин под одним резервом.
type Receipt struct {
	CheckoutID   string
	Transactions []domain.Transaction
	TotalMinor   int64
	Account      domain.CreditAccount
	// Replayed — транзакции уже были созданы предыдущей попыткой с тем же токеном.
	Replayed bool
}

// Service проводит корзину через Idle → Validating → Approved | Rejected.
type Service struct {
	carts        *cart.Service
	credit       *credit.Service
	transactions domain.TransactionRepository
	outbox       domain.OutboxRepository
	ledger       domain.LedgerRepository
	events       kafka.EventPublisher
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

func WithLedger(ledger domain.LedgerRepository) Option {
	return func(s *Service) { s.ledger = ledger }
}

// WithEventPublisher включает публикацию стадий оформления в Kafka.
func WithEventPublisher(p kafka.EventPublisher) Option {
	return func(s *Service) { s.events = p }
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

// NewService создаёт сервис оформления.
func NewService(carts *cart.Service, creditSvc *credit.Service, transactions domain.TransactionRepository, opts ...Option) *Service {
	s := &Service{
		carts:        carts,
		credit:       creditSvc,
		transactions: transactions,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "checkout")
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("creditmarket/checkout")
	}
	return s
}

// Checkout оформляет корзину клиента в кредит. Повторный вызов после частичного сбоя
// (транзакции сохранены, корзина не очищена) возвращает прежний чек без второго резерва.
func (s *Service) Checkout(ctx context.Context, customerID string) (receipt Receipt, err error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Checkout", trace.WithAttributes(attribute.String("customer_id", customerID)))
	defer span.End()

	start := time.Now()
	stage := domain.CheckoutStageIdle
	result := metrics.ResultFailed
	if s.metrics != nil {
		s.metrics.CheckoutInFlight(1)
	}
	defer func() {
		if s.metrics != nil {
			s.metrics.CheckoutInFlight(-1)
			s.metrics.RecordCheckout(result)
			s.metrics.RecordCheckoutDuration(time.Since(start))
		}
		span.SetAttributes(attribute.String("checkout.stage", string(stage)), attribute.String("checkout.result", result))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	unlockCart, err := s.carts.Lock(ctx, customerID)
	if err != nil {
		return Receipt{}, err
	}
	defer unlockCart()

	stageStart := time.Now()
	stage = domain.CheckoutStageValidating
	c, err := s.carts.Get(ctx, customerID)
	if err != nil {
		return Receipt{}, err
	}
	if c.IsEmpty() {
		result = metrics.ResultRejected
		stage = domain.CheckoutStageRejected
		return Receipt{}, domain.ErrEmptyCart
	}
	span.SetAttributes(attribute.String("checkout_id", c.ID), attribute.Int64("subtotal_minor", c.Subtotal()))

	if prev, ok, err := s.previousAttempt(ctx, c.ID); err != nil {
		return Receipt{}, err
	} else if ok {
		result = metrics.ResultReplayed
		stage = domain.CheckoutStageApproved
		return s.replay(ctx, c, prev)
	}

	s.publish(kafka.EventTypeCheckoutStarted, c, nil)

	var txs []domain.Transaction
	account, err := s.credit.WithAccount(ctx, customerID, func(acc *credit.AccountTx) error {
		subtotal := c.Subtotal()
		if !acc.CanAfford(subtotal) {
			return &domain.InsufficientCreditError{RequestedMinor: subtotal, AvailableMinor: acc.Account().CreditAvailableMinor}
		}
		if err := acc.Reserve(subtotal, c.ID); err != nil {
			return err
		}
		persisted, err := s.persist(ctx, acc, c)
		txs = persisted
		return err
	})
	s.observeStage(domain.CheckoutStageValidating, stageStart)

	if err != nil {
		var insufficient *domain.InsufficientCreditError
		if errors.As(err, &insufficient) {
			result = metrics.ResultRejected
			stage = domain.CheckoutStageRejected
			s.reject(ctx, c, insufficient)
			return Receipt{Account: account}, err
		}
		s.logger.WithError(err).WithFields(log.Fields{
			"customer_id": customerID,
			"checkout_id": c.ID,
		}).Error("checkout failed")
		s.publish(kafka.EventTypeCheckoutFailed, c, map[string]any{"error": err.Error()})
		if len(txs) > 0 {
			// часть магазинов проведена: оставшиеся позиции остаются в корзине под новым токеном
			s.keepUnpaidLines(ctx, c, txs)
		}
		return Receipt{Account: account}, err
	}

	stage = domain.CheckoutStageApproved
	result = metrics.ResultApproved
	receipt = Receipt{CheckoutID: c.ID, Transactions: txs, TotalMinor: domain.SumTotals(txs), Account: account}

	checkedOut := c
	c.Clear()
	if err := s.carts.Save(ctx, c); err != nil {
		// транзакции сохранены: следующая попытка с тем же токеном вернёт этот же чек
		s.logger.WithError(err).WithField("customer_id", customerID).Warn("clear cart after checkout failed")
	}

	s.enqueue(ctx, domain.AggregateTransaction, receipt.CheckoutID, EventCheckoutCompleted, map[string]any{
		"checkout_id":  receipt.CheckoutID,
		"customer_id":  customerID,
		"total_minor":  receipt.TotalMinor,
		"transactions": len(txs),
	})
	s.publish(kafka.EventTypeCheckoutApproved, checkedOut, map[string]any{
		"total_minor": receipt.TotalMinor,
		"shops":       len(txs),
	})
	s.logger.WithFields(log.Fields{
		"customer_id":     customerID,
		"checkout_id":     receipt.CheckoutID,
		"total_minor":     receipt.TotalMinor,
		"available_minor": account.CreditAvailableMinor,
	}).Info("checkout approved")
	return receipt, nil
}

// persist создаёт транзакции в статусе pending и затем проводит их.
// При сбое непроведённые помечаются failed, а их сумма возвращается на счёт в той же критической секции.
func (s *Service) persist(ctx context.Context, acc *credit.AccountTx, c domain.Cart) ([]domain.Transaction, error) {
	now := s.now()
	grouped := c.LinesByShop()
	pending := make([]domain.Transaction, 0, len(grouped))
	for _, shopID := range c.Shops() {
		tx := domain.NewTransaction(uuid.NewString(), c.ID, c.CustomerID, shopID, grouped[shopID], domain.TransactionStatusPending, now)
		if errs := tx.ValidateInvariants(); len(errs) > 0 {
			return nil, s.compensate(ctx, acc, c, pending, nil, errors.Join(errs...))
		}
		if err := s.transactions.Create(ctx, tx); err != nil {
			return nil, s.compensate(ctx, acc, c, pending, nil, fmt.Errorf("create transaction: %w", err))
		}
		pending = append(pending, tx)
	}

	completed := make([]domain.Transaction, 0, len(pending))
	for i, tx := range pending {
		if err := s.transactions.UpdateStatus(ctx, tx.ID, domain.TransactionStatusCompleted); err != nil {
			return completed, s.compensate(ctx, acc, c, pending[i:], completed, fmt.Errorf("complete transaction: %w", err))
		}
		if err := tx.TransitionTo(domain.TransactionStatusCompleted, s.now()); err != nil {
			return completed, err
		}
		completed = append(completed, tx)
		s.enqueue(ctx, domain.AggregateTransaction, tx.ID, EventTransactionCompleted, map[string]any{
			"transaction_id": tx.ID,
			"checkout_id":    tx.CheckoutID,
			"customer_id":    tx.CustomerID,
			"shop_id":        tx.ShopID,
			"amount_minor":   tx.TotalAmountMinor,
		})
	}
	return completed, nil
}

func (s *Service) compensate(ctx context.Context, acc *credit.AccountTx, c domain.Cart, failed, completed []domain.Transaction, cause error) error {
	refund := c.Subtotal() - domain.SumTotals(completed)
	for _, tx := range failed {
		if err := s.transactions.UpdateStatus(ctx, tx.ID, domain.TransactionStatusFailed); err != nil {
			s.logger.WithError(err).WithField("transaction_id", tx.ID).Error("mark transaction failed")
			continue
		}
		s.enqueue(ctx, domain.AggregateTransaction, tx.ID, EventTransactionFailed, map[string]any{
			"transaction_id": tx.ID,
			"checkout_id":    tx.CheckoutID,
			"reason":         cause.Error(),
		})
	}
	if _, err := acc.Release(refund, c.ID, "checkout compensation"); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"customer_id":  c.CustomerID,
			"checkout_id":  c.ID,
			"refund_minor": refund,
		}).Error("checkout compensation failed")
		return errors.Join(cause, err)
	}
	return cause
}

func (s *Service) previousAttempt(ctx context.Context, checkoutID string) ([]domain.Transaction, bool, error) {
	existing, err := s.transactions.ListByCheckout(ctx, checkoutID)
	if err != nil {
		return nil, false, err
	}
	var completed []domain.Transaction
	for _, tx := range existing {
		if tx.Status == domain.TransactionStatusCompleted {
			completed = append(completed, tx)
		}
	}
	return completed, len(completed) > 0, nil
}

func (s *Service) replay(ctx context.Context, c domain.Cart, txs []domain.Transaction) (Receipt, error) {
	account, err := s.credit.Get(ctx, c.CustomerID)
	if err != nil {
		return Receipt{}, err
	}
	checkoutID := c.ID
	s.publish(kafka.EventTypeCheckoutReplayed, c, nil)
	c.Clear()
	if err := s.carts.Save(ctx, c); err != nil {
		return Receipt{}, err
	}
	s.logger.WithFields(log.Fields{
		"customer_id": c.CustomerID,
		"checkout_id": checkoutID,
	}).Info("checkout replayed from persisted transactions")
	return Receipt{
		CheckoutID:   checkoutID,
		Transactions: txs,
		TotalMinor:   domain.SumTotals(txs),
		Account:      account,
		Replayed:     true,
	}, nil
}

func (s *Service) reject(ctx context.Context, c domain.Cart, cause *domain.InsufficientCreditError) {
	s.logger.WithFields(log.Fields{
		"customer_id":     c.CustomerID,
		"checkout_id":     c.ID,
		"requested_minor": cause.RequestedMinor,
		"available_minor": cause.AvailableMinor,
		"shortfall_minor": cause.ShortfallMinor(),
	}).Info("checkout rejected: insufficient credit")

	if s.ledger != nil {
		event := domain.LedgerEvent{
			CustomerID:  c.CustomerID,
			Type:        domain.LedgerEventCheckoutRejected,
			AmountMinor: cause.RequestedMinor,
			Reference:   c.ID,
			Reason:      cause.Error(),
			Occurred:    s.now(),
		}
		if err := s.ledger.Append(ctx, event); err != nil {
			s.logger.WithError(err).Warn("append ledger event failed")
		}
	}
	s.publish(kafka.EventTypeCheckoutRejected, c, map[string]any{"shortfall_minor": cause.ShortfallMinor()})
}

func (s *Service) keepUnpaidLines(ctx context.Context, c domain.Cart, paid []domain.Transaction) {
	for _, tx := range paid {
		for _, line := range tx.Lines {
			c.RemoveItem(line.ProductID)
		}
	}
	rest := c.Lines
	c.Clear()
	c.Lines = rest
	if err := s.carts.Save(ctx, c); err != nil {
		s.logger.WithError(err).WithField("customer_id", c.CustomerID).Error("save remaining cart lines failed")
	}
}

func (s *Service) enqueue(ctx context.Context, aggregateType, aggregateID, eventType string, payload map[string]any) {
	if s.outbox == nil {
		return
	}
	payload["ts"] = s.now().Format(time.RFC3339Nano)
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).WithField("event", eventType).Error("marshal event failed")
		return
	}
	msg := domain.OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
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

// publish отправляет событие стадии в Kafka. Ошибки не влияют на оформление.
func (s *Service) publish(eventType kafka.EventType, c domain.Cart, metadata map[string]any) {
	if s.events == nil {
		return
	}
	event := kafka.NewCheckoutEvent(eventType, c.ID, c.CustomerID, c.Subtotal(), metadata)
	if err := s.events.PublishEvent(kafka.TopicCheckoutEvents, c.CustomerID, event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"checkout_id": c.ID,
			"event_type":  eventType,
		}).Warn("publish checkout event failed")
	}
}

func (s *Service) observeStage(stage domain.CheckoutStage, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordStageDuration(string(stage), time.Since(start))
	}
}
