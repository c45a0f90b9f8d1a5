package credit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
	"github.com/vladislavdragonenkov/creditmarket/internal/metrics"
)

// Service — единственный владелец изменений кредитных счетов.
// Все reserve/release по одному клиенту сериализуются KeyedMutex внутри процесса,
// а optimistic version в хранилище защищает от параллельных процессов.
type Service struct {
	accounts domain.AccountRepository
	ledger   domain.LedgerRepository
	outbox   domain.OutboxRepository
	locks    *KeyedMutex
	retry    RetryConfig
	metrics  *metrics.CheckoutMetrics
	logger   *log.Entry
	now      func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) { s.logger = logger }
}

// WithLedger включает журнал движений кредита.
func WithLedger(ledger domain.LedgerRepository) Option {
	return func(s *Service) { s.ledger = ledger }
}

// WithOutbox включает публикацию событий счёта через outbox.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(s *Service) { s.outbox = outbox }
}

// WithMetrics задаёт метрики; nil отключает.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithRetryConfig задаёт политику повторов при конфликте версий.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(s *Service) { s.retry = cfg }
}

// WithClock подменяет часы (тесты).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService создаёт сервис кредитных счетов.
func NewService(accounts domain.AccountRepository, opts ...Option) *Service {
	s := &Service{
		accounts: accounts,
		locks:    NewKeyedMutex(),
		retry:    DefaultRetryConfig(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "credit")
	}
	return s
}

// Open открывает счёт при одобрении клиента.
func (s *Service) Open(ctx context.Context, customerID string, limitMinor int64) (domain.CreditAccount, error) {
	account, err := domain.NewCreditAccount(customerID, limitMinor, s.now())
	if err != nil {
		return domain.CreditAccount{}, err
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return domain.CreditAccount{}, err
	}

	s.logger.WithFields(log.Fields{
		"customer_id": customerID,
		"limit_minor": limitMinor,
	}).Info("credit account opened")
	s.record(ctx, account, domain.LedgerEventCreditOpened, limitMinor, "", "")
	return account, nil
}

// Get возвращает счёт, проверив инвариант.
func (s *Service) Get(ctx context.Context, customerID string) (domain.CreditAccount, error) {
	account, err := s.accounts.Get(ctx, customerID)
	if err != nil {
		return domain.CreditAccount{}, err
	}
	if err := s.verify(account); err != nil {
		return domain.CreditAccount{}, err
	}
	return account, nil
}

// CanAfford отвечает на вопрос "хватит ли лимита прямо сейчас" без блокировки и побочных эффектов.
func (s *Service) CanAfford(ctx context.Context, customerID string, amountMinor int64) (bool, domain.CreditAccount, error) {
	account, err := s.Get(ctx, customerID)
	if err != nil {
		return false, domain.CreditAccount{}, err
	}
	return account.CanAfford(amountMinor), account, nil
}

// History возвращает журнал движений по счёту.
func (s *Service) History(ctx context.Context, customerID string) ([]domain.LedgerEvent, error) {
	if s.ledger == nil {
		return nil, nil
	}
	return s.ledger.List(ctx, customerID)
}

// WithAccount выполняет fn в критической секции счёта. Между проверкой лимита и резервом
// внутри fn никто другой в этом процессе не может изменить тот же счёт.
func (s *Service) WithAccount(ctx context.Context, customerID string, fn func(tx *AccountTx) error) (domain.CreditAccount, error) {
	unlock, err := s.locks.Lock(ctx, customerID)
	if err != nil {
		return domain.CreditAccount{}, err
	}
	defer unlock()

	account, err := s.Get(ctx, customerID)
	if err != nil {
		return domain.CreditAccount{}, err
	}

	tx := &AccountTx{svc: s, ctx: ctx, account: account}
	if err := fn(tx); err != nil {
		return tx.account, err
	}
	return tx.account, nil
}

// Reserve — отдельный резерв вне оформления (тесты, админские корректировки).
func (s *Service) Reserve(ctx context.Context, customerID string, amountMinor int64, reference string) (domain.CreditAccount, error) {
	return s.WithAccount(ctx, customerID, func(tx *AccountTx) error {
		return tx.Reserve(amountMinor, reference)
	})
}

// Release возвращает ёмкость счёта на amount (с полом в ноль).
func (s *Service) Release(ctx context.Context, customerID string, amountMinor int64, reference, reason string) (domain.CreditAccount, error) {
	return s.WithAccount(ctx, customerID, func(tx *AccountTx) error {
		_, err := tx.Release(amountMinor, reference, reason)
		return err
	})
}

// SetLimit меняет кредитный лимит.
func (s *Service) SetLimit(ctx context.Context, customerID string, limitMinor int64) (domain.CreditAccount, error) {
	return s.WithAccount(ctx, customerID, func(tx *AccountTx) error {
		return tx.mutate(func(acc *domain.CreditAccount) error {
			return acc.SetLimit(limitMinor)
		}, domain.LedgerEventCreditLimitChanged, limitMinor, "", "")
	})
}

// verify логирует нарушение инварианта как ошибку уровня Error: это баг, а не пользовательская ситуация.
func (s *Service) verify(account domain.CreditAccount) error {
	if err := account.CheckInvariant(); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"customer_id":     account.CustomerID,
			"limit_minor":     account.CreditLimitMinor,
			"used_minor":      account.CreditUsedMinor,
			"available_minor": account.CreditAvailableMinor,
			"version":         account.Version,
		}).Error("credit account invariant violated")
		return err
	}
	return nil
}

func (s *Service) record(ctx context.Context, account domain.CreditAccount, eventType string, amountMinor int64, reference, reason string) {
	now := s.now()
	if s.ledger != nil {
		event := domain.LedgerEvent{
			CustomerID:  account.CustomerID,
			Type:        eventType,
			AmountMinor: amountMinor,
			Reference:   reference,
			Reason:      reason,
			Occurred:    now,
		}
		if err := s.ledger.Append(ctx, event); err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"customer_id": account.CustomerID,
				"event":       eventType,
			}).Warn("append ledger event failed")
		} else if s.metrics != nil {
			s.metrics.RecordLedgerEvent()
		}
	}

	if s.outbox == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"customer_id":     account.CustomerID,
		"amount_minor":    amountMinor,
		"reference":       reference,
		"reason":          reason,
		"limit_minor":     account.CreditLimitMinor,
		"used_minor":      account.CreditUsedMinor,
		"available_minor": account.CreditAvailableMinor,
		"ts":              now.Format(time.RFC3339Nano),
	})
	if err != nil {
		s.logger.WithError(err).WithField("event", eventType).Error("marshal event failed")
		return
	}
	msg := domain.OutboxMessage{
		AggregateType: domain.AggregateAccount,
		AggregateID:   account.CustomerID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     now,
	}
	if _, err := s.outbox.Enqueue(ctx, msg); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"customer_id": account.CustomerID,
			"event":       eventType,
		}).Error("enqueue event failed")
	} else if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}
}

// AccountTx — счёт внутри критической секции WithAccount.
type AccountTx struct {
	svc     *Service
	ctx     context.Context
	account domain.CreditAccount
}

// Account возвращает актуальный снимок счёта.
func (t *AccountTx) Account() domain.CreditAccount {
	return t.account
}

// CanAfford проверяет лимит по снимку, взятому под блокировкой.
func (t *AccountTx) CanAfford(amountMinor int64) bool {
	return t.account.CanAfford(amountMinor)
}

// Reserve увеличивает использованный кредит и сохраняет счёт.
func (t *AccountTx) Reserve(amountMinor int64, reference string) error {
	err := t.mutate(func(acc *domain.CreditAccount) error {
		return acc.Reserve(amountMinor)
	}, domain.LedgerEventCreditReserved, amountMinor, reference, "")
	if err == nil && t.svc.metrics != nil {
		t.svc.metrics.RecordCreditReserved(amountMinor)
	}
	return err
}

// Release уменьшает использованный кредит и возвращает фактически освобождённую сумму.
func (t *AccountTx) Release(amountMinor int64, reference, reason string) (int64, error) {
	var released int64
	err := t.mutate(func(acc *domain.CreditAccount) error {
		released = acc.Release(amountMinor)
		return nil
	}, domain.LedgerEventCreditReleased, amountMinor, reference, reason)
	if err != nil {
		return 0, err
	}
	if t.svc.metrics != nil {
		t.svc.metrics.RecordCreditReleased(released)
	}
	return released, nil
}

// mutate применяет изменение и сохраняет счёт. При конфликте версий (запись другим процессом)
// перечитывает счёт и применяет изменение заново, включая проверку лимита.
func (t *AccountTx) mutate(change func(acc *domain.CreditAccount) error, eventType string, amountMinor int64, reference, reason string) error {
	s := t.svc
	err := RetryOnConflict(t.ctx, s.retry, s.logger, t.account.CustomerID, func() error {
		next := t.account
		if err := change(&next); err != nil {
			return err
		}
		if err := s.verify(next); err != nil {
			return err
		}
		saved, err := s.accounts.Save(t.ctx, next)
		if err == nil {
			t.account = saved
			return nil
		}
		if domain.IsVersionConflict(err) {
			fresh, loadErr := s.Get(t.ctx, t.account.CustomerID)
			if loadErr != nil {
				return fmt.Errorf("reload after conflict: %w", loadErr)
			}
			t.account = fresh
		}
		return err
	})
	if err != nil {
		if !errors.Is(err, domain.ErrInsufficientCredit) {
			s.logger.WithError(err).WithFields(log.Fields{
				"customer_id": t.account.CustomerID,
				"event":       eventType,
			}).Warn("credit account update failed")
		}
		return err
	}

	s.record(t.ctx, t.account, eventType, amountMinor, reference, reason)
	return nil
}
