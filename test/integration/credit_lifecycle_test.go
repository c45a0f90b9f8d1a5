package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
	"github.com/vladislavdragonenkov/creditmarket/internal/metrics"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/billing"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/cart"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/checkout"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/credit"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/directory"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/outbox"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/settlement"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/statement"
	"github.com/vladislavdragonenkov/creditmarket/internal/storage/memory"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// recordingPublisher запоминает всё, что outbox worker отправил наружу.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OutboxMessage
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) eventTypes() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int, len(p.events))
	for _, e := range p.events {
		out[e.EventType]++
	}
	return out
}

// CreditLifecycleTestSuite проходит полный цикл: покупка в кредит, закрытие месяца,
// оплата выписки, выплата магазину и доставка событий через outbox.
type CreditLifecycleTestSuite struct {
	suite.Suite
	clock       *testClock
	credit      *credit.Service
	carts       *cart.Service
	checkout    *checkout.Service
	statements  *statement.Service
	settlements *settlement.Service
	billing     *billing.Worker
	outbox      *outbox.Worker
	published   *recordingPublisher
}

func (s *CreditLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Уменьшаем шум в тестах
	logger := baseLogger.WithField("component", "integration-test")

	s.clock = &testClock{now: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
	now := s.clock.Now
	registry := prometheus.NewRegistry()
	workerMetrics := metrics.NewWorkerMetricsWithRegisterer(registry)

	accounts := memory.NewAccountRepository()
	transactions := memory.NewTransactionRepository()
	directoryRepo := memory.NewDirectoryRepository()
	catalog := memory.NewCatalogRepository()
	ledger := memory.NewLedgerRepository()
	outboxRepo := memory.NewOutboxRepository()

	s.credit = credit.NewService(accounts,
		credit.WithLedger(ledger), credit.WithOutbox(outboxRepo), credit.WithClock(now), credit.WithLogger(logger))
	dir := directory.NewService(directoryRepo, catalog, directory.WithClock(now), directory.WithLogger(logger))
	s.carts = cart.NewService(memory.NewCartRepository(), catalog, directoryRepo, s.credit, logger)
	s.checkout = checkout.NewService(s.carts, s.credit, transactions,
		checkout.WithLedger(ledger), checkout.WithOutbox(outboxRepo), checkout.WithClock(now), checkout.WithLogger(logger))
	s.statements = statement.NewService(memory.NewStatementRepository(), transactions, accounts, s.credit,
		statement.WithLedger(ledger), statement.WithOutbox(outboxRepo), statement.WithClock(now), statement.WithLogger(logger))
	s.settlements = settlement.NewService(memory.NewSettlementRepository(), transactions, directoryRepo,
		settlement.WithOutbox(outboxRepo), settlement.WithClock(now), settlement.WithLogger(logger))
	s.billing = billing.NewWorker(s.statements, s.settlements,
		billing.WithClock(now), billing.WithMetrics(workerMetrics), billing.WithLogger(logger))

	s.published = &recordingPublisher{}
	s.outbox = outbox.NewWorker(outboxRepo, s.published,
		outbox.WithClock(now), outbox.WithMetrics(workerMetrics), outbox.WithLogger(logger), outbox.WithBatchSize(100))

	seed := directory.Seed{
		Customers: []directory.SeedCustomer{
			{ID: "cust-1", Name: "Asha", Status: "approved", CreditLimitMinor: 500000},
		},
		Shops: []directory.SeedShop{
			{ID: "shop-1", ShopName: "Kirana One", OwnerName: "Vijay", Status: "approved"},
		},
		Products: []directory.SeedProduct{
			{ID: "rice", ShopID: "shop-1", Name: "Rice", PriceMinor: 120000},
			{ID: "oil", ShopID: "shop-1", Name: "Oil", PriceMinor: 30000},
		},
	}
	require.NoError(s.T(), dir.ApplySeed(context.Background(), seed, s.credit))
}

func (s *CreditLifecycleTestSuite) TestPurchaseStatementPaymentAndSettlement() {
	ctx := context.Background()
	t := s.T()

	// 1. Покупка в кредит
	_, err := s.carts.AddItem(ctx, "cust-1", "rice", 2)
	require.NoError(t, err)
	_, err = s.carts.AddItem(ctx, "cust-1", "oil", 1)
	require.NoError(t, err)

	receipt, err := s.checkout.Checkout(ctx, "cust-1")
	require.NoError(t, err)
	require.Equal(t, int64(270000), receipt.TotalMinor)
	require.Equal(t, int64(230000), receipt.Account.CreditAvailableMinor)

	// 2. Закрытие марта после наступления апреля
	s.clock.Set(time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC))
	result, err := s.billing.RunOnce(ctx, domain.Month{Year: 2024, Month: time.March})
	require.NoError(t, err)
	require.Zero(t, result.Failed())
	require.Equal(t, 1, result.Statements.Created)
	require.Equal(t, 1, result.Settlements.Created)

	stmts, err := s.statements.List(ctx, domain.StatementFilter{CustomerID: "cust-1"})
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	require.Equal(t, int64(270000), stmts[0].TotalDueMinor)
	require.Equal(t, domain.PaymentStatusPending, stmts[0].PaymentStatus)

	// 3. Оплата выписки возвращает доступный кредит
	paid, account, err := s.statements.RecordPayment(ctx, stmts[0].ID, 270000)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPaid, paid.PaymentStatus)
	require.Zero(t, account.CreditUsedMinor)
	require.Equal(t, int64(500000), account.CreditAvailableMinor)

	// 4. Выплата магазину проводится один раз
	sets, err := s.settlements.List(ctx, domain.SettlementFilter{ShopID: "shop-1"})
	require.NoError(t, err)
	require.Len(t, sets, 1)
	require.Equal(t, int64(270000), sets[0].AmountMinor)

	settled, err := s.settlements.MarkSettled(ctx, sets[0].ID)
	require.NoError(t, err)
	require.Equal(t, domain.SettlementStatusSettled, settled.Status)
	_, err = s.settlements.MarkSettled(ctx, sets[0].ID)
	require.Error(t, err)

	// 5. Повторное закрытие месяца ничего не меняет
	again, err := s.billing.RunOnce(ctx, domain.Month{Year: 2024, Month: time.March})
	require.NoError(t, err)
	require.Zero(t, again.Statements.Created)
	require.Zero(t, again.Settlements.Created)

	// 6. Все события доставлены через outbox
	for s.outbox.ProcessOnce(ctx) > 0 {
	}
	types := s.published.eventTypes()
	require.Equal(t, 1, types[checkout.EventCheckoutCompleted])
	require.Equal(t, 1, types[statement.EventStatementGenerated])
	require.Equal(t, 1, types[statement.EventPaymentRecorded])
	require.Equal(t, 1, types[settlement.EventSettlementGenerated])
	require.Equal(t, 1, types[settlement.EventSettlementSettled])
}

func (s *CreditLifecycleTestSuite) TestOverLimitCheckoutKeepsCart() {
	ctx := context.Background()
	t := s.T()

	_, err := s.carts.AddItem(ctx, "cust-1", "rice", 5)
	require.NoError(t, err)

	_, err = s.checkout.Checkout(ctx, "cust-1")
	var insufficient *domain.InsufficientCreditError
	require.True(t, errors.As(err, &insufficient), "got %v", err)

	current, err := s.carts.Get(ctx, "cust-1")
	require.NoError(t, err)
	require.Len(t, current.Lines, 1)

	account, err := s.credit.Get(ctx, "cust-1")
	require.NoError(t, err)
	require.Zero(t, account.CreditUsedMinor)
}

func (s *CreditLifecycleTestSuite) TestConcurrentReservationsNeverOverspend() {
	ctx := context.Background()
	t := s.T()

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.credit.Reserve(ctx, "cust-1", 100000, "load"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 5, succeeded)
	account, err := s.credit.Get(ctx, "cust-1")
	require.NoError(t, err)
	require.Equal(t, int64(500000), account.CreditUsedMinor)
	require.Zero(t, account.CreditAvailableMinor)
}

func TestCreditLifecycleTestSuite(t *testing.T) {
	suite.Run(t, new(CreditLifecycleTestSuite))
}
