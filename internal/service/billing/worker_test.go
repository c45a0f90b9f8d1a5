package billing_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
	"github.com/vladislavdragonenkov/creditmarket/internal/metrics"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/billing"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/credit"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/settlement"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/statement"
	"github.com/vladislavdragonenkov/creditmarket/internal/storage/memory"
)

var march = domain.Month{Year: 2024, Month: time.March}

type env struct {
	ctx          context.Context
	now          time.Time
	statements   domain.StatementRepository
	settlements  domain.SettlementRepository
	transactions domain.TransactionRepository
	credit       *credit.Service
	worker       *billing.Worker
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		ctx:          context.Background(),
		now:          time.Date(2024, 4, 1, 0, 30, 0, 0, time.UTC),
		statements:   memory.NewStatementRepository(),
		settlements:  memory.NewSettlementRepository(),
		transactions: memory.NewTransactionRepository(),
	}
	clock := func() time.Time { return e.now }
	logger := log.NewEntry(log.New())

	accounts := memory.NewAccountRepository()
	directory := memory.NewDirectoryRepository()
	require.NoError(t, directory.UpsertShop(e.ctx, domain.Shop{ID: "shop-1", ShopName: "Kirana", Status: domain.ApprovalStatusApproved}))

	e.credit = credit.NewService(accounts, credit.WithClock(clock), credit.WithLogger(logger))
	_, err := e.credit.Open(e.ctx, "cust-1", 5000000)
	require.NoError(t, err)
	_, err = e.credit.Open(e.ctx, "cust-2", 5000000)
	require.NoError(t, err)

	stmts := statement.NewService(e.statements, e.transactions, accounts, e.credit,
		statement.WithClock(clock), statement.WithLogger(logger))
	setts := settlement.NewService(e.settlements, e.transactions, directory,
		settlement.WithClock(clock), settlement.WithLogger(logger))

	e.worker = billing.NewWorker(stmts, setts,
		billing.WithClock(clock),
		billing.WithLogger(logger),
		billing.WithInterval(5*time.Millisecond),
		billing.WithMetrics(metrics.NewWorkerMetricsWithRegisterer(prometheus.NewRegistry())),
	)
	return e
}

func (e *env) sale(t *testing.T, id, customerID string, amountMinor int64, at time.Time) {
	t.Helper()
	_, err := e.credit.Reserve(e.ctx, customerID, amountMinor, "checkout-"+id)
	require.NoError(t, err)
	tx := domain.NewTransaction(id, "checkout-"+id, customerID, "shop-1",
		[]domain.CartLine{{ProductID: "p", ShopID: "shop-1", ProductName: "rice", UnitPriceMinor: amountMinor, Qty: 1}},
		domain.TransactionStatusCompleted, at)
	require.NoError(t, e.transactions.Create(e.ctx, tx))
}

func TestRunOnceClosesMonth(t *testing.T) {
	e := newEnv(t)
	e.sale(t, "tx-1", "cust-1", 120000, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))
	e.sale(t, "tx-2", "cust-2", 80000, time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC))

	result, err := e.worker.RunOnce(e.ctx, march)
	require.NoError(t, err)
	require.Equal(t, 2, result.Statements.Created)
	require.Equal(t, 1, result.Settlements.Created)
	require.Zero(t, result.Failed())

	st, err := e.statements.GetByCustomerMonth(e.ctx, "cust-1", march)
	require.NoError(t, err)
	require.Equal(t, int64(120000), st.TotalDueMinor)

	payout, err := e.settlements.GetByShopMonth(e.ctx, "shop-1", march)
	require.NoError(t, err)
	require.Equal(t, int64(200000), payout.AmountMinor)
	require.True(t, payout.Frozen())

	again, err := e.worker.RunOnce(e.ctx, march)
	require.NoError(t, err)
	require.Equal(t, 2, again.Statements.Unchanged)
	require.Equal(t, 1, again.Settlements.Frozen)
}

func TestRunOnceRejectsOpenMonth(t *testing.T) {
	e := newEnv(t)
	_, err := e.worker.RunOnce(e.ctx, domain.MonthOf(e.now))
	require.ErrorIs(t, err, domain.ErrInvalidMonth)
}

func TestRunClosesPreviousMonthAndStops(t *testing.T) {
	e := newEnv(t)
	e.sale(t, "tx-1", "cust-1", 50000, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC))

	ctx, cancel := context.WithCancel(e.ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.worker.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		_, err := e.statements.GetByCustomerMonth(e.ctx, "cust-1", march)
		return err == nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

type countingStatements struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingStatements) GenerateAll(_ context.Context, month domain.Month) (statement.Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return statement.Summary{Month: month}, c.err
}

type noopSettlements struct{}

func (noopSettlements) GenerateAll(_ context.Context, month domain.Month) (settlement.Summary, error) {
	return settlement.Summary{Month: month}, nil
}

func TestRunSkipsAlreadyClosedMonth(t *testing.T) {
	stmts := &countingStatements{}
	now := time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)
	worker := billing.NewWorker(stmts, noopSettlements{},
		billing.WithClock(func() time.Time { return now }),
		billing.WithInterval(2*time.Millisecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	worker.Run(ctx)

	stmts.mu.Lock()
	defer stmts.mu.Unlock()
	require.Equal(t, 1, stmts.calls)
}

func TestRunOnceReportsGeneratorError(t *testing.T) {
	stmts := &countingStatements{err: errors.New("db down")}
	worker := billing.NewWorker(stmts, noopSettlements{},
		billing.WithClock(func() time.Time { return time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC) }))

	_, err := worker.RunOnce(context.Background(), march)
	require.ErrorContains(t, err, "generate statements")
}
