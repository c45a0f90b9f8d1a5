package settlement_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
	"github.com/vladislavdragonenkov/creditmarket/internal/metrics"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/settlement"
	"github.com/vladislavdragonenkov/creditmarket/internal/storage/memory"
)

var march = domain.Month{Year: 2024, Month: time.March}

type SettlementSuite struct {
	suite.Suite

	ctx          context.Context
	now          time.Time
	transactions domain.TransactionRepository
	directory    domain.DirectoryRepository
	outbox       *memory.OutboxRepository
	svc          *settlement.Service
	seq          int
}

func TestSettlementSuite(t *testing.T) {
	suite.Run(t, new(SettlementSuite))
}

func (s *SettlementSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	s.transactions = memory.NewTransactionRepository()
	s.directory = memory.NewDirectoryRepository()
	s.outbox = memory.NewOutboxRepository()
	s.seq = 0

	s.Require().NoError(s.directory.UpsertShop(s.ctx, domain.Shop{ID: "shop-1", ShopName: "Kirana", Status: domain.ApprovalStatusApproved}))
	s.Require().NoError(s.directory.UpsertShop(s.ctx, domain.Shop{ID: "shop-2", ShopName: "Dairy", Status: domain.ApprovalStatusApproved}))
	s.Require().NoError(s.directory.UpsertShop(s.ctx, domain.Shop{ID: "shop-3", ShopName: "Pending", Status: domain.ApprovalStatusPending}))

	s.svc = settlement.NewService(memory.NewSettlementRepository(), s.transactions, s.directory,
		settlement.WithClock(func() time.Time { return s.now }),
		settlement.WithOutbox(s.outbox),
		settlement.WithLogger(log.NewEntry(log.New())),
		settlement.WithMetrics(metrics.NewCheckoutMetricsWithRegisterer(prometheus.NewRegistry())),
	)
}

func (s *SettlementSuite) sale(shopID string, amountMinor int64, at time.Time, status domain.TransactionStatus) {
	s.seq++
	tx := domain.NewTransaction(
		fmt.Sprintf("tx-%d", s.seq), "checkout", "cust-1", shopID,
		[]domain.CartLine{{ProductID: "p", ShopID: shopID, UnitPriceMinor: amountMinor, Qty: 1}},
		status, at,
	)
	s.Require().NoError(s.transactions.Create(s.ctx, tx))
}

func (s *SettlementSuite) TestGenerateRecomputesUntilMonthEnd() {
	s.sale("shop-1", 120000, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), domain.TransactionStatusCompleted)
	s.sale("shop-1", 70000, time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC), domain.TransactionStatusFailed)
	s.sale("shop-2", 80000, time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC), domain.TransactionStatusCompleted)

	st, err := s.svc.Generate(s.ctx, "shop-1", march)
	s.Require().NoError(err)
	s.Require().Equal(int64(120000), st.AmountMinor)
	s.Require().Equal(domain.SettlementStatusPending, st.Status)
	s.Require().False(st.Frozen())

	s.sale("shop-1", 30000, time.Date(2024, 3, 25, 0, 0, 0, 0, time.UTC), domain.TransactionStatusCompleted)
	s.now = time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)

	st, err = s.svc.Generate(s.ctx, "shop-1", march)
	s.Require().NoError(err)
	s.Require().Equal(int64(150000), st.AmountMinor)
	s.Require().True(st.Frozen())

	// поздно записанная транзакция марта не меняет закрытую выплату
	s.sale("shop-1", 99900, time.Date(2024, 3, 30, 0, 0, 0, 0, time.UTC), domain.TransactionStatusCompleted)
	st, err = s.svc.Generate(s.ctx, "shop-1", march)
	s.Require().NoError(err)
	s.Require().Equal(int64(150000), st.AmountMinor)
}

func (s *SettlementSuite) TestMarkSettledOnce() {
	s.sale("shop-1", 120000, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), domain.TransactionStatusCompleted)
	s.now = time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC)
	st, err := s.svc.Generate(s.ctx, "shop-1", march)
	s.Require().NoError(err)

	settled, err := s.svc.MarkSettled(s.ctx, st.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.SettlementStatusSettled, settled.Status)
	s.Require().Equal(s.now, settled.SettledAt)
	firstSettledAt := settled.SettledAt

	s.now = s.now.Add(time.Hour)
	_, err = s.svc.MarkSettled(s.ctx, st.ID)
	s.Require().ErrorIs(err, domain.ErrAlreadySettled)

	stored, err := s.svc.Get(s.ctx, st.ID)
	s.Require().NoError(err)
	s.Require().Equal(firstSettledAt, stored.SettledAt)

	_, err = s.svc.MarkSettled(s.ctx, "missing")
	s.Require().ErrorIs(err, domain.ErrSettlementNotFound)
}

func (s *SettlementSuite) TestMarkSettledWaitsForMonthEnd() {
	s.sale("shop-1", 120000, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), domain.TransactionStatusCompleted)
	st, err := s.svc.Generate(s.ctx, "shop-1", march)
	s.Require().NoError(err)

	_, err = s.svc.MarkSettled(s.ctx, st.ID)
	s.Require().ErrorIs(err, domain.ErrSettlementMonthOpen)

	s.sale("shop-1", 30000, time.Date(2024, 3, 25, 0, 0, 0, 0, time.UTC), domain.TransactionStatusCompleted)
	s.now = time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)
	st, err = s.svc.Generate(s.ctx, "shop-1", march)
	s.Require().NoError(err)
	s.Require().Equal(int64(150000), st.AmountMinor)
	s.Require().Equal(domain.SettlementStatusPending, st.Status)
}

func (s *SettlementSuite) TestMarkSettledRecomputesMidMonthAmount() {
	s.sale("shop-1", 120000, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), domain.TransactionStatusCompleted)
	st, err := s.svc.Generate(s.ctx, "shop-1", march)
	s.Require().NoError(err)
	s.Require().Equal(int64(120000), st.AmountMinor)

	// месяц закрылся, а выплату никто не пересчитал
	s.sale("shop-1", 30000, time.Date(2024, 3, 25, 0, 0, 0, 0, time.UTC), domain.TransactionStatusCompleted)
	s.now = time.Date(2024, 4, 3, 0, 0, 0, 0, time.UTC)

	settled, err := s.svc.MarkSettled(s.ctx, st.ID)
	s.Require().NoError(err)
	s.Require().Equal(int64(150000), settled.AmountMinor)
	s.Require().Equal(domain.SettlementStatusSettled, settled.Status)
	s.Require().Equal(march.End(), settled.CutoffAt)
}

func (s *SettlementSuite) TestGenerateAllCoversApprovedShops() {
	s.sale("shop-1", 120000, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), domain.TransactionStatusCompleted)
	s.sale("shop-3", 10000, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), domain.TransactionStatusCompleted)

	summary, err := s.svc.GenerateAll(s.ctx, march)
	s.Require().NoError(err)
	s.Require().Equal(2, summary.Created)
	s.Require().Zero(summary.Failed)

	list, err := s.svc.List(s.ctx, domain.SettlementFilter{Month: march})
	s.Require().NoError(err)
	s.Require().Len(list, 2)

	s.now = time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)
	summary, err = s.svc.GenerateAll(s.ctx, march)
	s.Require().NoError(err)
	s.Require().Equal(2, summary.Unchanged)
	s.Require().Len(s.outbox.AllPending(), 2)
}

func (s *SettlementSuite) TestValidation() {
	_, err := s.svc.Generate(s.ctx, "", march)
	s.Require().ErrorIs(err, domain.ErrShopRequired)
	_, err = s.svc.Generate(s.ctx, "shop-1", domain.Month{Year: 2030, Month: time.May})
	s.Require().ErrorIs(err, domain.ErrInvalidMonth)
}

func TestSettlementFrozenRule(t *testing.T) {
	st := domain.ShopSettlement{Month: march, CutoffAt: march.End()}
	require.True(t, st.Frozen())
	st.CutoffAt = march.End().Add(-time.Second)
	require.False(t, st.Frozen())
	require.ErrorIs(t, st.MarkSettled(march.End()), domain.ErrSettlementMonthOpen)
	require.Equal(t, domain.SettlementStatusPending, st.Status)
}
