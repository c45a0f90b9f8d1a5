package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

func TestShopSettlementMarkSettledTwice(t *testing.T) {
	m := domain.Month{Year: 2024, Month: time.March}
	s := domain.ShopSettlement{ID: "set-1", ShopID: "shop-1", Month: m, AmountMinor: 500000, Status: domain.SettlementStatusPending, CutoffAt: m.End()}

	first := time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.MarkSettled(first))
	require.Equal(t, first, s.SettledAt)
	require.Empty(t, s.ValidateInvariants())

	require.ErrorIs(t, s.MarkSettled(first.Add(time.Hour)), domain.ErrAlreadySettled)
	require.Equal(t, first, s.SettledAt)
}

func TestShopSettlementFrozen(t *testing.T) {
	m := domain.Month{Year: 2024, Month: time.March}
	s := domain.ShopSettlement{ShopID: "shop-1", Month: m, Status: domain.SettlementStatusPending}

	s.CutoffAt = time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	require.False(t, s.Frozen())

	s.CutoffAt = m.End()
	require.True(t, s.Frozen())

	s.CutoffAt = time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	s.Status = domain.SettlementStatusSettled
	require.True(t, s.Frozen())
	require.Contains(t, s.ValidateInvariants(), domain.ErrSettledAtRequired)
}

func TestShopSettlementMarkSettledRequiresClosedMonth(t *testing.T) {
	m := domain.Month{Year: 2024, Month: time.March}
	s := domain.ShopSettlement{ID: "set-1", ShopID: "shop-1", Month: m, AmountMinor: 120000, Status: domain.SettlementStatusPending,
		CutoffAt: time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)}
	require.False(t, s.Closed())

	require.ErrorIs(t, s.MarkSettled(time.Date(2024, 3, 20, 1, 0, 0, 0, time.UTC)), domain.ErrSettlementMonthOpen)
	require.Equal(t, domain.SettlementStatusPending, s.Status)
	require.True(t, s.SettledAt.IsZero())
	require.False(t, s.Frozen())

	s.CutoffAt = m.End()
	require.True(t, s.Closed())
	require.NoError(t, s.MarkSettled(time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)))
}
