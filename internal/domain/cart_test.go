package domain_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

var (
	rice  = domain.Product{ID: "p-rice", ShopID: "shop-1", Name: "Basmati Rice 5kg", PriceMinor: 45000, InStock: true}
	oil   = domain.Product{ID: "p-oil", ShopID: "shop-1", Name: "Sunflower Oil 1L", PriceMinor: 18000, InStock: true}
	phone = domain.Product{ID: "p-phone", ShopID: "shop-2", Name: "Phone Case", PriceMinor: 29900, InStock: true}
)

func TestCartAddItem(t *testing.T) {
	cart := domain.NewCart("customer-1")
	require.NotEmpty(t, cart.ID)

	require.NoError(t, cart.AddItem(rice, 1))
	require.NoError(t, cart.AddItem(rice, 2))
	require.Len(t, cart.Lines, 1)
	require.Equal(t, int32(3), cart.Lines[0].Qty)

	require.ErrorIs(t, cart.AddItem(oil, 0), domain.ErrInvalidQuantity)
	require.ErrorIs(t, cart.AddItem(oil, -3), domain.ErrInvalidQuantity)
	require.Len(t, cart.Lines, 1)
}

func TestCartQuantityNeverOverflows(t *testing.T) {
	cart := domain.NewCart("customer-1")
	require.NoError(t, cart.AddItem(rice, math.MaxInt32))
	require.ErrorIs(t, cart.AddItem(rice, math.MaxInt32), domain.ErrInvalidQuantity)
	require.ErrorIs(t, cart.AddItem(rice, 1), domain.ErrInvalidQuantity)
	require.Equal(t, int32(math.MaxInt32), cart.Lines[0].Qty)

	got, err := cart.UpdateQuantity(rice.ID, 1)
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)
	require.Equal(t, int32(math.MaxInt32), got)

	got, err = cart.UpdateQuantity(rice.ID, math.MinInt32)
	require.NoError(t, err)
	require.Equal(t, int32(1), got)

	require.NoError(t, cart.AddItem(oil, 1))
	for _, l := range cart.Lines {
		require.GreaterOrEqual(t, l.Qty, int32(1))
	}
	require.Positive(t, cart.Subtotal())
}

func TestCartAddItemKeepsFirstPrice(t *testing.T) {
	cart := domain.NewCart("customer-1")
	require.NoError(t, cart.AddItem(rice, 1))

	repriced := rice
	repriced.PriceMinor = 99999
	require.NoError(t, cart.AddItem(repriced, 1))

	require.Equal(t, int64(45000), cart.Lines[0].UnitPriceMinor)
	require.Equal(t, int64(90000), cart.Subtotal())
}

func TestCartUpdateQuantity(t *testing.T) {
	tests := []struct {
		name  string
		start int32
		delta int32
		want  int32
	}{
		{name: "increment", start: 1, delta: 1, want: 2},
		{name: "decrement", start: 3, delta: -1, want: 2},
		{name: "floor at one", start: 1, delta: -1, want: 1},
		{name: "large negative delta", start: 5, delta: -100, want: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cart := domain.NewCart("customer-1")
			require.NoError(t, cart.AddItem(rice, tc.start))

			got, err := cart.UpdateQuantity(rice.ID, tc.delta)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
			require.Len(t, cart.Lines, 1)
		})
	}

	cart := domain.NewCart("customer-1")
	_, err := cart.UpdateQuantity("missing", 1)
	require.ErrorIs(t, err, domain.ErrCartItemNotFound)
}

func TestCartRemoveItem(t *testing.T) {
	cart := domain.NewCart("customer-1")
	require.NoError(t, cart.AddItem(rice, 1))
	require.NoError(t, cart.AddItem(oil, 1))

	require.True(t, cart.RemoveItem(rice.ID))
	require.False(t, cart.RemoveItem(rice.ID))
	require.Len(t, cart.Lines, 1)
	require.Equal(t, oil.ID, cart.Lines[0].ProductID)
}

func TestCartSubtotalIsOrderIndependent(t *testing.T) {
	orders := [][]domain.Product{
		{rice, oil, phone},
		{phone, rice, oil},
		{oil, phone, rice},
	}
	qty := map[string]int32{rice.ID: 2, oil.ID: 3, phone.ID: 1}

	var subtotals []int64
	for _, seq := range orders {
		cart := domain.NewCart("customer-1")
		for _, p := range seq {
			require.NoError(t, cart.AddItem(p, qty[p.ID]))
		}
		subtotals = append(subtotals, cart.Subtotal())
	}
	for _, s := range subtotals {
		require.Equal(t, int64(2*45000+3*18000+29900), s)
	}
}

func TestCartShopsAndClear(t *testing.T) {
	cart := domain.NewCart("customer-1")
	require.NoError(t, cart.AddItem(phone, 1))
	require.NoError(t, cart.AddItem(rice, 1))
	require.NoError(t, cart.AddItem(oil, 1))

	require.Equal(t, []string{"shop-2", "shop-1"}, cart.Shops())
	require.Len(t, cart.LinesByShop()["shop-1"], 2)

	token := cart.ID
	cart.Clear()
	require.True(t, cart.IsEmpty())
	require.Zero(t, cart.Subtotal())
	require.NotEqual(t, token, cart.ID)
}
