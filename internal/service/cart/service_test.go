package cart_test

import (
	"context"
	"math"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/cart"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/credit"
	"github.com/vladislavdragonenkov/creditmarket/internal/storage/memory"
)

type CartServiceSuite struct {
	suite.Suite

	ctx    context.Context
	svc    *cart.Service
	credit *credit.Service
}

func TestCartServiceSuite(t *testing.T) {
	suite.Run(t, new(CartServiceSuite))
}

func (s *CartServiceSuite) SetupTest() {
	s.ctx = context.Background()
	logger := log.NewEntry(log.New())

	catalog := memory.NewCatalogRepository()
	directory := memory.NewDirectoryRepository()
	s.Require().NoError(directory.UpsertShop(s.ctx, domain.Shop{ID: "shop-1", ShopName: "Kirana", Status: domain.ApprovalStatusApproved}))
	s.Require().NoError(directory.UpsertShop(s.ctx, domain.Shop{ID: "shop-2", ShopName: "New", Status: domain.ApprovalStatusPending}))
	s.Require().NoError(catalog.UpsertProduct(s.ctx, domain.Product{ID: "rice", ShopID: "shop-1", Name: "Rice 5kg", PriceMinor: 120000, InStock: true}))
	s.Require().NoError(catalog.UpsertProduct(s.ctx, domain.Product{ID: "oil", ShopID: "shop-1", Name: "Oil 1l", PriceMinor: 80000, InStock: true}))
	s.Require().NoError(catalog.UpsertProduct(s.ctx, domain.Product{ID: "sugar", ShopID: "shop-1", Name: "Sugar", PriceMinor: 5000, InStock: false}))
	s.Require().NoError(catalog.UpsertProduct(s.ctx, domain.Product{ID: "tea", ShopID: "shop-2", Name: "Tea", PriceMinor: 3000, InStock: true}))

	s.credit = credit.NewService(memory.NewAccountRepository(), credit.WithLogger(logger))
	_, err := s.credit.Open(s.ctx, "cust-1", 50000_00)
	s.Require().NoError(err)

	s.svc = cart.NewService(memory.NewCartRepository(), catalog, directory, s.credit, logger)
}

func (s *CartServiceSuite) TestAddItemMergesLines() {
	c, err := s.svc.AddItem(s.ctx, "cust-1", "rice", 1)
	s.Require().NoError(err)
	c, err = s.svc.AddItem(s.ctx, "cust-1", "rice", 2)
	s.Require().NoError(err)

	s.Require().Len(c.Lines, 1)
	s.Require().Equal(int32(3), c.Lines[0].Qty)
	s.Require().Equal(int64(360000), c.Subtotal())
}

func (s *CartServiceSuite) TestAddItemValidation() {
	_, err := s.svc.AddItem(s.ctx, "cust-1", "rice", 0)
	s.Require().ErrorIs(err, domain.ErrInvalidQuantity)

	_, err = s.svc.AddItem(s.ctx, "cust-1", "sugar", 1)
	s.Require().ErrorIs(err, domain.ErrProductUnavailable)

	_, err = s.svc.AddItem(s.ctx, "cust-1", "tea", 1)
	s.Require().ErrorIs(err, domain.ErrProductUnavailable)

	_, err = s.svc.AddItem(s.ctx, "cust-1", "missing", 1)
	s.Require().ErrorIs(err, domain.ErrProductNotFound)

	c, err := s.svc.Get(s.ctx, "cust-1")
	s.Require().NoError(err)
	s.Require().True(c.IsEmpty())
}

func (s *CartServiceSuite) TestQuantityOverflowRejected() {
	_, err := s.svc.AddItem(s.ctx, "cust-1", "rice", math.MaxInt32)
	s.Require().NoError(err)
	_, err = s.svc.AddItem(s.ctx, "cust-1", "rice", math.MaxInt32)
	s.Require().ErrorIs(err, domain.ErrInvalidQuantity)
	_, err = s.svc.UpdateQuantity(s.ctx, "cust-1", "rice", 1)
	s.Require().ErrorIs(err, domain.ErrInvalidQuantity)

	c, err := s.svc.AddItem(s.ctx, "cust-1", "oil", 1)
	s.Require().NoError(err)
	s.Require().Equal(int32(math.MaxInt32), c.Lines[0].Qty)
	s.Require().Positive(c.Subtotal())

	q, err := s.svc.Quote(s.ctx, "cust-1")
	s.Require().NoError(err)
	s.Require().False(q.CanAfford)
	s.Require().Positive(q.ShortfallMinor)
}

func (s *CartServiceSuite) TestUpdateQuantityFloorsAtOne() {
	_, err := s.svc.AddItem(s.ctx, "cust-1", "rice", 2)
	s.Require().NoError(err)

	c, err := s.svc.UpdateQuantity(s.ctx, "cust-1", "rice", -5)
	s.Require().NoError(err)
	s.Require().Equal(int32(1), c.Lines[0].Qty)

	_, err = s.svc.UpdateQuantity(s.ctx, "cust-1", "oil", 1)
	s.Require().ErrorIs(err, domain.ErrCartItemNotFound)
}

func (s *CartServiceSuite) TestRemoveAndClear() {
	_, err := s.svc.AddItem(s.ctx, "cust-1", "rice", 1)
	s.Require().NoError(err)
	before, err := s.svc.AddItem(s.ctx, "cust-1", "oil", 1)
	s.Require().NoError(err)

	c, err := s.svc.RemoveItem(s.ctx, "cust-1", "rice")
	s.Require().NoError(err)
	s.Require().Len(c.Lines, 1)
	c, err = s.svc.RemoveItem(s.ctx, "cust-1", "rice")
	s.Require().NoError(err)
	s.Require().Len(c.Lines, 1)

	c, err = s.svc.Clear(s.ctx, "cust-1")
	s.Require().NoError(err)
	s.Require().True(c.IsEmpty())
	s.Require().NotEqual(before.ID, c.ID)
}

func (s *CartServiceSuite) TestQuoteShowsShortfall() {
	_, err := s.credit.Reserve(s.ctx, "cust-1", 48000_00, "earlier")
	s.Require().NoError(err)

	_, err = s.svc.AddItem(s.ctx, "cust-1", "rice", 2) // ₹2400
	s.Require().NoError(err)
	_, err = s.svc.AddItem(s.ctx, "cust-1", "oil", 1) // ₹800
	s.Require().NoError(err)

	q, err := s.svc.Quote(s.ctx, "cust-1")
	s.Require().NoError(err)
	s.Require().Equal(int64(3200_00), q.SubtotalMinor)
	s.Require().Equal(int64(2000_00), q.AvailableMinor)
	s.Require().False(q.CanAfford)
	s.Require().Equal(int64(1200_00), q.ShortfallMinor)

	// quote ничего не резервирует
	account, err := s.credit.Get(s.ctx, "cust-1")
	s.Require().NoError(err)
	s.Require().Equal(int64(48000_00), account.CreditUsedMinor)
}

func (s *CartServiceSuite) TestQuoteWithoutAccount() {
	_, err := s.svc.Quote(s.ctx, "stranger")
	s.Require().ErrorIs(err, domain.ErrAccountNotFound)
}

func TestGetRequiresCustomer(t *testing.T) {
	svc := cart.NewService(memory.NewCartRepository(), memory.NewCatalogRepository(), nil,
		credit.NewService(memory.NewAccountRepository()), nil)
	_, err := svc.Get(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrCustomerRequired)
}

func TestMaxLineQtyLimit(t *testing.T) {
	ctx := context.Background()
	catalog := memory.NewCatalogRepository()
	require.NoError(t, catalog.UpsertProduct(ctx, domain.Product{ID: "rice", ShopID: "shop-1", Name: "Rice 5kg", PriceMinor: 120000, InStock: true}))
	svc := cart.NewService(memory.NewCartRepository(), catalog, nil, nil, nil, cart.WithMaxLineQty(10))

	_, err := svc.AddItem(ctx, "cust-1", "rice", 11)
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = svc.AddItem(ctx, "cust-1", "rice", 8)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "cust-1", "rice", 3)
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)
	_, err = svc.UpdateQuantity(ctx, "cust-1", "rice", 5)
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)

	c, err := svc.UpdateQuantity(ctx, "cust-1", "rice", 2)
	require.NoError(t, err)
	require.Equal(t, int32(10), c.Lines[0].Qty)

	stored, err := svc.Get(ctx, "cust-1")
	require.NoError(t, err)
	require.Equal(t, int32(10), stored.Lines[0].Qty)
}

// racingCarts перед первой записью сохраняет корзину в обход сервиса, как это сделала бы другая реплика.
type racingCarts struct {
	domain.CartRepository
	raced bool
}

func (r *racingCarts) Save(ctx context.Context, c domain.Cart) error {
	if !r.raced {
		r.raced = true
		other, err := r.CartRepository.Get(ctx, c.CustomerID)
		if err != nil {
			return err
		}
		if err := other.AddItem(domain.Product{ID: "oil", ShopID: "shop-1", Name: "Oil 1l", PriceMinor: 80000}, 1); err != nil {
			return err
		}
		if err := r.CartRepository.Save(ctx, other); err != nil {
			return err
		}
	}
	return r.CartRepository.Save(ctx, c)
}

func TestMutateRetriesOnConcurrentWrite(t *testing.T) {
	ctx := context.Background()
	catalog := memory.NewCatalogRepository()
	require.NoError(t, catalog.UpsertProduct(ctx, domain.Product{ID: "rice", ShopID: "shop-1", Name: "Rice 5kg", PriceMinor: 120000, InStock: true}))

	repo := &racingCarts{CartRepository: memory.NewCartRepository()}
	require.NoError(t, repo.CartRepository.Save(ctx, domain.NewCart("cust-1")))
	svc := cart.NewService(repo, catalog, nil, nil, nil)

	c, err := svc.AddItem(ctx, "cust-1", "rice", 2)
	require.NoError(t, err)
	require.True(t, repo.raced)
	require.Len(t, c.Lines, 2)

	stored, err := svc.Get(ctx, "cust-1")
	require.NoError(t, err)
	require.Equal(t, c.Version, stored.Version)
	require.Equal(t, int64(320000), stored.Subtotal())
}
