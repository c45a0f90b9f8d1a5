package directory_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/credit"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/directory"
	"github.com/vladislavdragonenkov/creditmarket/internal/storage/memory"
)

func newService(t *testing.T) *directory.Service {
	t.Helper()
	seq := 0
	return directory.NewService(memory.NewDirectoryRepository(), memory.NewCatalogRepository(),
		directory.WithLogger(log.NewEntry(log.New())),
		directory.WithClock(func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }),
		directory.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("id-%d", seq)
		}),
	)
}

func TestRegisterAndSearch(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	c, err := svc.RegisterCustomer(ctx, domain.Customer{Name: " Rahul Sharma ", Email: "rahul@example.com", Phone: "+91 98765 43210"})
	require.NoError(t, err)
	require.Equal(t, "id-1", c.ID)
	require.Equal(t, "Rahul Sharma", c.Name)
	require.Equal(t, domain.ApprovalStatusPending, c.Status)

	_, err = svc.RegisterShop(ctx, domain.Shop{ShopName: "Sharma General Store", OwnerName: "Vikas", Email: "store@example.com"})
	require.NoError(t, err)
	_, err = svc.RegisterShop(ctx, domain.Shop{ShopName: "Patel Dairy", Status: domain.ApprovalStatusApproved})
	require.NoError(t, err)

	both, err := svc.Search(ctx, "", domain.DirectoryQuery{Text: "sharma"})
	require.NoError(t, err)
	require.Len(t, both.Customers, 1)
	require.Len(t, both.Shops, 1)

	shops, err := svc.Search(ctx, domain.SubjectShop, domain.DirectoryQuery{Status: domain.ApprovalStatusApproved})
	require.NoError(t, err)
	require.Nil(t, shops.Customers)
	require.Len(t, shops.Shops, 1)
	require.Equal(t, "Patel Dairy", shops.Shops[0].ShopName)

	byPhone, err := svc.Search(ctx, domain.SubjectCustomer, domain.DirectoryQuery{Text: "98765"})
	require.NoError(t, err)
	require.Len(t, byPhone.Customers, 1)

	_, err = svc.Search(ctx, "admin", domain.DirectoryQuery{})
	require.ErrorIs(t, err, domain.ErrSubjectTypeInvalid)
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	_, err := svc.RegisterCustomer(ctx, domain.Customer{Name: "  "})
	require.ErrorIs(t, err, domain.ErrNameRequired)
	_, err = svc.RegisterShop(ctx, domain.Shop{ShopName: "X", Status: "archived"})
	require.ErrorIs(t, err, domain.ErrApprovalStatusInvalid)
}

func TestAddProduct(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	shop, err := svc.RegisterShop(ctx, domain.Shop{ID: "shop-1", ShopName: "Kirana"})
	require.NoError(t, err)

	_, err = svc.AddProduct(ctx, domain.Product{ShopID: "missing", Name: "Rice", PriceMinor: 100})
	require.ErrorIs(t, err, domain.ErrShopNotFound)
	_, err = svc.AddProduct(ctx, domain.Product{ShopID: shop.ID, Name: "Rice", PriceMinor: -1})
	require.ErrorIs(t, err, domain.ErrLinePriceInvalid)
	_, err = svc.AddProduct(ctx, domain.Product{ShopID: shop.ID, PriceMinor: 1})
	require.ErrorIs(t, err, domain.ErrNameRequired)

	p, err := svc.AddProduct(ctx, domain.Product{ShopID: shop.ID, Name: "Basmati Rice 5kg", PriceMinor: 120000, InStock: true})
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)

	products, err := svc.ListProducts(ctx, shop.ID)
	require.NoError(t, err)
	require.Len(t, products, 1)

	_, err = svc.ListProducts(ctx, "")
	require.ErrorIs(t, err, domain.ErrShopRequired)
}

const seedYAML = `
shops:
  - id: shop-1
    shop_name: Sharma General Store
    owner_name: Vikas Sharma
    status: approved
products:
  - id: rice
    shop_id: shop-1
    name: Basmati Rice 5kg
    price_minor: 120000
  - id: ghee
    shop_id: shop-1
    name: Ghee 1L
    price_minor: 65000
    in_stock: false
customers:
  - id: cust-1
    name: Rahul
    status: approved
    credit_limit_minor: 5000000
  - id: cust-2
    name: Priya
`

func TestApplySeed(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	creditSvc := credit.NewService(memory.NewAccountRepository(), credit.WithLogger(log.NewEntry(log.New())))

	seed, err := directory.LoadSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)
	require.NoError(t, svc.ApplySeed(ctx, seed, creditSvc))
	// повторная загрузка не падает на уже открытом счёте
	require.NoError(t, svc.ApplySeed(ctx, seed, creditSvc))

	account, err := creditSvc.Get(ctx, "cust-1")
	require.NoError(t, err)
	require.Equal(t, int64(5000000), account.CreditAvailableMinor)

	_, err = creditSvc.Get(ctx, "cust-2")
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	products, err := svc.ListProducts(ctx, "shop-1")
	require.NoError(t, err)
	require.Len(t, products, 2)
	for _, p := range products {
		require.Equal(t, p.ID == "rice", p.InStock)
	}
}

func TestLoadSeedRejectsUnknownFields(t *testing.T) {
	_, err := directory.LoadSeed(strings.NewReader("shops:\n  - id: s\n    colour: red\n"))
	require.Error(t, err)

	empty, err := directory.LoadSeed(strings.NewReader(""))
	require.NoError(t, err)
	require.Empty(t, empty.Shops)
}
