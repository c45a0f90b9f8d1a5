package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/creditmarket/internal/config"
	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

// newTestServices собирает сервисы поверх памяти и загружает тестовый справочник.
func newTestServices(t *testing.T, cfg config.Config) serviceSet {
	t.Helper()

	logger := log.WithField("test", t.Name())
	deps, err := initRuntimeDependencies(context.Background(), cfg, logger)
	require.NoError(t, err)

	services := buildServices(cfg, deps, kafkaRuntime{}, newTestRegistry(), logger)
	require.NoError(t, applySeedFile(context.Background(), writeSeedFile(t), services.api.Directory, services.api.Credit))
	return services
}

func TestBuildServices_CheckoutFlow(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	services := newTestServices(t, cfg)
	api := services.api

	account, err := api.Credit.Get(ctx, "cust-1")
	require.NoError(t, err)
	require.Equal(t, int64(500000), account.CreditLimitMinor)

	_, err = api.Carts.AddItem(ctx, "cust-1", "p-rice", 2)
	require.NoError(t, err)

	receipt, err := api.Checkout.Checkout(ctx, "cust-1")
	require.NoError(t, err)
	require.Equal(t, int64(240000), receipt.TotalMinor)
	require.Len(t, receipt.Transactions, 1)
	require.Equal(t, int64(260000), receipt.Account.CreditAvailableMinor)

	view, err := api.Dashboard.Get(ctx, domain.Identity{Role: domain.RoleCustomer, SubjectID: "cust-1"})
	require.NoError(t, err)
	require.NotNil(t, view.Customer)
	require.Equal(t, int64(240000), view.Customer.Account.CreditUsedMinor)
	require.Len(t, view.Customer.RecentTransactions, 1)
}

func TestBuildServices_OverLimitCheckoutRejected(t *testing.T) {
	ctx := context.Background()
	services := newTestServices(t, config.Default())
	api := services.api

	_, err := api.Carts.AddItem(ctx, "cust-1", "p-rice", 5)
	require.NoError(t, err)

	_, err = api.Checkout.Checkout(ctx, "cust-1")
	var insufficient *domain.InsufficientCreditError
	require.ErrorAs(t, err, &insufficient)

	account, err := api.Credit.Get(ctx, "cust-1")
	require.NoError(t, err)
	require.Zero(t, account.CreditUsedMinor)
}

func TestApplySeedFile_Idempotent(t *testing.T) {
	ctx := context.Background()
	services := newTestServices(t, config.Default())

	require.NoError(t, applySeedFile(ctx, writeSeedFile(t), services.api.Directory, services.api.Credit))

	products, err := services.api.Directory.ListProducts(ctx, "shop-1")
	require.NoError(t, err)
	require.Len(t, products, 1)
}
