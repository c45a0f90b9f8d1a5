package app

import (
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/creditmarket/internal/config"
	"github.com/vladislavdragonenkov/creditmarket/internal/metrics"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/billing"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/cart"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/checkout"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/credit"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/dashboard"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/directory"
	grpcsvc "github.com/vladislavdragonenkov/creditmarket/internal/service/grpc"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/onboarding"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/settlement"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/statement"
)

// serviceSet — прикладные сервисы процесса и общие метрики.
type serviceSet struct {
	api            grpcsvc.Services
	checkoutMetric *metrics.CheckoutMetrics
	workerMetrics  *metrics.WorkerMetrics
	billing        *billing.Worker
}

// buildServices связывает сервисы поверх хранилищ. События оформления уходят в Kafka,
// только если producer поднят.
func buildServices(cfg config.Config, deps *runtimeDependencies, events kafkaRuntime, registerer prometheus.Registerer, logger *log.Entry) serviceSet {
	checkoutMetrics := metrics.NewCheckoutMetricsWithRegisterer(registerer)
	workerMetrics := metrics.NewWorkerMetricsWithRegisterer(registerer)

	creditSvc := credit.NewService(deps.accounts,
		credit.WithLogger(logger.WithField("component", "credit")),
		credit.WithLedger(deps.ledger),
		credit.WithOutbox(deps.outbox),
		credit.WithMetrics(checkoutMetrics),
	)

	dirSvc := directory.NewService(deps.directory, deps.catalog,
		directory.WithLogger(logger.WithField("component", "directory")),
	)

	cartSvc := cart.NewService(deps.carts, deps.catalog, deps.directory, creditSvc,
		logger.WithField("component", "cart"),
		cart.WithMaxLineQty(int32(cfg.CartMaxLineQty)),
	)

	checkoutOpts := []checkout.Option{
		checkout.WithOutbox(deps.outbox),
		checkout.WithLedger(deps.ledger),
		checkout.WithMetrics(checkoutMetrics),
		checkout.WithLogger(logger.WithField("component", "checkout")),
	}
	if events.checkout != nil {
		checkoutOpts = append(checkoutOpts, checkout.WithEventPublisher(events.checkout))
	}
	checkoutSvc := checkout.NewService(cartSvc, creditSvc, deps.transactions, checkoutOpts...)

	statementSvc := statement.NewService(deps.statements, deps.transactions, deps.accounts, creditSvc,
		statement.WithOutbox(deps.outbox),
		statement.WithLedger(deps.ledger),
		statement.WithMetrics(checkoutMetrics),
		statement.WithLogger(logger.WithField("component", "statement")),
		statement.WithDueDay(cfg.StatementDueDay),
	)

	settlementSvc := settlement.NewService(deps.settlements, deps.transactions, deps.directory,
		settlement.WithOutbox(deps.outbox),
		settlement.WithMetrics(checkoutMetrics),
		settlement.WithLogger(logger.WithField("component", "settlement")),
	)

	onboardingSvc := onboarding.NewService(deps.verifications, dirSvc, creditSvc,
		onboarding.WithLogger(logger.WithField("component", "onboarding")),
		onboarding.WithDefaultLimit(cfg.DefaultCreditLimitMinor),
	)

	dashboardSvc := dashboard.NewService(dashboard.Sources{
		Accounts:      creditSvc,
		Transactions:  deps.transactions,
		Statements:    deps.statements,
		Settlements:   deps.settlements,
		Directory:     deps.directory,
		Verifications: deps.verifications,
	})

	billingWorker := billing.NewWorker(statementSvc, settlementSvc,
		billing.WithLogger(logger.WithField("component", "billing-worker")),
		billing.WithMetrics(workerMetrics),
		billing.WithInterval(cfg.BillingCloseInterval),
	)

	return serviceSet{
		api: grpcsvc.Services{
			Carts:        cartSvc,
			Checkout:     checkoutSvc,
			Credit:       creditSvc,
			Statements:   statementSvc,
			Settlements:  settlementSvc,
			Onboarding:   onboardingSvc,
			Directory:    dirSvc,
			Dashboard:    dashboardSvc,
			Transactions: deps.transactions,
		},
		checkoutMetric: checkoutMetrics,
		workerMetrics:  workerMetrics,
		billing:        billingWorker,
	}
}
