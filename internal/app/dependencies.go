package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/creditmarket/internal/config"
	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/creditmarket/internal/health"
	"github.com/vladislavdragonenkov/creditmarket/internal/storage/memory"
	"github.com/vladislavdragonenkov/creditmarket/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/creditmarket/internal/storage/redis"
)

const storageCheckTimeout = 2 * time.Second

// runtimeDependencies — хранилища процесса и проверки их доступности.
type runtimeDependencies struct {
	accounts      domain.AccountRepository
	transactions  domain.TransactionRepository
	statements    domain.StatementRepository
	settlements   domain.SettlementRepository
	carts         domain.CartRepository
	catalog       domain.CatalogRepository
	directory     domain.DirectoryRepository
	verifications domain.VerificationRepository
	ledger        domain.LedgerRepository
	outbox        domain.OutboxRepository
	idempotency   domain.IdempotencyRepository

	storageChecker healthcheck.Checker
	cartChecker    healthcheck.Checker
	closeFn        func() error
}

// close освобождает подключения; безопасно вызывать на частично собранных зависимостях.
func (d *runtimeDependencies) close() error {
	if d == nil || d.closeFn == nil {
		return nil
	}
	return d.closeFn()
}

// initRuntimeDependencies выбирает backend хранилищ по конфигурации.
func initRuntimeDependencies(ctx context.Context, cfg config.Config, logger *log.Entry) (*runtimeDependencies, error) {
	var (
		deps *runtimeDependencies
		err  error
	)

	switch cfg.StorageDriver {
	case "", config.StorageDriverMemory:
		deps = newMemoryDependencies()
		logger.Info("storage driver: memory")
	case config.StorageDriverPostgres:
		deps, err = newPostgresDependencies(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	switch cfg.CartStore {
	case "", config.CartStoreMemory:
		deps.carts = memory.NewCartRepository()
	case config.CartStoreRedis:
		if err := attachRedisCarts(ctx, cfg, deps, logger); err != nil {
			_ = deps.close()
			return nil, err
		}
	default:
		_ = deps.close()
		return nil, fmt.Errorf("unsupported cart store %q", cfg.CartStore)
	}

	return deps, nil
}

func newMemoryDependencies() *runtimeDependencies {
	return &runtimeDependencies{
		accounts:      memory.NewAccountRepository(),
		transactions:  memory.NewTransactionRepository(),
		statements:    memory.NewStatementRepository(),
		settlements:   memory.NewSettlementRepository(),
		catalog:       memory.NewCatalogRepository(),
		directory:     memory.NewDirectoryRepository(),
		verifications: memory.NewVerificationRepository(),
		ledger:        memory.NewLedgerRepository(),
		outbox:        memory.NewOutboxRepository(),
		idempotency:   memory.NewIdempotencyRepository(),
	}
}

func newPostgresDependencies(ctx context.Context, cfg config.Config, logger *log.Entry) (*runtimeDependencies, error) {
	if cfg.PostgresDSN == "" {
		return nil, errors.New("postgres dsn is required for postgres storage driver")
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.WithMaxConns(cfg.PostgresMaxConns))
	if err != nil {
		return nil, err
	}
	if cfg.PostgresAutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply postgres migrations: %w", err)
		}
		logger.Info("postgres migrations applied")
	}
	logger.Info("storage driver: postgres")

	return &runtimeDependencies{
		accounts:       postgres.NewAccountRepository(store),
		transactions:   postgres.NewTransactionRepository(store),
		statements:     postgres.NewStatementRepository(store),
		settlements:    postgres.NewSettlementRepository(store),
		catalog:        postgres.NewCatalogRepository(store),
		directory:      postgres.NewDirectoryRepository(store),
		verifications:  postgres.NewVerificationRepository(store),
		ledger:         postgres.NewLedgerRepository(store),
		outbox:         postgres.NewOutboxRepository(store),
		idempotency:    postgres.NewIdempotencyRepository(store),
		storageChecker: healthcheck.NewPingChecker("postgres", storageCheckTimeout, store.Ping),
		closeFn:        store.Close,
	}, nil
}

func attachRedisCarts(ctx context.Context, cfg config.Config, deps *runtimeDependencies, logger *log.Entry) error {
	client, err := redisstore.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	repo := redisstore.NewCartRepository(client, redisstore.WithTTL(cfg.CartTTL))
	deps.carts = repo
	deps.cartChecker = healthcheck.NewPingChecker("redis", storageCheckTimeout, repo.Ping)

	storageClose := deps.closeFn
	deps.closeFn = func() error {
		var errs []error
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
		if storageClose != nil {
			if err := storageClose(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	logger.WithField("cart_ttl", cfg.CartTTL).Info("cart store: redis")
	return nil
}
