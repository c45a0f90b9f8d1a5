package app

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/creditmarket/internal/config"
	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/billing"
)

// CloseMonth однократно закрывает месяц поверх настроенного хранилища без запуска серверов.
// События ложатся в outbox и уйдут в Kafka при следующем запуске сервиса.
func CloseMonth(ctx context.Context, cfg config.Config, month domain.Month) (billing.Result, error) {
	logger := log.WithFields(log.Fields{"component": "month-close", "month": month.String()})

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return billing.Result{}, err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	services := buildServices(cfg, deps, kafkaRuntime{}, prometheus.NewRegistry(), logger)
	if cfg.SeedFile != "" {
		if err := applySeedFile(ctx, cfg.SeedFile, services.api.Directory, services.api.Credit); err != nil {
			return billing.Result{}, err
		}
	}
	return services.billing.RunOnce(ctx, month)
}
