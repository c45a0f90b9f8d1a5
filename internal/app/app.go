// Package app собирает процесс кредитного маркетплейса: хранилища, Kafka,
// прикладные сервисы, gRPC и HTTP серверы, фоновые воркеры.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/creditmarket/internal/auth"
	"github.com/vladislavdragonenkov/creditmarket/internal/config"
	healthcheck "github.com/vladislavdragonenkov/creditmarket/internal/health"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/directory"
	grpcsvc "github.com/vladislavdragonenkov/creditmarket/internal/service/grpc"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/idempotency"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/outbox"
	"github.com/vladislavdragonenkov/creditmarket/internal/tracing"
	"github.com/vladislavdragonenkov/creditmarket/internal/version"
	cmv1 "github.com/vladislavdragonenkov/creditmarket/proto/creditmarket/v1"
)

const grpcStopTimeout = 5 * time.Second

// Run поднимает процесс и блокируется до отмены ctx или падения gRPC сервера.
// При штатной остановке возвращает ctx.Err().
func Run(ctx context.Context, cfg config.Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	shutdownTracing := tracing.Noop
	if cfg.TracingEnabled {
		shutdownTracing, err = tracing.Setup(tracing.Options{ServiceName: cfg.TracingServiceName})
		if err != nil {
			return err
		}
		logger.Info("tracing enabled: stdout exporter")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grpcStopTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.WithError(err).Warn("failed to flush traces")
		}
	}()

	producer, _ := initKafkaProducer(cfg, logger)
	defer closeKafkaProducer(producer, logger)
	events := newKafkaRuntime(cfg, producer, logger)

	services := buildServices(cfg, deps, events, prometheus.DefaultRegisterer, logger)

	if cfg.SeedFile != "" {
		if err := applySeedFile(ctx, cfg.SeedFile, services.api.Directory, services.api.Credit); err != nil {
			return err
		}
		logger.WithField("seed_file", cfg.SeedFile).Info("directory seed applied")
	}

	grpcServer, healthServer := newGRPCServer(cfg, services, deps, logger)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", deps.storageChecker)
	healthHandler.RegisterChecker("cart_store", deps.cartChecker)
	healthHandler.RegisterChecker("kafka", events.checker)

	exportHandler := newExportHandler(cfg, services.api.Statements, services.api.Directory, logger)
	httpSrv := startHTTPServer(ctx, cfg.HTTPAddr, logger, newHTTPMux(healthHandler, exportHandler))

	workers := startWorkers(ctx, cfg, deps, events, services, logger)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		workers.stop(logger)
		shutdownHTTP(httpSrv, logger)
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC сервер слушает %s", cfg.GRPCAddr)
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем gRPC сервер")
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		stopGRPC(grpcServer, logger)
		workers.stop(logger)
		shutdownHTTP(httpSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		workers.stop(logger)
		shutdownHTTP(httpSrv, logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// newGRPCServer регистрирует API, health и reflection. Без секрета все вызовы идут от локального админа.
func newGRPCServer(cfg config.Config, services serviceSet, deps *runtimeDependencies, logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	interceptors := []grpc.UnaryServerInterceptor{grpcMetrics.UnaryServerInterceptor()}
	serverOpts := []grpcsvc.Option{
		grpcsvc.WithIdempotency(deps.idempotency, cfg.IdempotencyTTL),
		grpcsvc.WithMetrics(services.checkoutMetric),
		grpcsvc.WithLogger(logger.WithField("layer", "grpc")),
	}
	if cfg.AuthEnabled() {
		interceptors = append(interceptors,
			auth.UnaryServerInterceptor([]byte(cfg.AuthSecret), grpcsvc.Policy(), logger.WithField("component", "auth")))
	} else {
		logger.Warn("auth secret is not set, every call is served as local admin")
		serverOpts = append(serverOpts, grpcsvc.WithAnonymousIdentity(localAdmin))
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))
	cmv1.RegisterCreditMarketServiceServer(grpcServer, grpcsvc.NewServer(services.api, serverOpts...))
	grpcMetrics.InitializeMetrics(grpcServer)

	reflection.Register(grpcServer)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	return grpcServer, healthServer
}

func stopGRPC(grpcServer *grpc.Server, logger *log.Entry) {
	stoppedCh := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stoppedCh)
	}()
	select {
	case <-stoppedCh:
	case <-time.After(grpcStopTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		grpcServer.Stop()
	}
}

func applySeedFile(ctx context.Context, path string, dir *directory.Service, opener directory.AccountOpener) error {
	seed, err := directory.LoadSeedFile(path)
	if err != nil {
		return err
	}
	if err := dir.ApplySeed(ctx, seed, opener); err != nil {
		return fmt.Errorf("apply seed: %w", err)
	}
	return nil
}

// backgroundWorker — запущенный воркер и способ его остановить.
type backgroundWorker struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

type workerGroup []backgroundWorker

func startWorker(ctx context.Context, name string, run func(context.Context)) backgroundWorker {
	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		run(workerCtx)
	}()
	return backgroundWorker{name: name, cancel: cancel, done: done}
}

// startWorkers запускает закрытие месяца, очистку ключей идемпотентности и,
// при поднятой Kafka, outbox worker.
func startWorkers(ctx context.Context, cfg config.Config, deps *runtimeDependencies, events kafkaRuntime, services serviceSet, logger *log.Entry) workerGroup {
	group := workerGroup{
		startWorker(ctx, "billing", services.billing.Run),
		startWorker(ctx, "idempotency-cleanup", idempotency.NewCleanupWorker(deps.idempotency,
			idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup-worker")),
			idempotency.WithMetrics(services.workerMetrics),
			idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
			idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
		).Run),
	}

	if events.outbox == nil {
		logger.Info("kafka is not configured, outbox events stay pending")
		return group
	}
	worker := outbox.NewWorker(deps.outbox, events.outbox,
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithMetrics(services.workerMetrics),
		outbox.WithDLQPublisher(events.dlq),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
	return append(group, startWorker(ctx, "outbox", worker.Run))
}

// stop останавливает воркеры в обратном порядке запуска.
func (g workerGroup) stop(logger *log.Entry) {
	for i := len(g) - 1; i >= 0; i-- {
		shutdownWorker(g[i].cancel, g[i].done, logger.WithField("worker", g[i].name))
	}
}

// shutdownWorker отменяет воркер и ждёт его завершения не дольше таймаута.
func shutdownWorker(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(grpcStopTimeout):
		logger.Warn("worker did not stop in time")
	}
}
