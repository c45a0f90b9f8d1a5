package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vladislavdragonenkov/creditmarket/internal/auth"
	"github.com/vladislavdragonenkov/creditmarket/internal/config"
	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
	"github.com/vladislavdragonenkov/creditmarket/internal/export"
	healthcheck "github.com/vladislavdragonenkov/creditmarket/internal/health"
)

const httpShutdownTimeout = 5 * time.Second

// localAdmin — identity для запуска без JWT-секрета.
var localAdmin = domain.Identity{Role: domain.RoleAdmin, SubjectID: "local-admin", Name: "local admin"}

// newExportHandler закрывает выгрузку выписок JWT-проверкой, если секрет задан.
func newExportHandler(cfg config.Config, statements export.StatementSource, customers export.CustomerSource, logger *log.Entry) http.Handler {
	h := export.NewHandler(statements, customers, logger.WithField("component", "statement-export"))
	if !cfg.AuthEnabled() {
		return h.WithAnonymousIdentity(localAdmin)
	}
	return auth.Middleware([]byte(cfg.AuthSecret), domain.RoleCustomer, domain.RoleAdmin)(h)
}

// newHTTPMux собирает HTTP API: метрики, health-пробы и выгрузку выписок.
func newHTTPMux(healthHandler *healthcheck.Handler, exportHandler http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	if exportHandler != nil {
		mux.Handle(export.RoutePattern, otelhttp.NewHandler(exportHandler, "statement.export"))
	}
	return mux
}

// startHTTPServer запускает HTTP-сервер и останавливает его при отмене ctx.
func startHTTPServer(ctx context.Context, addr string, logger *log.Entry, handler http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("http server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
