package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/creditmarket/internal/auth"
	"github.com/vladislavdragonenkov/creditmarket/internal/config"
	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/creditmarket/internal/health"
	"github.com/vladislavdragonenkov/creditmarket/internal/version"
)

const testAuthSecret = "0123456789abcdef-secret"

func TestHTTPMux_ProbesAndMetrics(t *testing.T) {
	healthHandler := healthcheck.NewHandler(version.GetVersion())
	srv := httptest.NewServer(newHTTPMux(healthHandler, nil))
	defer srv.Close()

	for _, path := range []string{"/metrics", "/healthz", "/livez", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err, path)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		require.NotEmpty(t, body, path)
	}
}

func TestHTTPMux_ReadinessFailsWhenStorageDown(t *testing.T) {
	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", healthcheck.NewPingChecker("postgres", time.Second, func(context.Context) error {
		return fmt.Errorf("connection refused")
	}))
	srv := httptest.NewServer(newHTTPMux(healthHandler, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/livez")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestExportRoute_AuthEnabled(t *testing.T) {
	cfg := config.Default()
	cfg.AuthSecret = testAuthSecret
	svc := newTestServices(t, cfg)

	handler := newExportHandler(cfg, svc.api.Statements, svc.api.Directory, log.WithField("test", "export"))
	srv := httptest.NewServer(newHTTPMux(healthcheck.NewHandler("test"), handler))
	defer srv.Close()

	url := srv.URL + "/v1/statements/missing/export?format=pdf"

	resp, err := http.Get(url)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	shopToken, err := auth.IssueToken(domain.Identity{Role: domain.RoleShop, SubjectID: "shop-1"}, []byte(testAuthSecret), time.Minute)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, getWithToken(t, url, shopToken))

	customerToken, err := auth.IssueToken(domain.Identity{Role: domain.RoleCustomer, SubjectID: "cust-1"}, []byte(testAuthSecret), time.Minute)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, getWithToken(t, url, customerToken))
}

func TestExportRoute_AnonymousWhenAuthDisabled(t *testing.T) {
	cfg := config.Default()
	svc := newTestServices(t, cfg)

	handler := newExportHandler(cfg, svc.api.Statements, svc.api.Directory, log.WithField("test", "export"))
	srv := httptest.NewServer(newHTTPMux(healthcheck.NewHandler("test"), handler))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/statements/missing/export")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/v1/statements/missing/export", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStartHTTPServer_Shutdown(t *testing.T) {
	logger := log.WithField("test", "http-shutdown")
	port := findFreePort(t)
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	ctx, cancel := context.WithCancel(context.Background())
	srv := startHTTPServer(ctx, addr, logger, newHTTPMux(healthcheck.NewHandler("test"), nil))
	require.NotNil(t, srv)

	url := fmt.Sprintf("http://%s/livez", addr)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()

	require.Eventually(t, func() bool {
		_, err := http.Get(url)
		return err != nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestShutdownHTTP_NilServer(_ *testing.T) {
	// Не должно паниковать
	shutdownHTTP(nil, log.WithField("test", "http-nil"))
}

func getWithToken(t *testing.T, url, token string) int {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}
