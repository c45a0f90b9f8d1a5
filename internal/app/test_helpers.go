package app

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/creditmarket/internal/config"
)

const testSeed = `shops:
  - id: shop-1
    shop_name: Kirana Corner
    owner_name: Ravi
    email: ravi@example.com
    category: grocery
    status: approved
products:
  - id: p-rice
    shop_id: shop-1
    name: Basmati rice 5kg
    category: grocery
    price_minor: 120000
customers:
  - id: cust-1
    name: Asha
    email: asha@example.com
    status: approved
    credit_limit_minor: 500000
`

// testConfig — настройки для запуска процесса в тестах: всё в памяти, случайные порты.
func testConfig(t *testing.T) config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.KafkaBrokers = nil
	return cfg
}

// writeSeedFile кладёт справочник во временный каталог теста.
func writeSeedFile(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(testSeed), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return path
}

// findFreePort находит свободный порт для тестов
func findFreePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}

func postgresTestDSNCandidate() string {
	return strings.TrimSpace(os.Getenv("CREDITMARKET_POSTGRES_TEST_DSN"))
}

// newTestRegistry изолирует метрики теста от глобального реестра.
func newTestRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}
