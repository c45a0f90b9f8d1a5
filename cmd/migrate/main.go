package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	appconfig "github.com/vladislavdragonenkov/creditmarket/internal/config"
	"github.com/vladislavdragonenkov/creditmarket/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
)

// migrator — часть postgres.Store, нужная утилите.
type migrator interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	MigrationStatus(ctx context.Context) (postgres.MigrationState, error)
}

var _ migrator = (*postgres.Store)(nil)

func main() {
	var (
		direction string
		steps     int
		dsn       string
	)

	flag.StringVar(&direction, "direction", "up", "migration direction: up|down|status")
	flag.IntVar(&steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	flag.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: CREDITMARKET_POSTGRES_DSN)")
	flag.Parse()

	dsn, err := resolveDSN(dsn, os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		fail("open postgres store: %v", err)
	}
	defer store.Close()

	report, err := runMigration(ctx, store, direction, steps)
	if err != nil {
		fail("%v", err)
	}
	fmt.Println(report)
}

// resolveDSN берёт DSN из флага, иначе из окружения сервиса.
func resolveDSN(flagDSN string, getenv func(string) string) (string, error) {
	if dsn := strings.TrimSpace(flagDSN); dsn != "" {
		return dsn, nil
	}
	cfg := appconfig.Default()
	if err := appconfig.ApplyEnv(getenv, &cfg); err != nil {
		return "", err
	}
	if dsn := strings.TrimSpace(cfg.PostgresDSN); dsn != "" {
		return dsn, nil
	}
	return "", fmt.Errorf("%sPOSTGRES_DSN (or -dsn) is required", appconfig.EnvPrefix)
}

func runMigration(ctx context.Context, store migrator, direction string, steps int) (string, error) {
	var action string
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "up":
		if err := store.MigrateUp(ctx, steps); err != nil {
			return "", fmt.Errorf("migrate up failed: %w", err)
		}
		action = "migrate up ok"
	case "down":
		if steps <= 0 {
			steps = 1
		}
		if err := store.MigrateDown(ctx, steps); err != nil {
			return "", fmt.Errorf("migrate down failed: %w", err)
		}
		action = "migrate down ok"
	case "status":
		action = "migration status"
	default:
		return "", fmt.Errorf("unsupported direction: %s (use up|down|status)", direction)
	}

	state, err := store.MigrationStatus(ctx)
	if err != nil {
		return "", fmt.Errorf("migration status failed: %w", err)
	}
	return fmt.Sprintf("%s: version=%d applied=%d pending=%d", action, state.Version, state.Applied, state.Pending), nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
