package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/creditmarket/internal/app"
	"github.com/vladislavdragonenkov/creditmarket/internal/config"
	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

// closeMonth подменяется в тестах.
var closeMonth = app.CloseMonth

func main() {
	_ = godotenv.Load()
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	var monthRaw string
	flag.StringVar(&monthRaw, "month", "", "month to close as YYYY-MM (default: previous month)")
	flag.Parse()

	month, err := resolveMonth(monthRaw, time.Now().UTC())
	if err != nil {
		fail("%v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fail("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := closeMonth(ctx, cfg, month)
	if err != nil {
		fail("month close failed: %v", err)
	}
	fmt.Println(report(result.Month, result.Statements.Created+result.Statements.Updated,
		result.Settlements.Created+result.Settlements.Updated, result.Failed()))
	if result.Failed() > 0 {
		os.Exit(2)
	}
}

// resolveMonth разбирает -month; пустое значение означает предыдущий месяц.
func resolveMonth(raw string, now time.Time) (domain.Month, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.MonthOf(now).Prev(), nil
	}
	month, err := domain.ParseMonth(raw)
	if err != nil {
		return domain.Month{}, fmt.Errorf("invalid -month %q: %w", raw, err)
	}
	return month, nil
}

func report(month domain.Month, statements, settlements, failed int) string {
	return fmt.Sprintf("month %s closed: statements=%d settlements=%d failed=%d", month, statements, settlements, failed)
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
