package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/creditmarket/internal/config"
	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/billing"
)

func TestResolveMonth(t *testing.T) {
	now := time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC)

	month, err := resolveMonth("", now)
	if err != nil {
		t.Fatalf("resolveMonth failed: %v", err)
	}
	if month.String() != "2023-12" {
		t.Fatalf("expected previous month, got %s", month)
	}

	month, err = resolveMonth(" 2023-07 ", now)
	if err != nil || month.String() != "2023-07" {
		t.Fatalf("unexpected month=%s err=%v", month, err)
	}

	if _, err := resolveMonth("July", now); !errors.Is(err, domain.ErrInvalidMonth) {
		t.Fatalf("expected ErrInvalidMonth, got %v", err)
	}
}

func TestReport(t *testing.T) {
	got := report(domain.Month{Year: 2024, Month: time.March}, 4, 2, 1)
	if got != "month 2024-03 closed: statements=4 settlements=2 failed=1" {
		t.Fatalf("unexpected report: %s", got)
	}
}

func TestMain_ClosesRequestedMonth(t *testing.T) {
	oldClose := closeMonth
	oldArgs := os.Args
	oldCommandLine := flag.CommandLine
	defer func() {
		closeMonth = oldClose
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	}()

	var got domain.Month
	closeMonth = func(_ context.Context, _ config.Config, month domain.Month) (billing.Result, error) {
		got = month
		return billing.Result{Month: month}, nil
	}

	os.Args = []string{"monthclose", "-month=2024-02"}
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	main()

	if got.String() != "2024-02" {
		t.Fatalf("unexpected month passed to close: %s", got)
	}
}
