package main

import (
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/creditmarket/internal/config"
)

func TestSetupLogger(t *testing.T) {
	oldFormatter := log.StandardLogger().Formatter
	oldLevel := log.GetLevel()
	defer func() {
		log.SetFormatter(oldFormatter)
		log.SetLevel(oldLevel)
	}()

	cfg := config.Default()
	cfg.LogFormat = "json"
	cfg.LogLevel = "debug"
	setupLogger(cfg)

	if _, ok := log.StandardLogger().Formatter.(*log.JSONFormatter); !ok {
		t.Fatalf("expected json formatter, got %T", log.StandardLogger().Formatter)
	}
	if log.GetLevel() != log.DebugLevel {
		t.Fatalf("unexpected level: %s", log.GetLevel())
	}

	cfg.LogFormat = "text"
	cfg.LogLevel = "loud"
	setupLogger(cfg)

	if _, ok := log.StandardLogger().Formatter.(*log.TextFormatter); !ok {
		t.Fatalf("expected text formatter, got %T", log.StandardLogger().Formatter)
	}
	if log.GetLevel() != log.InfoLevel {
		t.Fatalf("unknown level must fall back to info, got %s", log.GetLevel())
	}
}
