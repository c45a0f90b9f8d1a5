package credit

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

// RetryConfig конфигурация повторов при конфликте версий (счёта, корзины).
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  10 * time.Millisecond,
		MaxDelay:      500 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

// RetryOnConflict повторяет op, пока она возвращает ErrVersionConflict.
// Другие ошибки возвращаются сразу: бизнес-отказы повтором не лечатся.
func RetryOnConflict(ctx context.Context, cfg RetryConfig, logger *log.Entry, customerID string, op func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	delay := cfg.InitialDelay

	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err = op()
		if err == nil || !domain.IsVersionConflict(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		logger.WithFields(log.Fields{
			"customer_id": customerID,
			"attempt":     attempt,
			"delay":       delay,
		}).Warn("version conflict, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	logger.WithError(err).WithFields(log.Fields{
		"customer_id":  customerID,
		"max_attempts": cfg.MaxAttempts,
	}).Error("update failed after all retry attempts")
	return err
}
