// Package worker содержит общий цикл фоновых воркеров маркетплейса.
package worker

import (
	"context"
	"time"
)

// Loop вызывает tick сразу и затем каждые interval, пока ctx не отменён.
// Следующий tick не начинается, пока не завершился предыдущий.
func Loop(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	if ctx.Err() != nil {
		return
	}
	tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			tick(ctx)
		}
	}
}

// UTCNow — часы по умолчанию для воркеров.
func UTCNow() time.Time {
	return time.Now().UTC()
}
