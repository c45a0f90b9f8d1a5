package domain

import (
	"context"
	"time"
)

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// LedgerRepository хранит журнал движений кредита.
type LedgerRepository interface {
	Append(ctx context.Context, event LedgerEvent) error
	List(ctx context.Context, customerID string) ([]LedgerEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, method, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, statusCode int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, statusCode int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// CheckoutStage задаёт константы стадий оформления для метрик/логов.
type CheckoutStage string

const (
	CheckoutStageIdle       CheckoutStage = "idle"
	CheckoutStageValidating CheckoutStage = "validating"
	CheckoutStageApproved   CheckoutStage = "approved"
	CheckoutStageRejected   CheckoutStage = "rejected"
)

// Агрегаты, события которых попадают в outbox.
const (
	AggregateAccount     = "account"
	AggregateTransaction = "transaction"
	AggregateStatement   = "statement"
	AggregateSettlement  = "settlement"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStatus — состояние записи outbox.
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "pending"
	OutboxStatusSent    OutboxStatus = "sent"
	// OutboxStatusFailed — исчерпаны попытки; событие ушло в DLQ или потеряно для Kafka.
	OutboxStatusFailed OutboxStatus = "failed"
)

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
	// PendingByAggregate — backlog по типу агрегата (account, statement, ...).
	PendingByAggregate map[string]int
}
