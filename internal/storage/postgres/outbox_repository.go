package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

const defaultOutboxPullLimit = 100

type outboxRepository struct {
	db *sql.DB
}

func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepository{db: store.DB()}
}

func (r *outboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outbox_messages (id, aggregate_type, aggregate_id, event_type, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload,
		string(domain.OutboxStatusPending), msg.CreatedAt, now)
	if isUniqueViolation(err) {
		return domain.OutboxMessage{}, domain.ErrAlreadyExists
	}
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("enqueue %s event for %s %s: %w", msg.EventType, msg.AggregateType, msg.AggregateID, err)
	}
	return msg, nil
}

// PullPending отдаёт pending-сообщения в порядке записи: события одного счёта
// публикуются в той же последовательности, в которой менялся баланс.
func (r *outboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultOutboxPullLimit
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		FROM outbox_messages
		WHERE status = $1
		ORDER BY created_at, id
		LIMIT $2
	`, string(domain.OutboxStatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("pull pending outbox messages: %w", err)
	}
	defer rows.Close()

	var batch []domain.OutboxMessage
	for rows.Next() {
		var msg domain.OutboxMessage
		if err := rows.Scan(&msg.ID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Payload, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		msg.CreatedAt = msg.CreatedAt.UTC()
		batch = append(batch, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return batch, nil
}

// Stats считает backlog по типам агрегатов одним запросом.
func (r *outboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT aggregate_type, COUNT(*), MIN(created_at)
		FROM outbox_messages
		WHERE status = $1
		GROUP BY aggregate_type
	`, string(domain.OutboxStatusPending))
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox stats query: %w", err)
	}
	defer rows.Close()

	stats := domain.OutboxStats{PendingByAggregate: map[string]int{}}
	for rows.Next() {
		var (
			aggregate string
			count     int
			oldest    time.Time
		)
		if err := rows.Scan(&aggregate, &count, &oldest); err != nil {
			return domain.OutboxStats{}, fmt.Errorf("scan outbox stats: %w", err)
		}
		stats.PendingByAggregate[aggregate] = count
		stats.PendingCount += count
		if stats.OldestPendingAt.IsZero() || oldest.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = oldest.UTC()
		}
	}
	if err := rows.Err(); err != nil {
		return domain.OutboxStats{}, fmt.Errorf("iterate outbox stats: %w", err)
	}
	return stats, nil
}

func (r *outboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.transition(ctx, id, domain.OutboxStatusSent)
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.transition(ctx, id, domain.OutboxStatusFailed)
}

func (r *outboxRepository) transition(ctx context.Context, id string, status domain.OutboxStatus) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE outbox_messages
		SET status = $2, attempt_count = attempt_count + 1, updated_at = $3
		WHERE id = $1
	`, id, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark outbox message %s as %s: %w", id, status, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected for outbox %s: %w", status, err)
	} else if n == 0 {
		return fmt.Errorf("%w: outbox message %s not found", domain.ErrOutboxPublish, id)
	}
	return nil
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
