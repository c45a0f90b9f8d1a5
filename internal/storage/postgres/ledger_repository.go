package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

type ledgerRepository struct {
	db *sql.DB
}

// NewLedgerRepository создаёт PostgreSQL-реализацию журнала движений кредита.
func NewLedgerRepository(store *Store) domain.LedgerRepository {
	return &ledgerRepository{db: store.DB()}
}

func (r *ledgerRepository) Append(ctx context.Context, event domain.LedgerEvent) error {
	if event.CustomerID == "" {
		return domain.ErrCustomerRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	occurred := event.Occurred
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ledger_events (customer_id, event_type, amount_minor, reference, reason, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, event.CustomerID, event.Type, event.AmountMinor, event.Reference, event.Reason, occurred.UTC())
	if err != nil {
		return fmt.Errorf("insert ledger event: %w", err)
	}
	return nil
}

// List возвращает движения по счёту в хронологическом порядке.
func (r *ledgerRepository) List(ctx context.Context, customerID string) ([]domain.LedgerEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT customer_id, event_type, amount_minor, reference, reason, occurred_at
		FROM ledger_events
		WHERE customer_id = $1
		ORDER BY occurred_at ASC, id ASC
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("query ledger events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.LedgerEvent, 0)
	for rows.Next() {
		var e domain.LedgerEvent
		if err := rows.Scan(&e.CustomerID, &e.Type, &e.AmountMinor, &e.Reference, &e.Reason, &e.Occurred); err != nil {
			return nil, fmt.Errorf("scan ledger event: %w", err)
		}
		e.Occurred = e.Occurred.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger events: %w", err)
	}
	return events, nil
}

var _ domain.LedgerRepository = (*ledgerRepository)(nil)
