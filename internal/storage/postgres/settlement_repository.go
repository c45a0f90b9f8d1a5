package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

type settlementRepository struct {
	db *sql.DB
}

// NewSettlementRepository создаёт PostgreSQL-реализацию SettlementRepository.
func NewSettlementRepository(store *Store) domain.SettlementRepository {
	return &settlementRepository{db: store.DB()}
}

const settlementColumns = `id, shop_id, month, amount_minor, status, settled_at, cutoff_at, version, created_at, updated_at`

func (r *settlementRepository) Create(ctx context.Context, s domain.ShopSettlement) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO shop_settlements (`+settlementColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		s.ID, s.ShopID, s.Month.String(), s.AmountMinor, string(s.Status), nullTime(s.SettledAt),
		s.CutoffAt.UTC(), s.Version, s.CreatedAt.UTC(), s.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert settlement: %w", err)
	}
	return nil
}

func (r *settlementRepository) Get(ctx context.Context, id string) (domain.ShopSettlement, error) {
	return r.getOne(ctx, `SELECT `+settlementColumns+` FROM shop_settlements WHERE id = $1`, id)
}

func (r *settlementRepository) GetByShopMonth(ctx context.Context, shopID string, month domain.Month) (domain.ShopSettlement, error) {
	return r.getOne(ctx,
		`SELECT `+settlementColumns+` FROM shop_settlements WHERE shop_id = $1 AND month = $2`,
		shopID, month.String())
}

func (r *settlementRepository) getOne(ctx context.Context, query string, args ...any) (domain.ShopSettlement, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	s, err := scanSettlement(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ShopSettlement{}, domain.ErrSettlementNotFound
		}
		return domain.ShopSettlement{}, fmt.Errorf("get settlement: %w", err)
	}
	return s, nil
}

// Save применяет изменения с проверкой версии; из двух параллельных MarkSettled проходит один.
func (r *settlementRepository) Save(ctx context.Context, s domain.ShopSettlement) (domain.ShopSettlement, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE shop_settlements
		SET amount_minor = $1,
		    status = $2,
		    settled_at = $3,
		    cutoff_at = $4,
		    version = version + 1,
		    updated_at = $5
		WHERE id = $6 AND version = $7
	`,
		s.AmountMinor, string(s.Status), nullTime(s.SettledAt), s.CutoffAt.UTC(), now, s.ID, s.Version,
	)
	if err != nil {
		return domain.ShopSettlement{}, fmt.Errorf("update settlement: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.ShopSettlement{}, fmt.Errorf("rows affected for settlement: %w", err)
	}
	if affected == 0 {
		if _, getErr := r.Get(ctx, s.ID); errors.Is(getErr, domain.ErrSettlementNotFound) {
			return domain.ShopSettlement{}, domain.ErrSettlementNotFound
		}
		return domain.ShopSettlement{}, domain.ErrVersionConflict
	}

	s.Version++
	s.UpdatedAt = now
	return s, nil
}

func (r *settlementRepository) List(ctx context.Context, filter domain.SettlementFilter) ([]domain.ShopSettlement, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		conds []string
		args  []any
	)
	if filter.ShopID != "" {
		args = append(args, filter.ShopID)
		conds = append(conds, fmt.Sprintf("shop_id = $%d", len(args)))
	}
	if !filter.Month.IsZero() {
		args = append(args, filter.Month.String())
		conds = append(conds, fmt.Sprintf("month = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + settlementColumns + ` FROM shop_settlements`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY month DESC, shop_id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	result := make([]domain.ShopSettlement, 0)
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settlements: %w", err)
	}
	return result, nil
}

func scanSettlement(row rowScanner) (domain.ShopSettlement, error) {
	var (
		s         domain.ShopSettlement
		monthRaw  string
		statusRaw string
		settledAt sql.NullTime
	)
	if err := row.Scan(
		&s.ID,
		&s.ShopID,
		&monthRaw,
		&s.AmountMinor,
		&statusRaw,
		&settledAt,
		&s.CutoffAt,
		&s.Version,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return domain.ShopSettlement{}, err
	}

	month, err := domain.ParseMonth(monthRaw)
	if err != nil {
		return domain.ShopSettlement{}, err
	}
	s.Month = month
	s.Status = domain.SettlementStatus(statusRaw)
	if !s.Status.Valid() {
		return domain.ShopSettlement{}, fmt.Errorf("invalid settlement status %q for %s", statusRaw, s.ID)
	}
	s.SettledAt = timeOrZero(settledAt)
	s.CutoffAt = s.CutoffAt.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}

var _ domain.SettlementRepository = (*settlementRepository)(nil)
