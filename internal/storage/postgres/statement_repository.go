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

type statementRepository struct {
	db *sql.DB
}

// NewStatementRepository создаёт PostgreSQL-реализацию StatementRepository.
// Уникальность (customer_id, month) держит constraint таблицы.
func NewStatementRepository(store *Store) domain.StatementRepository {
	return &statementRepository{db: store.DB()}
}

const statementColumns = `id, customer_id, month, total_due_minor, paid_amount_minor, due_date,
	payment_status, cutoff_at, version, created_at, updated_at`

func (r *statementRepository) Create(ctx context.Context, st domain.MonthlyStatement) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO monthly_statements (`+statementColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		st.ID, st.CustomerID, st.Month.String(), st.TotalDueMinor, st.PaidAmountMinor, st.DueDate.UTC(),
		string(st.PaymentStatus), st.CutoffAt.UTC(), st.Version, st.CreatedAt.UTC(), st.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert statement: %w", err)
	}
	return nil
}

func (r *statementRepository) Get(ctx context.Context, id string) (domain.MonthlyStatement, error) {
	return r.getOne(ctx, `SELECT `+statementColumns+` FROM monthly_statements WHERE id = $1`, id)
}

func (r *statementRepository) GetByCustomerMonth(ctx context.Context, customerID string, month domain.Month) (domain.MonthlyStatement, error) {
	return r.getOne(ctx,
		`SELECT `+statementColumns+` FROM monthly_statements WHERE customer_id = $1 AND month = $2`,
		customerID, month.String())
}

func (r *statementRepository) getOne(ctx context.Context, query string, args ...any) (domain.MonthlyStatement, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	st, err := scanStatement(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.MonthlyStatement{}, domain.ErrStatementNotFound
		}
		return domain.MonthlyStatement{}, fmt.Errorf("get statement: %w", err)
	}
	return st, nil
}

func (r *statementRepository) Save(ctx context.Context, st domain.MonthlyStatement) (domain.MonthlyStatement, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE monthly_statements
		SET total_due_minor = $1,
		    paid_amount_minor = $2,
		    due_date = $3,
		    payment_status = $4,
		    cutoff_at = $5,
		    version = version + 1,
		    updated_at = $6
		WHERE id = $7 AND version = $8
	`,
		st.TotalDueMinor, st.PaidAmountMinor, st.DueDate.UTC(), string(st.PaymentStatus),
		st.CutoffAt.UTC(), now, st.ID, st.Version,
	)
	if err != nil {
		return domain.MonthlyStatement{}, fmt.Errorf("update statement: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.MonthlyStatement{}, fmt.Errorf("rows affected for statement: %w", err)
	}
	if affected == 0 {
		if _, getErr := r.Get(ctx, st.ID); errors.Is(getErr, domain.ErrStatementNotFound) {
			return domain.MonthlyStatement{}, domain.ErrStatementNotFound
		}
		return domain.MonthlyStatement{}, domain.ErrVersionConflict
	}

	st.Version++
	st.UpdatedAt = now
	return st, nil
}

// List возвращает выписки новыми месяцами вперёд.
func (r *statementRepository) List(ctx context.Context, filter domain.StatementFilter) ([]domain.MonthlyStatement, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		conds []string
		args  []any
	)
	if filter.CustomerID != "" {
		args = append(args, filter.CustomerID)
		conds = append(conds, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if !filter.Month.IsZero() {
		args = append(args, filter.Month.String())
		conds = append(conds, fmt.Sprintf("month = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("payment_status = $%d", len(args)))
	}

	query := `SELECT ` + statementColumns + ` FROM monthly_statements`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY month DESC, customer_id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list statements: %w", err)
	}
	defer rows.Close()

	result := make([]domain.MonthlyStatement, 0)
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan statement: %w", err)
		}
		result = append(result, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statements: %w", err)
	}
	return result, nil
}

func scanStatement(row rowScanner) (domain.MonthlyStatement, error) {
	var (
		st        domain.MonthlyStatement
		monthRaw  string
		statusRaw string
	)
	if err := row.Scan(
		&st.ID,
		&st.CustomerID,
		&monthRaw,
		&st.TotalDueMinor,
		&st.PaidAmountMinor,
		&st.DueDate,
		&statusRaw,
		&st.CutoffAt,
		&st.Version,
		&st.CreatedAt,
		&st.UpdatedAt,
	); err != nil {
		return domain.MonthlyStatement{}, err
	}

	month, err := domain.ParseMonth(monthRaw)
	if err != nil {
		return domain.MonthlyStatement{}, err
	}
	st.Month = month
	st.PaymentStatus = domain.PaymentStatus(statusRaw)
	if !st.PaymentStatus.Valid() {
		return domain.MonthlyStatement{}, fmt.Errorf("invalid payment status %q for %s", statusRaw, st.ID)
	}
	st.DueDate = st.DueDate.UTC()
	st.CutoffAt = st.CutoffAt.UTC()
	st.CreatedAt = st.CreatedAt.UTC()
	st.UpdatedAt = st.UpdatedAt.UTC()
	return st, nil
}

var _ domain.StatementRepository = (*statementRepository)(nil)
