package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

type transactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository создаёт PostgreSQL-реализацию TransactionRepository.
// Позиции покупки хранятся снимком в JSONB: после создания они не меняются.
func NewTransactionRepository(store *Store) domain.TransactionRepository {
	return &transactionRepository{db: store.DB()}
}

type transactionLineRow struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Qty            int32  `json:"qty"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
}

const transactionColumns = `id, checkout_id, customer_id, shop_id, lines, total_amount_minor, status, created_at, updated_at`

func (r *transactionRepository) Create(ctx context.Context, tx domain.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	lines, err := encodeTransactionLines(tx.Lines)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		tx.ID, tx.CheckoutID, tx.CustomerID, tx.ShopID, lines, tx.TotalAmountMinor,
		string(tx.Status), tx.CreatedAt.UTC(), tx.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *transactionRepository) Get(ctx context.Context, id string) (domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := scanTransaction(r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Transaction{}, domain.ErrTransactionNotFound
		}
		return domain.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

// UpdateStatus допускает только переход из pending; остальное — ErrInvalidTransactionTransition.
func (r *transactionRepository) UpdateStatus(ctx context.Context, id string, status domain.TransactionStatus) error {
	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if err := current.TransitionTo(status, now); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = 'pending'
	`, string(status), now, id)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for transaction status: %w", err)
	}
	if affected == 0 {
		return domain.ErrInvalidTransactionTransition
	}
	return nil
}

func (r *transactionRepository) ListByCheckout(ctx context.Context, checkoutID string) ([]domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE checkout_id = $1
		ORDER BY created_at DESC, id DESC
	`, checkoutID)
	if err != nil {
		return nil, fmt.Errorf("list transactions by checkout: %w", err)
	}
	return collectTransactions(rows)
}

func (r *transactionRepository) List(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.CustomerID != "" {
		add("customer_id = $%d", filter.CustomerID)
	}
	if filter.ShopID != "" {
		add("shop_id = $%d", filter.ShopID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From.UTC())
	}
	if !filter.Before.IsZero() {
		add("created_at < $%d", filter.Before.UTC())
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return collectTransactions(rows)
}

func collectTransactions(rows *sql.Rows) ([]domain.Transaction, error) {
	defer rows.Close()

	result := make([]domain.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return result, nil
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var (
		tx        domain.Transaction
		linesRaw  []byte
		statusRaw string
	)
	if err := row.Scan(
		&tx.ID,
		&tx.CheckoutID,
		&tx.CustomerID,
		&tx.ShopID,
		&linesRaw,
		&tx.TotalAmountMinor,
		&statusRaw,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	); err != nil {
		return domain.Transaction{}, err
	}

	tx.Status = domain.TransactionStatus(statusRaw)
	if !tx.Status.Valid() {
		return domain.Transaction{}, fmt.Errorf("invalid transaction status %q for %s", statusRaw, tx.ID)
	}
	lines, err := decodeTransactionLines(linesRaw)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("transaction %s: %w", tx.ID, err)
	}
	tx.Lines = lines
	tx.CreatedAt = tx.CreatedAt.UTC()
	tx.UpdatedAt = tx.UpdatedAt.UTC()
	return tx, nil
}

func encodeTransactionLines(lines []domain.TransactionLine) ([]byte, error) {
	rows := make([]transactionLineRow, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, transactionLineRow{
			ProductID:      l.ProductID,
			ProductName:    l.ProductName,
			Qty:            l.Qty,
			UnitPriceMinor: l.UnitPriceMinor,
		})
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encode transaction lines: %w", err)
	}
	return raw, nil
}

func decodeTransactionLines(raw []byte) ([]domain.TransactionLine, error) {
	var rows []transactionLineRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode transaction lines: %w", err)
	}
	lines := make([]domain.TransactionLine, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, domain.TransactionLine{
			ProductID:      r.ProductID,
			ProductName:    r.ProductName,
			Qty:            r.Qty,
			UnitPriceMinor: r.UnitPriceMinor,
		})
	}
	return lines, nil
}

var _ domain.TransactionRepository = (*transactionRepository)(nil)
