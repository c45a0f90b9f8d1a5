package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

type accountRepository struct {
	db *sql.DB
}

// NewAccountRepository создаёт PostgreSQL-реализацию AccountRepository.
func NewAccountRepository(store *Store) domain.AccountRepository {
	return &accountRepository{db: store.DB()}
}

func (r *accountRepository) Create(ctx context.Context, account domain.CreditAccount) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO credit_accounts (
			customer_id, credit_limit_minor, credit_used_minor, credit_available_minor,
			version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		account.CustomerID, account.CreditLimitMinor, account.CreditUsedMinor, account.CreditAvailableMinor,
		account.Version, account.CreatedAt.UTC(), account.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAccountAlreadyExists
		}
		return fmt.Errorf("insert credit account: %w", err)
	}
	return nil
}

func (r *accountRepository) Get(ctx context.Context, customerID string) (domain.CreditAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	account, err := scanAccount(r.db.QueryRowContext(ctx, `
		SELECT customer_id, credit_limit_minor, credit_used_minor, credit_available_minor,
		       version, created_at, updated_at
		FROM credit_accounts
		WHERE customer_id = $1
	`, customerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CreditAccount{}, domain.ErrAccountNotFound
		}
		return domain.CreditAccount{}, fmt.Errorf("get credit account: %w", err)
	}
	return account, nil
}

// Save обновляет счёт только если версия в базе совпадает с account.Version.
func (r *accountRepository) Save(ctx context.Context, account domain.CreditAccount) (domain.CreditAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE credit_accounts
		SET credit_limit_minor = $1,
		    credit_used_minor = $2,
		    credit_available_minor = $3,
		    version = version + 1,
		    updated_at = $4
		WHERE customer_id = $5 AND version = $6
	`,
		account.CreditLimitMinor, account.CreditUsedMinor, account.CreditAvailableMinor,
		now, account.CustomerID, account.Version,
	)
	if err != nil {
		return domain.CreditAccount{}, fmt.Errorf("update credit account: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.CreditAccount{}, fmt.Errorf("rows affected for credit account: %w", err)
	}
	if affected == 0 {
		if _, getErr := r.Get(ctx, account.CustomerID); errors.Is(getErr, domain.ErrAccountNotFound) {
			return domain.CreditAccount{}, domain.ErrAccountNotFound
		}
		return domain.CreditAccount{}, domain.ErrVersionConflict
	}

	account.Version++
	account.UpdatedAt = now
	return account, nil
}

func (r *accountRepository) List(ctx context.Context) ([]domain.CreditAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT customer_id, credit_limit_minor, credit_used_minor, credit_available_minor,
		       version, created_at, updated_at
		FROM credit_accounts
		ORDER BY customer_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list credit accounts: %w", err)
	}
	defer rows.Close()

	result := make([]domain.CreditAccount, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credit account: %w", err)
		}
		result = append(result, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credit accounts: %w", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (domain.CreditAccount, error) {
	var a domain.CreditAccount
	if err := row.Scan(
		&a.CustomerID,
		&a.CreditLimitMinor,
		&a.CreditUsedMinor,
		&a.CreditAvailableMinor,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return domain.CreditAccount{}, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

var _ domain.AccountRepository = (*accountRepository)(nil)
