package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

type directoryRepository struct {
	db *sql.DB
}

// NewDirectoryRepository создаёт PostgreSQL-справочник клиентов и магазинов.
func NewDirectoryRepository(store *Store) domain.DirectoryRepository {
	return &directoryRepository{db: store.DB()}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *directoryRepository) UpsertCustomer(ctx context.Context, c domain.Customer) error {
	if c.ID == "" {
		return domain.ErrCustomerRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, email, phone, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    email = EXCLUDED.email,
		    phone = EXCLUDED.phone,
		    status = EXCLUDED.status
	`, c.ID, c.Name, c.Email, c.Phone, string(c.Status), c.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert customer: %w", err)
	}
	return nil
}

func (r *directoryRepository) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	c, err := scanCustomer(r.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, status, created_at
		FROM customers
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Customer{}, domain.ErrCustomerNotFound
		}
		return domain.Customer{}, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}

// SearchCustomers ищет подстроку в имени, email и телефоне без учёта регистра.
func (r *directoryRepository) SearchCustomers(ctx context.Context, q domain.DirectoryQuery) ([]domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args := directorySearchQuery(
		`SELECT id, name, email, phone, status, created_at FROM customers`,
		[]string{"name", "email", "phone"}, "name", q)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search customers: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Customer, 0)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customers: %w", err)
	}
	return result, nil
}

func (r *directoryRepository) UpsertShop(ctx context.Context, s domain.Shop) error {
	if s.ID == "" {
		return domain.ErrShopRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO shops (id, shop_name, owner_name, email, phone, category, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE
		SET shop_name = EXCLUDED.shop_name,
		    owner_name = EXCLUDED.owner_name,
		    email = EXCLUDED.email,
		    phone = EXCLUDED.phone,
		    category = EXCLUDED.category,
		    status = EXCLUDED.status
	`, s.ID, s.ShopName, s.OwnerName, s.Email, s.Phone, s.Category, string(s.Status), s.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert shop: %w", err)
	}
	return nil
}

func (r *directoryRepository) GetShop(ctx context.Context, id string) (domain.Shop, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	s, err := scanShop(r.db.QueryRowContext(ctx, `
		SELECT id, shop_name, owner_name, email, phone, category, status, created_at
		FROM shops
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Shop{}, domain.ErrShopNotFound
		}
		return domain.Shop{}, fmt.Errorf("get shop: %w", err)
	}
	return s, nil
}

func (r *directoryRepository) SearchShops(ctx context.Context, q domain.DirectoryQuery) ([]domain.Shop, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args := directorySearchQuery(
		`SELECT id, shop_name, owner_name, email, phone, category, status, created_at FROM shops`,
		[]string{"shop_name", "owner_name", "email", "phone"}, "shop_name", q)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search shops: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Shop, 0)
	for rows.Next() {
		s, err := scanShop(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shop: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shops: %w", err)
	}
	return result, nil
}

func directorySearchQuery(base string, textColumns []string, orderBy string, q domain.DirectoryQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if text := strings.TrimSpace(q.Text); text != "" {
		args = append(args, "%"+likeEscaper.Replace(text)+"%")
		ors := make([]string, 0, len(textColumns))
		for _, col := range textColumns {
			ors = append(ors, fmt.Sprintf("%s ILIKE $%d", col, len(args)))
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}
	if q.Status != "" {
		args = append(args, string(q.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	query := base
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY " + orderBy + ", id"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

func scanCustomer(row rowScanner) (domain.Customer, error) {
	var (
		c         domain.Customer
		statusRaw string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &statusRaw, &c.CreatedAt); err != nil {
		return domain.Customer{}, err
	}
	c.Status = domain.ApprovalStatus(statusRaw)
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

func scanShop(row rowScanner) (domain.Shop, error) {
	var (
		s         domain.Shop
		statusRaw string
	)
	if err := row.Scan(&s.ID, &s.ShopName, &s.OwnerName, &s.Email, &s.Phone, &s.Category, &statusRaw, &s.CreatedAt); err != nil {
		return domain.Shop{}, err
	}
	s.Status = domain.ApprovalStatus(statusRaw)
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}

var _ domain.DirectoryRepository = (*directoryRepository)(nil)
