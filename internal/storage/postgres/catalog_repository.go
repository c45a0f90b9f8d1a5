package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

type catalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository создаёт PostgreSQL-каталог товаров.
func NewCatalogRepository(store *Store) domain.CatalogRepository {
	return &catalogRepository{db: store.DB()}
}

func (r *catalogRepository) UpsertProduct(ctx context.Context, p domain.Product) error {
	if p.ID == "" {
		return domain.ErrProductRequired
	}
	if p.ShopID == "" {
		return domain.ErrShopRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, shop_id, name, category, price_minor, in_stock)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE
		SET shop_id = EXCLUDED.shop_id,
		    name = EXCLUDED.name,
		    category = EXCLUDED.category,
		    price_minor = EXCLUDED.price_minor,
		    in_stock = EXCLUDED.in_stock
	`, p.ID, p.ShopID, p.Name, p.Category, p.PriceMinor, p.InStock)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrShopNotFound
		}
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

func (r *catalogRepository) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var p domain.Product
	err := r.db.QueryRowContext(ctx, `
		SELECT id, shop_id, name, category, price_minor, in_stock
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.ShopID, &p.Name, &p.Category, &p.PriceMinor, &p.InStock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *catalogRepository) ListByShop(ctx context.Context, shopID string) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, shop_id, name, category, price_minor, in_stock
		FROM products
		WHERE shop_id = $1
		ORDER BY name, id
	`, shopID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var result []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.ShopID, &p.Name, &p.Category, &p.PriceMinor, &p.InStock); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return result, nil
}

var _ domain.CatalogRepository = (*catalogRepository)(nil)
