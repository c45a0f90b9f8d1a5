package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

type catalogRepositoryInMemory struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

// NewCatalogRepository создаёт in-memory каталог товаров.
func NewCatalogRepository() domain.CatalogRepository {
	return &catalogRepositoryInMemory{products: make(map[string]domain.Product)}
}

func (r *catalogRepositoryInMemory) UpsertProduct(_ context.Context, p domain.Product) error {
	if p.ID == "" {
		return domain.ErrProductRequired
	}
	if p.ShopID == "" {
		return domain.ErrShopRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.products[p.ID] = p
	return nil
}

func (r *catalogRepositoryInMemory) GetProduct(_ context.Context, id string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

func (r *catalogRepositoryInMemory) ListByShop(_ context.Context, shopID string) ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Product
	for _, p := range r.products {
		if p.ShopID == shopID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

var _ domain.CatalogRepository = (*catalogRepositoryInMemory)(nil)
