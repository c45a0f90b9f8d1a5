package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

type directoryRepositoryInMemory struct {
	mu        sync.RWMutex
	customers map[string]domain.Customer
	shops     map[string]domain.Shop
}

// NewDirectoryRepository создаёт in-memory справочник клиентов и магазинов.
func NewDirectoryRepository() domain.DirectoryRepository {
	return &directoryRepositoryInMemory{
		customers: make(map[string]domain.Customer),
		shops:     make(map[string]domain.Shop),
	}
}

func (r *directoryRepositoryInMemory) UpsertCustomer(_ context.Context, c domain.Customer) error {
	if c.ID == "" {
		return domain.ErrCustomerRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.customers[c.ID] = c
	return nil
}

func (r *directoryRepositoryInMemory) GetCustomer(_ context.Context, id string) (domain.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.customers[id]
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return c, nil
}

func (r *directoryRepositoryInMemory) SearchCustomers(_ context.Context, q domain.DirectoryQuery) ([]domain.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Customer, 0)
	for _, c := range r.customers {
		if q.MatchCustomer(c) {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

func (r *directoryRepositoryInMemory) UpsertShop(_ context.Context, s domain.Shop) error {
	if s.ID == "" {
		return domain.ErrShopRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.shops[s.ID] = s
	return nil
}

func (r *directoryRepositoryInMemory) GetShop(_ context.Context, id string) (domain.Shop, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.shops[id]
	if !ok {
		return domain.Shop{}, domain.ErrShopNotFound
	}
	return s, nil
}

func (r *directoryRepositoryInMemory) SearchShops(_ context.Context, q domain.DirectoryQuery) ([]domain.Shop, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Shop, 0)
	for _, s := range r.shops {
		if q.MatchShop(s) {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ShopName < result[j].ShopName })
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

var _ domain.DirectoryRepository = (*directoryRepositoryInMemory)(nil)
