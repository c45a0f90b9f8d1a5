package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

type settlementRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.ShopSettlement
	byKey map[string]string
}

// NewSettlementRepository создаёт in-memory реализацию SettlementRepository.
func NewSettlementRepository() domain.SettlementRepository {
	return &settlementRepositoryInMemory{
		items: make(map[string]domain.ShopSettlement),
		byKey: make(map[string]string),
	}
}

func (r *settlementRepositoryInMemory) Create(_ context.Context, s domain.ShopSettlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := periodKey(s.ShopID, s.Month)
	if _, exists := r.byKey[key]; exists {
		return domain.ErrAlreadyExists
	}
	if _, exists := r.items[s.ID]; exists {
		return domain.ErrAlreadyExists
	}
	r.items[s.ID] = s
	r.byKey[key] = s.ID
	return nil
}

func (r *settlementRepositoryInMemory) Get(_ context.Context, id string) (domain.ShopSettlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.items[id]
	if !ok {
		return domain.ShopSettlement{}, domain.ErrSettlementNotFound
	}
	return s, nil
}

func (r *settlementRepositoryInMemory) GetByShopMonth(_ context.Context, shopID string, month domain.Month) (domain.ShopSettlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byKey[periodKey(shopID, month)]
	if !ok {
		return domain.ShopSettlement{}, domain.ErrSettlementNotFound
	}
	return r.items[id], nil
}

func (r *settlementRepositoryInMemory) Save(_ context.Context, s domain.ShopSettlement) (domain.ShopSettlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[s.ID]
	if !ok {
		return domain.ShopSettlement{}, domain.ErrSettlementNotFound
	}
	if current.Version != s.Version {
		return domain.ShopSettlement{}, domain.ErrVersionConflict
	}
	s.Version++
	s.UpdatedAt = time.Now().UTC()
	r.items[s.ID] = s
	return s, nil
}

func (r *settlementRepositoryInMemory) List(_ context.Context, filter domain.SettlementFilter) ([]domain.ShopSettlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.ShopSettlement, 0)
	for _, s := range r.items {
		if filter.Match(s) {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Month != result[j].Month {
			return result[i].Month.Start().After(result[j].Month.Start())
		}
		return result[i].ShopID < result[j].ShopID
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

var _ domain.SettlementRepository = (*settlementRepositoryInMemory)(nil)
