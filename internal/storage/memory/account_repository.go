package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

// accountRepositoryInMemory — in-memory реализация AccountRepository.
type accountRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.CreditAccount
}

// NewAccountRepository возвращает in-memory репозиторий кредитных счетов для локальной разработки и тестов.
func NewAccountRepository() domain.AccountRepository {
	return &accountRepositoryInMemory{items: make(map[string]domain.CreditAccount)}
}

func (r *accountRepositoryInMemory) Create(_ context.Context, account domain.CreditAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[account.CustomerID]; exists {
		return domain.ErrAccountAlreadyExists
	}
	r.items[account.CustomerID] = account
	return nil
}

func (r *accountRepositoryInMemory) Get(_ context.Context, customerID string) (domain.CreditAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.items[customerID]
	if !ok {
		return domain.CreditAccount{}, domain.ErrAccountNotFound
	}
	return account, nil
}

// Save перезаписывает счёт, проверяя версию (optimistic locking).
func (r *accountRepositoryInMemory) Save(_ context.Context, account domain.CreditAccount) (domain.CreditAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[account.CustomerID]
	if !ok {
		return domain.CreditAccount{}, domain.ErrAccountNotFound
	}
	if current.Version != account.Version {
		return domain.CreditAccount{}, domain.ErrVersionConflict
	}
	account.Version++
	account.UpdatedAt = time.Now().UTC()
	r.items[account.CustomerID] = account
	return account, nil
}

func (r *accountRepositoryInMemory) List(_ context.Context) ([]domain.CreditAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.CreditAccount, 0, len(r.items))
	for _, account := range r.items {
		result = append(result, account)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CustomerID < result[j].CustomerID })
	return result, nil
}

var _ domain.AccountRepository = (*accountRepositoryInMemory)(nil)
