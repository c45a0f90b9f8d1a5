package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

// ledgerRepositoryInMemory хранит журнал движений кредита в памяти (для разработки/тестов).
type ledgerRepositoryInMemory struct {
	mu     sync.RWMutex
	events map[string][]domain.LedgerEvent
}

// NewLedgerRepository создаёт in-memory реализацию LedgerRepository.
func NewLedgerRepository() domain.LedgerRepository {
	return &ledgerRepositoryInMemory{events: make(map[string][]domain.LedgerEvent)}
}

func (r *ledgerRepositoryInMemory) Append(_ context.Context, event domain.LedgerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := append(r.events[event.CustomerID], event)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Occurred.Before(events[j].Occurred)
	})
	r.events[event.CustomerID] = events
	return nil
}

// List возвращает движения по счёту в хронологическом порядке.
func (r *ledgerRepositoryInMemory) List(_ context.Context, customerID string) ([]domain.LedgerEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := r.events[customerID]
	result := make([]domain.LedgerEvent, len(events))
	copy(result, events)
	return result, nil
}

var _ domain.LedgerRepository = (*ledgerRepositoryInMemory)(nil)
