package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

type statementRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.MonthlyStatement
	// byKey — уникальность (customer, month).
	byKey map[string]string
}

// NewStatementRepository создаёт in-memory реализацию StatementRepository.
func NewStatementRepository() domain.StatementRepository {
	return &statementRepositoryInMemory{
		items: make(map[string]domain.MonthlyStatement),
		byKey: make(map[string]string),
	}
}

func (r *statementRepositoryInMemory) Create(_ context.Context, st domain.MonthlyStatement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := periodKey(st.CustomerID, st.Month)
	if _, exists := r.byKey[key]; exists {
		return domain.ErrAlreadyExists
	}
	if _, exists := r.items[st.ID]; exists {
		return domain.ErrAlreadyExists
	}
	r.items[st.ID] = st
	r.byKey[key] = st.ID
	return nil
}

func (r *statementRepositoryInMemory) Get(_ context.Context, id string) (domain.MonthlyStatement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.items[id]
	if !ok {
		return domain.MonthlyStatement{}, domain.ErrStatementNotFound
	}
	return st, nil
}

func (r *statementRepositoryInMemory) GetByCustomerMonth(_ context.Context, customerID string, month domain.Month) (domain.MonthlyStatement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byKey[periodKey(customerID, month)]
	if !ok {
		return domain.MonthlyStatement{}, domain.ErrStatementNotFound
	}
	return r.items[id], nil
}

func (r *statementRepositoryInMemory) Save(_ context.Context, st domain.MonthlyStatement) (domain.MonthlyStatement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[st.ID]
	if !ok {
		return domain.MonthlyStatement{}, domain.ErrStatementNotFound
	}
	if current.Version != st.Version {
		return domain.MonthlyStatement{}, domain.ErrVersionConflict
	}
	st.Version++
	st.UpdatedAt = time.Now().UTC()
	r.items[st.ID] = st
	return st, nil
}

func (r *statementRepositoryInMemory) List(_ context.Context, filter domain.StatementFilter) ([]domain.MonthlyStatement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.MonthlyStatement, 0)
	for _, st := range r.items {
		if filter.Match(st) {
			result = append(result, st)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Month != result[j].Month {
			return result[i].Month.Start().After(result[j].Month.Start())
		}
		return result[i].CustomerID < result[j].CustomerID
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func periodKey(ownerID string, month domain.Month) string {
	return ownerID + "|" + month.String()
}

var _ domain.StatementRepository = (*statementRepositoryInMemory)(nil)
