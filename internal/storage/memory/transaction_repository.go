package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

// transactionRepositoryInMemory хранит журнал покупок в памяти.
type transactionRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Transaction
}

// NewTransactionRepository создаёт in-memory реализацию TransactionRepository.
func NewTransactionRepository() domain.TransactionRepository {
	return &transactionRepositoryInMemory{items: make(map[string]domain.Transaction)}
}

func (r *transactionRepositoryInMemory) Create(_ context.Context, tx domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[tx.ID]; exists {
		return domain.ErrAlreadyExists
	}
	r.items[tx.ID] = cloneTransaction(tx)
	return nil
}

func (r *transactionRepositoryInMemory) Get(_ context.Context, id string) (domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, ok := r.items[id]
	if !ok {
		return domain.Transaction{}, domain.ErrTransactionNotFound
	}
	return cloneTransaction(tx), nil
}

func (r *transactionRepositoryInMemory) UpdateStatus(_ context.Context, id string, status domain.TransactionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.items[id]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	if err := tx.TransitionTo(status, time.Now().UTC()); err != nil {
		return err
	}
	r.items[id] = tx
	return nil
}

func (r *transactionRepositoryInMemory) ListByCheckout(_ context.Context, checkoutID string) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Transaction
	for _, tx := range r.items {
		if tx.CheckoutID == checkoutID {
			result = append(result, cloneTransaction(tx))
		}
	}
	sortTransactions(result)
	return result, nil
}

// List возвращает транзакции по фильтру, новые первыми, ограничивая выборку Limit (если >0).
func (r *transactionRepositoryInMemory) List(_ context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Transaction, 0)
	for _, tx := range r.items {
		if filter.Match(tx) {
			result = append(result, cloneTransaction(tx))
		}
	}
	sortTransactions(result)
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func sortTransactions(txs []domain.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
			return txs[i].CreatedAt.After(txs[j].CreatedAt)
		}
		return txs[i].ID > txs[j].ID
	})
}

func cloneTransaction(src domain.Transaction) domain.Transaction {
	dst := src
	dst.Lines = append([]domain.TransactionLine(nil), src.Lines...)
	return dst
}

var _ domain.TransactionRepository = (*transactionRepositoryInMemory)(nil)
