package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

// cartRepositoryInMemory держит корзины сессий; одна корзина на клиента.
type cartRepositoryInMemory struct {
	mu    sync.RWMutex
	carts map[string]domain.Cart
}

// NewCartRepository создаёт in-memory хранилище корзин.
func NewCartRepository() domain.CartRepository {
	return &cartRepositoryInMemory{carts: make(map[string]domain.Cart)}
}

func (r *cartRepositoryInMemory) Get(_ context.Context, customerID string) (domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, ok := r.carts[customerID]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return cloneCart(cart), nil
}

func (r *cartRepositoryInMemory) Save(_ context.Context, cart domain.Cart) error {
	if cart.CustomerID == "" {
		return domain.ErrCustomerRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if stored := r.carts[cart.CustomerID]; stored.Version != cart.Version {
		return domain.ErrVersionConflict
	}
	cart.Version++
	cart.UpdatedAt = time.Now().UTC()
	r.carts[cart.CustomerID] = cloneCart(cart)
	return nil
}

func (r *cartRepositoryInMemory) Delete(_ context.Context, customerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.carts, customerID)
	return nil
}

func cloneCart(src domain.Cart) domain.Cart {
	dst := src
	dst.Lines = append([]domain.CartLine(nil), src.Lines...)
	return dst
}

var _ domain.CartRepository = (*cartRepositoryInMemory)(nil)
