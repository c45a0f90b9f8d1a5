package cart

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/credit"
)

// Quote — данные для предупреждения о нехватке лимита до оформления.
type Quote struct {
	SubtotalMinor  int64
	AvailableMinor int64
	CanAfford      bool
	ShortfallMinor int64
}

// Service управляет корзиной клиента.
type Service struct {
	carts     domain.CartRepository
	catalog   domain.CatalogRepository
	directory domain.DirectoryRepository
	credit    *credit.Service
	locks     *credit.KeyedMutex
	maxQty    int32
	retry     credit.RetryConfig
	logger    *log.Entry
}

// Option настраивает Service.
type Option func(*Service)

// WithMaxLineQty ограничивает количество в одной позиции; значения < 1 игнорируются.
func WithMaxLineQty(n int32) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxQty = n
		}
	}
}

// NewService создаёт сервис корзины. directory может быть nil, тогда статус магазина не проверяется.
func NewService(
	carts domain.CartRepository,
	catalog domain.CatalogRepository,
	directory domain.DirectoryRepository,
	creditSvc *credit.Service,
	logger *log.Entry,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = log.WithField("component", "cart")
	}
	s := &Service{
		carts:     carts,
		catalog:   catalog,
		directory: directory,
		credit:    creditSvc,
		locks:     credit.NewKeyedMutex(),
		maxQty:    domain.MaxLineQty,
		retry:     credit.DefaultRetryConfig(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get возвращает корзину клиента; если её нет, пустую с новым токеном оформления.
func (s *Service) Get(ctx context.Context, customerID string) (domain.Cart, error) {
	if customerID == "" {
		return domain.Cart{}, domain.ErrCustomerRequired
	}
	cart, err := s.carts.Get(ctx, customerID)
	if errors.Is(err, domain.ErrCartNotFound) {
		return domain.NewCart(customerID), nil
	}
	return cart, err
}

// AddItem добавляет товар по текущей цене каталога.
func (s *Service) AddItem(ctx context.Context, customerID, productID string, qty int32) (domain.Cart, error) {
	if qty < 1 || qty > s.maxQty {
		return domain.Cart{}, domain.ErrInvalidQuantity
	}
	product, err := s.availableProduct(ctx, productID)
	if err != nil {
		return domain.Cart{}, err
	}
	return s.mutate(ctx, customerID, func(c *domain.Cart) error {
		if err := c.AddItem(product, qty); err != nil {
			return err
		}
		return s.checkLineQty(c, productID)
	})
}

// UpdateQuantity меняет количество на delta, не опуская его ниже 1.
func (s *Service) UpdateQuantity(ctx context.Context, customerID, productID string, delta int32) (domain.Cart, error) {
	return s.mutate(ctx, customerID, func(c *domain.Cart) error {
		if _, err := c.UpdateQuantity(productID, delta); err != nil {
			return err
		}
		return s.checkLineQty(c, productID)
	})
}

// checkLineQty отклоняет изменение, после которого позиция превышает лимит.
// Корзина в этом случае не сохраняется.
func (s *Service) checkLineQty(c *domain.Cart, productID string) error {
	for _, l := range c.Lines {
		if l.ProductID == productID && l.Qty > s.maxQty {
			return domain.ErrInvalidQuantity
		}
	}
	return nil
}

// RemoveItem удаляет позицию; повторное удаление ничего не меняет.
func (s *Service) RemoveItem(ctx context.Context, customerID, productID string) (domain.Cart, error) {
	return s.mutate(ctx, customerID, func(c *domain.Cart) error {
		c.RemoveItem(productID)
		return nil
	})
}

// Clear очищает корзину и меняет токен оформления.
func (s *Service) Clear(ctx context.Context, customerID string) (domain.Cart, error) {
	return s.mutate(ctx, customerID, func(c *domain.Cart) error {
		c.Clear()
		return nil
	})
}

// Quote считает подытог и сравнивает его с доступным лимитом. Ничего не резервирует.
func (s *Service) Quote(ctx context.Context, customerID string) (Quote, error) {
	cart, err := s.Get(ctx, customerID)
	if err != nil {
		return Quote{}, err
	}
	subtotal := cart.Subtotal()
	ok, account, err := s.credit.CanAfford(ctx, customerID, subtotal)
	if err != nil {
		return Quote{}, err
	}
	q := Quote{
		SubtotalMinor:  subtotal,
		AvailableMinor: account.CreditAvailableMinor,
		CanAfford:      ok,
	}
	if !ok {
		q.ShortfallMinor = subtotal - account.CreditAvailableMinor
	}
	return q, nil
}

// Lock даёт оформлению эксклюзивный доступ к корзине на время чтения и очистки.
func (s *Service) Lock(ctx context.Context, customerID string) (func(), error) {
	return s.locks.Lock(ctx, customerID)
}

// Save сохраняет корзину; вызывающий должен держать Lock. Корзина, изменённая
// другой репликой после чтения, не перезаписывается (ErrVersionConflict).
func (s *Service) Save(ctx context.Context, cart domain.Cart) error {
	return s.carts.Save(ctx, cart)
}

// mutate читает, меняет и сохраняет корзину. Блокировка сериализует вызовы внутри
// процесса, версия в хранилище ловит гонку с другими репликами: тогда изменение
// применяется заново к свежей корзине.
func (s *Service) mutate(ctx context.Context, customerID string, change func(c *domain.Cart) error) (domain.Cart, error) {
	unlock, err := s.locks.Lock(ctx, customerID)
	if err != nil {
		return domain.Cart{}, err
	}
	defer unlock()

	var cart domain.Cart
	err = credit.RetryOnConflict(ctx, s.retry, s.logger, customerID, func() error {
		current, err := s.Get(ctx, customerID)
		if err != nil {
			return err
		}
		if err := change(&current); err != nil {
			return err
		}
		if err := s.carts.Save(ctx, current); err != nil {
			if !domain.IsVersionConflict(err) {
				s.logger.WithError(err).WithField("customer_id", customerID).Error("save cart failed")
			}
			return err
		}
		current.Version++
		cart = current
		return nil
	})
	if err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

func (s *Service) availableProduct(ctx context.Context, productID string) (domain.Product, error) {
	if productID == "" {
		return domain.Product{}, domain.ErrProductRequired
	}
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if !product.InStock {
		return domain.Product{}, domain.ErrProductUnavailable
	}
	if s.directory != nil {
		shop, err := s.directory.GetShop(ctx, product.ShopID)
		if err != nil || shop.Status != domain.ApprovalStatusApproved {
			s.logger.WithFields(log.Fields{
				"product_id": productID,
				"shop_id":    product.ShopID,
			}).Debug("product of unapproved shop rejected")
			return domain.Product{}, domain.ErrProductUnavailable
		}
	}
	return product, nil
}

