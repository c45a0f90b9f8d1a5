package directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

// Service — справочник клиентов, магазинов и товаров.
type Service struct {
	directory domain.DirectoryRepository
	catalog   domain.CatalogRepository
	logger    *log.Entry
	now       func() time.Time
	newID     func() string
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock подменяет часы.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator подменяет генератор идентификаторов.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// NewService создаёт справочник.
func NewService(directory domain.DirectoryRepository, catalog domain.CatalogRepository, opts ...Option) *Service {
	s := &Service{
		directory: directory,
		catalog:   catalog,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "directory")
	}
	return s
}

// RegisterCustomer заводит клиента в статусе pending. Пустой ID генерируется.
func (s *Service) RegisterCustomer(ctx context.Context, c domain.Customer) (domain.Customer, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return domain.Customer{}, domain.ErrNameRequired
	}
	if c.ID == "" {
		c.ID = s.newID()
	}
	if c.Status == "" {
		c.Status = domain.ApprovalStatusPending
	}
	if !c.Status.Valid() {
		return domain.Customer{}, fmt.Errorf("customer status %q: %w", c.Status, domain.ErrApprovalStatusInvalid)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	if err := s.directory.UpsertCustomer(ctx, c); err != nil {
		return domain.Customer{}, err
	}
	s.logger.WithFields(log.Fields{"customer_id": c.ID, "status": c.Status}).Info("customer registered")
	return c, nil
}

// RegisterShop заводит магазин в статусе pending.
func (s *Service) RegisterShop(ctx context.Context, shop domain.Shop) (domain.Shop, error) {
	shop.ShopName = strings.TrimSpace(shop.ShopName)
	if shop.ShopName == "" {
		return domain.Shop{}, domain.ErrNameRequired
	}
	if shop.ID == "" {
		shop.ID = s.newID()
	}
	if shop.Status == "" {
		shop.Status = domain.ApprovalStatusPending
	}
	if !shop.Status.Valid() {
		return domain.Shop{}, fmt.Errorf("shop status %q: %w", shop.Status, domain.ErrApprovalStatusInvalid)
	}
	if shop.CreatedAt.IsZero() {
		shop.CreatedAt = s.now()
	}
	if err := s.directory.UpsertShop(ctx, shop); err != nil {
		return domain.Shop{}, err
	}
	s.logger.WithFields(log.Fields{"shop_id": shop.ID, "status": shop.Status}).Info("shop registered")
	return shop, nil
}

// AddProduct добавляет или обновляет товар магазина.
func (s *Service) AddProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	if p.ShopID == "" {
		return domain.Product{}, domain.ErrShopRequired
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return domain.Product{}, domain.ErrNameRequired
	}
	if p.PriceMinor < 0 {
		return domain.Product{}, domain.ErrLinePriceInvalid
	}
	if _, err := s.directory.GetShop(ctx, p.ShopID); err != nil {
		return domain.Product{}, err
	}
	if p.ID == "" {
		p.ID = s.newID()
	}
	if err := s.catalog.UpsertProduct(ctx, p); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

// ListProducts — товары магазина.
func (s *Service) ListProducts(ctx context.Context, shopID string) ([]domain.Product, error) {
	if shopID == "" {
		return nil, domain.ErrShopRequired
	}
	return s.catalog.ListByShop(ctx, shopID)
}

// GetCustomer возвращает клиента.
func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	return s.directory.GetCustomer(ctx, id)
}

// GetShop возвращает магазин.
func (s *Service) GetShop(ctx context.Context, id string) (domain.Shop, error) {
	return s.directory.GetShop(ctx, id)
}

// SearchResult — клиенты и магазины, найденные одним запросом.
type SearchResult struct {
	Customers []domain.Customer
	Shops     []domain.Shop
}

// Search ищет клиентов и магазины по имени, email и телефону без учёта регистра.
// kind сужает поиск до одного типа; пустой kind — оба.
func (s *Service) Search(ctx context.Context, kind domain.SubjectType, q domain.DirectoryQuery) (SearchResult, error) {
	if kind != "" && !kind.Valid() {
		return SearchResult{}, domain.ErrSubjectTypeInvalid
	}

	var result SearchResult
	if kind == "" || kind == domain.SubjectCustomer {
		customers, err := s.directory.SearchCustomers(ctx, q)
		if err != nil {
			return SearchResult{}, fmt.Errorf("search customers: %w", err)
		}
		result.Customers = customers
	}
	if kind == "" || kind == domain.SubjectShop {
		shops, err := s.directory.SearchShops(ctx, q)
		if err != nil {
			return SearchResult{}, fmt.Errorf("search shops: %w", err)
		}
		result.Shops = shops
	}
	return result, nil
}

// SetCustomerStatus меняет статус проверки клиента.
func (s *Service) SetCustomerStatus(ctx context.Context, id string, status domain.ApprovalStatus) (domain.Customer, error) {
	c, err := s.directory.GetCustomer(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	c.Status = status
	if err := s.directory.UpsertCustomer(ctx, c); err != nil {
		return domain.Customer{}, err
	}
	return c, nil
}

// SetShopStatus меняет статус проверки магазина.
func (s *Service) SetShopStatus(ctx context.Context, id string, status domain.ApprovalStatus) (domain.Shop, error) {
	shop, err := s.directory.GetShop(ctx, id)
	if err != nil {
		return domain.Shop{}, err
	}
	shop.Status = status
	if err := s.directory.UpsertShop(ctx, shop); err != nil {
		return domain.Shop{}, err
	}
	return shop, nil
}
