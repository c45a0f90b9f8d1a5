package dashboard

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

const recentLimit = 5

// CustomerView — главный экран клиента.
type CustomerView struct {
	Account            domain.CreditAccount
	RecentTransactions []domain.Transaction
	OpenStatements     []domain.MonthlyStatement
}

// ShopView — главный экран магазина.
type ShopView struct {
	TotalSalesMinor int64
	OrderCount      int
	Settlements     []domain.ShopSettlement
}

// AdminView — сводка администратора.
type AdminView struct {
	PendingVerifications int
	CustomerCount        int
	ShopCount            int
	PendingPaymentsMinor int64
	CollectedMinor       int64
	PendingPayoutsMinor  int64
}

// View — экран для конкретной роли; заполнено ровно одно поле.
type View struct {
	Role     domain.Role
	Customer *CustomerView
	Shop     *ShopView
	Admin    *AdminView
}

// Handler собирает экран одной роли.
type Handler interface {
	Role() domain.Role
	Build(ctx context.Context, identity domain.Identity) (View, error)
}

// AccountReader — чтение счёта с проверкой инварианта.
type AccountReader interface {
	Get(ctx context.Context, customerID string) (domain.CreditAccount, error)
}

// Sources — хранилища, из которых читаются экраны.
type Sources struct {
	Accounts      AccountReader
	Transactions  domain.TransactionRepository
	Statements    domain.StatementRepository
	Settlements   domain.SettlementRepository
	Directory     domain.DirectoryRepository
	Verifications domain.VerificationRepository
}

// Service выбирает обработчик по роли пользователя.
type Service struct {
	handlers map[domain.Role]Handler
}

// NewService регистрирует обработчики всех трёх ролей.
func NewService(src Sources) *Service {
	return NewServiceWith(
		customerHandler{src: src},
		shopHandler{src: src},
		adminHandler{src: src},
	)
}

// NewServiceWith собирает сервис из произвольных обработчиков.
func NewServiceWith(handlers ...Handler) *Service {
	s := &Service{handlers: make(map[domain.Role]Handler, len(handlers))}
	for _, h := range handlers {
		s.handlers[h.Role()] = h
	}
	return s
}

// Get возвращает экран для identity.
func (s *Service) Get(ctx context.Context, identity domain.Identity) (View, error) {
	h, ok := s.handlers[identity.Role]
	if !ok {
		return View{}, fmt.Errorf("%w: %s", domain.ErrInvalidRole, identity.Role)
	}
	if identity.Role != domain.RoleAdmin && identity.SubjectID == "" {
		return View{}, domain.ErrPermissionDenied
	}
	return h.Build(ctx, identity)
}

type customerHandler struct{ src Sources }

func (customerHandler) Role() domain.Role { return domain.RoleCustomer }

func (h customerHandler) Build(ctx context.Context, identity domain.Identity) (View, error) {
	account, err := h.src.Accounts.Get(ctx, identity.SubjectID)
	if err != nil {
		return View{}, err
	}
	recent, err := h.src.Transactions.List(ctx, domain.TransactionFilter{CustomerID: identity.SubjectID, Limit: recentLimit})
	if err != nil {
		return View{}, fmt.Errorf("list transactions: %w", err)
	}
	open, err := h.src.Statements.List(ctx, domain.StatementFilter{CustomerID: identity.SubjectID, Status: domain.PaymentStatusPending})
	if err != nil {
		return View{}, fmt.Errorf("list statements: %w", err)
	}
	return View{Role: domain.RoleCustomer, Customer: &CustomerView{
		Account:            account,
		RecentTransactions: recent,
		OpenStatements:     open,
	}}, nil
}

type shopHandler struct{ src Sources }

func (shopHandler) Role() domain.Role { return domain.RoleShop }

func (h shopHandler) Build(ctx context.Context, identity domain.Identity) (View, error) {
	sales, err := h.src.Transactions.List(ctx, domain.TransactionFilter{ShopID: identity.SubjectID, Status: domain.TransactionStatusCompleted})
	if err != nil {
		return View{}, fmt.Errorf("list transactions: %w", err)
	}
	settlements, err := h.src.Settlements.List(ctx, domain.SettlementFilter{ShopID: identity.SubjectID, Limit: recentLimit})
	if err != nil {
		return View{}, fmt.Errorf("list settlements: %w", err)
	}
	return View{Role: domain.RoleShop, Shop: &ShopView{
		TotalSalesMinor: domain.SumTotals(sales),
		OrderCount:      len(sales),
		Settlements:     settlements,
	}}, nil
}

type adminHandler struct{ src Sources }

func (adminHandler) Role() domain.Role { return domain.RoleAdmin }

func (h adminHandler) Build(ctx context.Context, _ domain.Identity) (View, error) {
	var v AdminView

	pending, err := h.src.Verifications.List(ctx, domain.ApprovalStatusPending)
	if err != nil {
		return View{}, fmt.Errorf("list verifications: %w", err)
	}
	v.PendingVerifications = len(pending)

	customers, err := h.src.Directory.SearchCustomers(ctx, domain.DirectoryQuery{})
	if err != nil {
		return View{}, fmt.Errorf("list customers: %w", err)
	}
	v.CustomerCount = len(customers)

	shops, err := h.src.Directory.SearchShops(ctx, domain.DirectoryQuery{})
	if err != nil {
		return View{}, fmt.Errorf("list shops: %w", err)
	}
	v.ShopCount = len(shops)

	statements, err := h.src.Statements.List(ctx, domain.StatementFilter{})
	if err != nil {
		return View{}, fmt.Errorf("list statements: %w", err)
	}
	for _, st := range statements {
		v.CollectedMinor += st.PaidAmountMinor
		v.PendingPaymentsMinor += st.RemainingMinor()
	}

	payouts, err := h.src.Settlements.List(ctx, domain.SettlementFilter{Status: domain.SettlementStatusPending})
	if err != nil {
		return View{}, fmt.Errorf("list settlements: %w", err)
	}
	for _, p := range payouts {
		v.PendingPayoutsMinor += p.AmountMinor
	}

	return View{Role: domain.RoleAdmin, Admin: &v}, nil
}
