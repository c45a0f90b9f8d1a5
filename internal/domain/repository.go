package domain

import "context"

// AccountRepository описывает хранилище кредитных счетов.
type AccountRepository interface {
	// Create сохраняет новый счёт. ErrAccountAlreadyExists, если счёт уже открыт.
	Create(ctx context.Context, account CreditAccount) error
	// Get возвращает счёт или ErrAccountNotFound.
	Get(ctx context.Context, customerID string) (CreditAccount, error)
	// Save применяет изменения с учётом optimistic locking и увеличивает Version.
	Save(ctx context.Context, account CreditAccount) (CreditAccount, error)
	List(ctx context.Context) ([]CreditAccount, error)
}

// TransactionRepository — журнал покупок. Записи не удаляются.
type TransactionRepository interface {
	Create(ctx context.Context, tx Transaction) error
	Get(ctx context.Context, id string) (Transaction, error)
	// UpdateStatus меняет только статус.
	UpdateStatus(ctx context.Context, id string, status TransactionStatus) error
	ListByCheckout(ctx context.Context, checkoutID string) ([]Transaction, error)
	// List возвращает транзакции по фильтру, новые первыми.
	List(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
}

// StatementRepository хранит месячные выписки клиентов.
type StatementRepository interface {
	// Create — ErrAlreadyExists, если выписка за (клиент, месяц) уже есть.
	Create(ctx context.Context, st MonthlyStatement) error
	Get(ctx context.Context, id string) (MonthlyStatement, error)
	GetByCustomerMonth(ctx context.Context, customerID string, month Month) (MonthlyStatement, error)
	Save(ctx context.Context, st MonthlyStatement) (MonthlyStatement, error)
	List(ctx context.Context, filter StatementFilter) ([]MonthlyStatement, error)
}

// SettlementRepository хранит выплаты магазинам.
type SettlementRepository interface {
	Create(ctx context.Context, s ShopSettlement) error
	Get(ctx context.Context, id string) (ShopSettlement, error)
	GetByShopMonth(ctx context.Context, shopID string, month Month) (ShopSettlement, error)
	Save(ctx context.Context, s ShopSettlement) (ShopSettlement, error)
	List(ctx context.Context, filter SettlementFilter) ([]ShopSettlement, error)
}

// CartRepository хранит корзины активных сессий.
type CartRepository interface {
	// Get возвращает ErrCartNotFound, если корзины нет.
	Get(ctx context.Context, customerID string) (Cart, error)
	// Save сохраняет корзину, если её версия совпадает с сохранённой, иначе ErrVersionConflict.
	Save(ctx context.Context, cart Cart) error
	Delete(ctx context.Context, customerID string) error
}

// CatalogRepository — товары магазинов.
type CatalogRepository interface {
	UpsertProduct(ctx context.Context, p Product) error
	GetProduct(ctx context.Context, id string) (Product, error)
	ListByShop(ctx context.Context, shopID string) ([]Product, error)
}

// DirectoryRepository — клиенты и магазины.
type DirectoryRepository interface {
	UpsertCustomer(ctx context.Context, c Customer) error
	GetCustomer(ctx context.Context, id string) (Customer, error)
	SearchCustomers(ctx context.Context, q DirectoryQuery) ([]Customer, error)
	UpsertShop(ctx context.Context, s Shop) error
	GetShop(ctx context.Context, id string) (Shop, error)
	SearchShops(ctx context.Context, q DirectoryQuery) ([]Shop, error)
}

// VerificationRepository — заявки на проверку.
type VerificationRepository interface {
	Create(ctx context.Context, v VerificationRequest) error
	Get(ctx context.Context, id string) (VerificationRequest, error)
	Save(ctx context.Context, v VerificationRequest) error
	List(ctx context.Context, status ApprovalStatus) ([]VerificationRequest, error)
}
