package domain

import "time"

// TransactionStatus описывает состояние покупки в журнале.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusCompleted, TransactionStatusFailed:
		return true
	default:
		return false
	}
}

// TransactionLine — снимок позиции корзины на момент покупки.
type TransactionLine struct {
	ProductID      string
	ProductName    string
	Qty            int32
	UnitPriceMinor int64
}

// Transaction — покупка клиента в одном магазине. После создания меняется только статус.
type Transaction struct {
	ID               string
	CheckoutID       string
	CustomerID       string
	ShopID           string
	Lines            []TransactionLine
	TotalAmountMinor int64
	Status           TransactionStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewTransaction собирает транзакцию из позиций корзины одного магазина.
func NewTransaction(id, checkoutID, customerID, shopID string, lines []CartLine, status TransactionStatus, now time.Time) Transaction {
	tx := Transaction{
		ID:         id,
		CheckoutID: checkoutID,
		CustomerID: customerID,
		ShopID:     shopID,
		Lines:      make([]TransactionLine, 0, len(lines)),
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, l := range lines {
		tx.Lines = append(tx.Lines, TransactionLine{
			ProductID:      l.ProductID,
			ProductName:    l.ProductName,
			Qty:            l.Qty,
			UnitPriceMinor: l.UnitPriceMinor,
		})
		tx.TotalAmountMinor += l.ExtendedMinor()
	}
	return tx
}

// ValidateInvariants проверяет базовые инварианты транзакции и возвращает список замечаний.
func (t *Transaction) ValidateInvariants() []error {
	var errs []error

	if t.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if t.ShopID == "" {
		errs = append(errs, ErrShopRequired)
	}
	if len(t.Lines) == 0 {
		errs = append(errs, ErrLinesRequired)
	}
	if t.TotalAmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	var calc int64
	for _, line := range t.Lines {
		if line.Qty <= 0 {
			errs = append(errs, ErrInvalidQuantity)
		}
		if line.UnitPriceMinor < 0 {
			errs = append(errs, ErrLinePriceInvalid)
		}
		calc += int64(line.Qty) * line.UnitPriceMinor
	}
	if calc != t.TotalAmountMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// TransitionTo допускает только pending -> completed|failed.
func (t *Transaction) TransitionTo(next TransactionStatus, now time.Time) error {
	if t.Status != TransactionStatusPending {
		return ErrInvalidTransactionTransition
	}
	if next != TransactionStatusCompleted && next != TransactionStatusFailed {
		return ErrInvalidTransactionTransition
	}
	t.Status = next
	t.UpdatedAt = now
	return nil
}

// TransactionFilter задаёт выборку для агрегаций по месяцам.
// Before — исключающая граница (cutoff), From — включающая.
type TransactionFilter struct {
	CustomerID string
	ShopID     string
	Status     TransactionStatus
	From       time.Time
	Before     time.Time
	Limit      int
}

// Match применяет фильтр к транзакции; используется in-memory хранилищем.
func (f TransactionFilter) Match(t Transaction) bool {
	if f.CustomerID != "" && t.CustomerID != f.CustomerID {
		return false
	}
	if f.ShopID != "" && t.ShopID != f.ShopID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && t.CreatedAt.Before(f.From) {
		return false
	}
	if !f.Before.IsZero() && !t.CreatedAt.Before(f.Before) {
		return false
	}
	return true
}

// SumTotals — коммутативная свёртка сумм транзакций.
func SumTotals(txs []Transaction) int64 {
	var total int64
	for _, t := range txs {
		total += t.TotalAmountMinor
	}
	return total
}
