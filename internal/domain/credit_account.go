package domain

import (
	"fmt"
	"time"
)

// CreditAccount — кредитный счёт клиента. CreditAvailableMinor хранится явно,
// чтобы рассинхронизация в хранилище обнаруживалась, а не пересчитывалась молча.
type CreditAccount struct {
	CustomerID           string
	CreditLimitMinor     int64
	CreditUsedMinor      int64
	CreditAvailableMinor int64
	Version              int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewCreditAccount открывает счёт с нулевым использованием.
func NewCreditAccount(customerID string, limitMinor int64, now time.Time) (CreditAccount, error) {
	if customerID == "" {
		return CreditAccount{}, ErrCustomerRequired
	}
	if limitMinor < 0 {
		return CreditAccount{}, ErrCreditLimitNegative
	}
	return CreditAccount{
		CustomerID:           customerID,
		CreditLimitMinor:     limitMinor,
		CreditAvailableMinor: limitMinor,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

// CheckInvariant проверяет used + available == limit и 0 <= used <= limit.
func (a *CreditAccount) CheckInvariant() error {
	if a.CreditUsedMinor < 0 || a.CreditUsedMinor > a.CreditLimitMinor ||
		a.CreditUsedMinor+a.CreditAvailableMinor != a.CreditLimitMinor {
		return fmt.Errorf("%w: customer=%s limit=%d used=%d available=%d",
			ErrCreditInvariantViolated, a.CustomerID, a.CreditLimitMinor, a.CreditUsedMinor, a.CreditAvailableMinor)
	}
	return nil
}

// CanAfford — граница включительная: amount == available допустимо.
func (a *CreditAccount) CanAfford(amountMinor int64) bool {
	return amountMinor <= a.CreditAvailableMinor
}

// Reserve увеличивает использованный кредит на amount.
func (a *CreditAccount) Reserve(amountMinor int64) error {
	if amountMinor < 0 {
		return ErrAmountNegative
	}
	if !a.CanAfford(amountMinor) {
		return &InsufficientCreditError{RequestedMinor: amountMinor, AvailableMinor: a.CreditAvailableMinor}
	}
	a.CreditUsedMinor += amountMinor
	a.CreditAvailableMinor = a.CreditLimitMinor - a.CreditUsedMinor
	return nil
}

// Release возвращает ёмкость счёта, used не уходит ниже нуля. Возвращает фактически освобождённую сумму.
func (a *CreditAccount) Release(amountMinor int64) int64 {
	if amountMinor <= 0 {
		return 0
	}
	released := amountMinor
	if released > a.CreditUsedMinor {
		released = a.CreditUsedMinor
	}
	a.CreditUsedMinor -= released
	a.CreditAvailableMinor = a.CreditLimitMinor - a.CreditUsedMinor
	return released
}

// SetLimit меняет лимит, не позволяя опустить его ниже текущего использования.
func (a *CreditAccount) SetLimit(limitMinor int64) error {
	if limitMinor < 0 {
		return ErrCreditLimitNegative
	}
	if limitMinor < a.CreditUsedMinor {
		return ErrCreditLimitBelowUsage
	}
	a.CreditLimitMinor = limitMinor
	a.CreditAvailableMinor = limitMinor - a.CreditUsedMinor
	return nil
}
