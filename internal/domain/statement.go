package domain

import "time"

// PaymentStatus — статус оплаты месячной выписки.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s PaymentStatus) Valid() bool {
	return s == PaymentStatusPending || s == PaymentStatusPaid
}

// MonthlyStatement — счёт клиенту за месяц. Одна выписка на пару (клиент, месяц).
type MonthlyStatement struct {
	ID              string
	CustomerID      string
	Month           Month
	TotalDueMinor   int64
	PaidAmountMinor int64
	DueDate         time.Time
	PaymentStatus   PaymentStatus
	// CutoffAt — граница, до которой учтены транзакции.
	CutoffAt  time.Time
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RemainingMinor — остаток к оплате.
func (s *MonthlyStatement) RemainingMinor() int64 {
	return s.TotalDueMinor - s.PaidAmountMinor
}

// ApplyPayment добавляет платёж; paid выставляется, когда выписка закрыта полностью.
func (s *MonthlyStatement) ApplyPayment(amountMinor int64, now time.Time) error {
	if amountMinor <= 0 {
		return ErrPaymentAmountInvalid
	}
	if amountMinor > s.RemainingMinor() {
		return ErrOverpaymentNotAllowed
	}
	s.PaidAmountMinor += amountMinor
	s.refreshStatus()
	s.UpdatedAt = now
	return nil
}

// Recompute обновляет сумму к оплате после повторной агрегации.
// Если новые транзакции увеличили долг, выписка снова становится pending.
func (s *MonthlyStatement) Recompute(totalDueMinor int64, cutoff, now time.Time) bool {
	if s.TotalDueMinor == totalDueMinor && s.CutoffAt.Equal(cutoff) {
		return false
	}
	s.TotalDueMinor = totalDueMinor
	s.CutoffAt = cutoff
	s.refreshStatus()
	s.UpdatedAt = now
	return true
}

func (s *MonthlyStatement) refreshStatus() {
	if s.PaidAmountMinor >= s.TotalDueMinor {
		s.PaymentStatus = PaymentStatusPaid
		return
	}
	s.PaymentStatus = PaymentStatusPending
}

// ValidateInvariants проверяет paid => paidAmount == totalDue.
func (s *MonthlyStatement) ValidateInvariants() []error {
	var errs []error
	if s.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if s.TotalDueMinor < 0 || s.PaidAmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	if s.PaidAmountMinor > s.TotalDueMinor {
		errs = append(errs, ErrOverpaymentNotAllowed)
	}
	if s.PaymentStatus == PaymentStatusPaid && s.PaidAmountMinor != s.TotalDueMinor {
		errs = append(errs, ErrAmountMismatch)
	}
	return errs
}

// StatementFilter задаёт выборку выписок.
type StatementFilter struct {
	CustomerID string
	Month      Month
	Status     PaymentStatus
	Limit      int
}

// Match применяет фильтр к выписке.
func (f StatementFilter) Match(s MonthlyStatement) bool {
	if f.CustomerID != "" && s.CustomerID != f.CustomerID {
		return false
	}
	if !f.Month.IsZero() && s.Month != f.Month {
		return false
	}
	if f.Status != "" && s.PaymentStatus != f.Status {
		return false
	}
	return true
}
