package domain

import "time"

// SettlementStatus — статус выплаты магазину.
type SettlementStatus string

const (
	SettlementStatusPending SettlementStatus = "pending"
	SettlementStatusSettled SettlementStatus = "settled"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s SettlementStatus) Valid() bool {
	return s == SettlementStatusPending || s == SettlementStatusSettled
}

// ShopSettlement — выплата магазину за месяц.
type ShopSettlement struct {
	ID          string
	ShopID      string
	Month       Month
	AmountMinor int64
	Status      SettlementStatus
	SettledAt   time.Time
	CutoffAt    time.Time
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Frozen — сумма больше не пересчитывается: месяц закрыт на момент агрегации или выплата проведена.
func (s *ShopSettlement) Frozen() bool {
	return s.Status == SettlementStatusSettled || s.Closed()
}

// Closed — сумма агрегирована по концу месяца.
func (s *ShopSettlement) Closed() bool {
	return !s.CutoffAt.Before(s.Month.End())
}

// MarkSettled проводит выплату один раз и только по закрытому месяцу.
func (s *ShopSettlement) MarkSettled(now time.Time) error {
	if s.Status == SettlementStatusSettled {
		return ErrAlreadySettled
	}
	if !s.Closed() {
		return ErrSettlementMonthOpen
	}
	s.Status = SettlementStatusSettled
	s.SettledAt = now
	s.UpdatedAt = now
	return nil
}

// ValidateInvariants проверяет settled => settledAt задан.
func (s *ShopSettlement) ValidateInvariants() []error {
	var errs []error
	if s.ShopID == "" {
		errs = append(errs, ErrShopRequired)
	}
	if s.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	if s.Status == SettlementStatusSettled && s.SettledAt.IsZero() {
		errs = append(errs, ErrSettledAtRequired)
	}
	return errs
}

// SettlementFilter задаёт выборку выплат.
type SettlementFilter struct {
	ShopID string
	Month  Month
	Status SettlementStatus
	Limit  int
}

// Match применяет фильтр к выплате.
func (f SettlementFilter) Match(s ShopSettlement) bool {
	if f.ShopID != "" && s.ShopID != f.ShopID {
		return false
	}
	if !f.Month.IsZero() && s.Month != f.Month {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	return true
}
