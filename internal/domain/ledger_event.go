package domain

import "time"

// Типы событий журнала кредитного счёта.
const (
	LedgerEventCreditOpened       = "CreditOpened"
	LedgerEventCreditReserved     = "CreditReserved"
	LedgerEventCreditReleased     = "CreditReleased"
	LedgerEventCreditLimitChanged = "CreditLimitChanged"
	LedgerEventCheckoutRejected   = "CheckoutRejected"
	LedgerEventPaymentRecorded    = "PaymentRecorded"
)

// LedgerEvent — запись аудита движения кредита по счёту клиента.
type LedgerEvent struct {
	CustomerID  string
	Type        string
	AmountMinor int64
	// Reference — checkout_id или statement_id, к которому относится движение.
	Reference string
	Reason    string
	Occurred  time.Time
}
