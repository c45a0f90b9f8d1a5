package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// События оформления корзины.
	EventTypeCheckoutStarted  EventType = "checkout.started"
	EventTypeCheckoutApproved EventType = "checkout.approved"
	EventTypeCheckoutRejected EventType = "checkout.rejected"
	EventTypeCheckoutFailed   EventType = "checkout.failed"
	EventTypeCheckoutReplayed EventType = "checkout.replayed"
)

// Topics для Kafka
const (
	TopicCheckoutEvents  = "creditmarket.checkout.events"
	TopicLedgerEvents    = "creditmarket.ledger.events"
	TopicDeadLetterQueue = "creditmarket.dlq"
)

// Kafka headers
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// CheckoutEvent — событие стадии оформления. Ключ партиционирования — customer_id,
// чтобы события одного счёта шли в порядке.
type CheckoutEvent struct {
	EventType   EventType      `json:"event_type"`
	CheckoutID  string         `json:"checkout_id"`
	CustomerID  string         `json:"customer_id"`
	AmountMinor int64          `json:"amount_minor"`
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// NewCheckoutEvent создает новое событие оформления
func NewCheckoutEvent(eventType EventType, checkoutID, customerID string, amountMinor int64, metadata map[string]any) *CheckoutEvent {
	return &CheckoutEvent{
		EventType:   eventType,
		CheckoutID:  checkoutID,
		CustomerID:  customerID,
		AmountMinor: amountMinor,
		Timestamp:   time.Now().UTC(),
		Metadata:    metadata,
	}
}
