package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты оформления для label result.
const (
	ResultApproved = "approved"
	ResultRejected = "rejected"
	ResultReplayed = "replayed"
	ResultFailed   = "failed"
)

// Исходы генерации выписок и выплат для label outcome.
const (
	OutcomeCreated   = "created"
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
	OutcomeFrozen    = "frozen"
)

// CheckoutMetrics содержит метрики оформления корзины и движения кредита.
type CheckoutMetrics struct {
	checkouts        *prometheus.CounterVec
	checkoutDuration prometheus.Histogram
	stageDuration    *prometheus.HistogramVec
	activeCheckouts  prometheus.Gauge

	creditReserved prometheus.Counter
	creditReleased prometheus.Counter

	statements       *prometheus.CounterVec
	settlements      *prometheus.CounterVec
	paymentsRecorded prometheus.Counter
	settledPayouts   prometheus.Counter

	ledgerEvents prometheus.Counter
	outboxEvents prometheus.Counter
}

// NewCheckoutMetrics регистрирует метрики в DefaultRegisterer.
func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCheckoutMetricsWithRegisterer регистрирует метрики в заданном реестре (тесты используют отдельный).
func NewCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		checkouts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "creditmarket_checkout_total",
			Help: "Total number of checkout attempts by result",
		}, []string{"result"}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "creditmarket_checkout_duration_seconds",
			Help:    "Duration of checkout attempts in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stageDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "creditmarket_checkout_stage_duration_seconds",
			Help:    "Duration of checkout stages in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"stage"}),
		activeCheckouts: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "creditmarket_active_checkouts",
			Help: "Number of checkouts currently holding an account lock",
		}),
		creditReserved: registerCounter(registerer, prometheus.CounterOpts{
			Name: "creditmarket_credit_reserved_minor_total",
			Help: "Total credit reserved by checkouts in minor units",
		}),
		creditReleased: registerCounter(registerer, prometheus.CounterOpts{
			Name: "creditmarket_credit_released_minor_total",
			Help: "Total credit released by payments and compensations in minor units",
		}),
		statements: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "creditmarket_statements_generated_total",
			Help: "Monthly statement generations by outcome",
		}, []string{"outcome"}),
		settlements: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "creditmarket_settlements_generated_total",
			Help: "Shop settlement generations by outcome",
		}, []string{"outcome"}),
		paymentsRecorded: registerCounter(registerer, prometheus.CounterOpts{
			Name: "creditmarket_statement_payments_total",
			Help: "Total number of statement payments recorded",
		}),
		settledPayouts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "creditmarket_settlements_settled_total",
			Help: "Total number of shop settlements marked settled",
		}),
		ledgerEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "creditmarket_ledger_events_total",
			Help: "Total number of credit ledger events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "creditmarket_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
	}
}

// RecordCheckout увеличивает счётчик попыток оформления с результатом result.
func (m *CheckoutMetrics) RecordCheckout(result string) {
	m.checkouts.WithLabelValues(result).Inc()
}

// RecordCheckoutDuration записывает время оформления.
func (m *CheckoutMetrics) RecordCheckoutDuration(duration time.Duration) {
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordStageDuration записывает время стадии оформления.
func (m *CheckoutMetrics) RecordStageDuration(stage string, duration time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// CheckoutInFlight меняет количество оформлений под блокировкой счёта.
func (m *CheckoutMetrics) CheckoutInFlight(delta float64) {
	m.activeCheckouts.Add(delta)
}

func (m *CheckoutMetrics) RecordCreditReserved(amountMinor int64) {
	m.creditReserved.Add(float64(amountMinor))
}

func (m *CheckoutMetrics) RecordCreditReleased(amountMinor int64) {
	m.creditReleased.Add(float64(amountMinor))
}

// RecordStatement — outcome: created, updated, unchanged.
func (m *CheckoutMetrics) RecordStatement(outcome string) {
	m.statements.WithLabelValues(outcome).Inc()
}

// RecordSettlement — outcome: created, updated, unchanged, frozen.
func (m *CheckoutMetrics) RecordSettlement(outcome string) {
	m.settlements.WithLabelValues(outcome).Inc()
}

func (m *CheckoutMetrics) RecordPayment() {
	m.paymentsRecorded.Inc()
}

func (m *CheckoutMetrics) RecordSettled() {
	m.settledPayouts.Inc()
}

func (m *CheckoutMetrics) RecordLedgerEvent() {
	m.ledgerEvents.Inc()
}

func (m *CheckoutMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
