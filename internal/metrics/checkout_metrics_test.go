package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestNewCheckoutMetricsWithRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCheckoutMetricsWithRegisterer(reg)

	m.RecordCheckout(ResultApproved)
	m.RecordCheckout(ResultApproved)
	m.RecordCheckout(ResultRejected)
	m.RecordCreditReserved(200000)
	m.RecordCreditReleased(50000)
	m.RecordStatement(OutcomeCreated)
	m.RecordSettlement(OutcomeUnchanged)
	m.RecordPayment()
	m.RecordSettled()
	m.RecordLedgerEvent()
	m.RecordOutboxEvent()
	m.RecordCheckoutDuration(25 * time.Millisecond)
	m.RecordStageDuration("validating", time.Millisecond)

	require.Equal(t, 2.0, counterValue(t, m.checkouts.WithLabelValues(ResultApproved)))
	require.Equal(t, 1.0, counterValue(t, m.checkouts.WithLabelValues(ResultRejected)))
	require.Equal(t, 200000.0, counterValue(t, m.creditReserved))
	require.Equal(t, 50000.0, counterValue(t, m.creditReleased))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["creditmarket_checkout_total"])
	require.True(t, names["creditmarket_checkout_stage_duration_seconds"])
	require.True(t, names["creditmarket_statements_generated_total"])
}

func TestCheckoutMetricsReRegistrationReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewCheckoutMetricsWithRegisterer(reg)
	second := NewCheckoutMetricsWithRegisterer(reg)

	first.RecordPayment()
	second.RecordPayment()

	require.Equal(t, 2.0, counterValue(t, first.paymentsRecorded))
}

func TestCheckoutInFlightGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCheckoutMetricsWithRegisterer(reg)

	m.CheckoutInFlight(1)
	m.CheckoutInFlight(1)
	m.CheckoutInFlight(-1)

	metric := &dto.Metric{}
	require.NoError(t, m.activeCheckouts.Write(metric))
	require.Equal(t, 1.0, metric.GetGauge().GetValue())
}

func TestWorkerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWorkerMetricsWithRegisterer(reg)

	m.RecordRun(WorkerBilling, "success")
	m.RecordRun(WorkerBilling, "success")
	m.RecordProcessed(WorkerIdempotency, 7)
	m.RecordProcessed(WorkerIdempotency, 0)
	m.RecordPublishAttempt("sent")
	m.SetOutboxBacklog(3, -5)

	require.Equal(t, 2.0, counterValue(t, m.runs.WithLabelValues(WorkerBilling, "success")))
	require.Equal(t, 7.0, counterValue(t, m.processed.WithLabelValues(WorkerIdempotency)))

	gauge := &dto.Metric{}
	require.NoError(t, m.outboxOldestAgeSec.Write(gauge))
	require.Equal(t, 0.0, gauge.GetGauge().GetValue())
	require.NoError(t, m.outboxPending.Write(gauge))
	require.Equal(t, 3.0, gauge.GetGauge().GetValue())

	m.SetOutboxPendingByAggregate(map[string]int{"account": 2, "statement": 1})
	require.NoError(t, m.outboxByAggregate.WithLabelValues("account").Write(gauge))
	require.Equal(t, 2.0, gauge.GetGauge().GetValue())

	m.SetOutboxPendingByAggregate(map[string]int{"statement": 1})
	require.Equal(t, 1, testutil.CollectAndCount(m.outboxByAggregate))
}
