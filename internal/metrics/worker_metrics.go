package metrics

import "github.com/prometheus/client_golang/prometheus"

// Имена фоновых воркеров для label worker.
const (
	WorkerBilling     = "billing"
	WorkerIdempotency = "idempotency_cleanup"
	WorkerOutbox      = "outbox"
)

// WorkerMetrics — метрики фоновых воркеров: закрытие месяца, очистка ключей идемпотентности, outbox.
type WorkerMetrics struct {
	runs      *prometheus.CounterVec
	processed *prometheus.CounterVec

	publishAttempts    *prometheus.CounterVec
	outboxPending      prometheus.Gauge
	outboxOldestAgeSec prometheus.Gauge
	outboxByAggregate  *prometheus.GaugeVec
}

// NewWorkerMetricsWithRegisterer регистрирует метрики воркеров в заданном реестре.
func NewWorkerMetricsWithRegisterer(registerer prometheus.Registerer) *WorkerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &WorkerMetrics{
		runs: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "creditmarket_worker_runs_total",
			Help: "Background worker runs grouped by worker and result",
		}, []string{"worker", "result"}),
		processed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "creditmarket_worker_processed_total",
			Help: "Records processed by background workers",
		}, []string{"worker"}),
		publishAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "creditmarket_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result",
		}, []string{"result"}),
		outboxPending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "creditmarket_outbox_pending_records",
			Help: "Current number of pending records in transactional outbox",
		}),
		outboxOldestAgeSec: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "creditmarket_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record",
		}),
		outboxByAggregate: registerGaugeVec(registerer, prometheus.GaugeOpts{
			Name: "creditmarket_outbox_pending_by_aggregate",
			Help: "Pending outbox records grouped by aggregate type",
		}, []string{"aggregate"}),
	}
}

// RecordRun — result: success, error.
func (m *WorkerMetrics) RecordRun(worker, result string) {
	m.runs.WithLabelValues(worker, result).Inc()
}

func (m *WorkerMetrics) RecordProcessed(worker string, n int) {
	if n <= 0 {
		return
	}
	m.processed.WithLabelValues(worker).Add(float64(n))
}

// RecordPublishAttempt — result: sent, retry_error, failed, dlq_failed.
func (m *WorkerMetrics) RecordPublishAttempt(result string) {
	m.publishAttempts.WithLabelValues(result).Inc()
}

// SetOutboxBacklog обновляет размер backlog и возраст самой старой записи.
func (m *WorkerMetrics) SetOutboxBacklog(pending int, oldestAgeSeconds float64) {
	m.outboxPending.Set(float64(pending))
	if oldestAgeSeconds < 0 {
		oldestAgeSeconds = 0
	}
	m.outboxOldestAgeSec.Set(oldestAgeSeconds)
}

// SetOutboxPendingByAggregate заменяет значения целиком: агрегаты без backlog пропадают из метрики.
func (m *WorkerMetrics) SetOutboxPendingByAggregate(pending map[string]int) {
	m.outboxByAggregate.Reset()
	for aggregate, n := range pending {
		m.outboxByAggregate.WithLabelValues(aggregate).Set(float64(n))
	}
}
