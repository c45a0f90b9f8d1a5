package app

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/creditmarket/internal/config"
	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/creditmarket/internal/health"
	"github.com/vladislavdragonenkov/creditmarket/internal/messaging/kafka"
)

const (
	breakerMaxFailures  = 5
	breakerResetTimeout = 30 * time.Second
	kafkaCheckTimeout   = time.Second
)

// kafkaRuntime — всё, что процесс публикует в Kafka. Без брокеров все поля nil.
type kafkaRuntime struct {
	producer *kafka.Producer
	// outbox публикует события счетов, выписок и выплат из transactional outbox.
	outbox domain.OutboxPublisher
	dlq    domain.OutboxPublisher
	// checkout — best-effort события оформления за circuit breaker.
	checkout *kafka.BreakerPublisher
	checker  healthcheck.Checker
}

// initKafkaProducer создаёт producer, если брокеры заданы.
// Ошибка подключения не роняет процесс: события копятся в outbox до появления брокера.
func initKafkaProducer(cfg config.Config, logger *log.Entry) (*kafka.Producer, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:  cfg.KafkaBrokers,
		ClientID: cfg.KafkaClientID,
	})
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")
	return producer, nil
}

// newKafkaRuntime собирает паблишеры поверх producer.
func newKafkaRuntime(cfg config.Config, producer *kafka.Producer, logger *log.Entry) kafkaRuntime {
	if producer == nil {
		return kafkaRuntime{}
	}

	checkout := kafka.NewBreakerPublisher(
		topicPublisher{next: producer, from: kafka.TopicCheckoutEvents, to: cfg.KafkaCheckoutTopic},
		breakerMaxFailures,
		breakerResetTimeout,
		logger.WithField("component", "kafka-breaker"),
	)

	return kafkaRuntime{
		producer: producer,
		outbox:   kafka.NewOutboxPublisher(producer, cfg.KafkaLedgerTopic),
		dlq:      kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic),
		checkout: checkout,
		checker:  newBreakerChecker(checkout),
	}
}

// newBreakerChecker сообщает degraded, пока breaker открыт: оформление работает, события теряются.
func newBreakerChecker(breaker *kafka.BreakerPublisher) healthcheck.Checker {
	return healthcheck.NewOptionalChecker("kafka", kafkaCheckTimeout, func(context.Context) error {
		if breaker.State() == kafka.BreakerOpen {
			return kafka.ErrBreakerOpen
		}
		return nil
	})
}

// topicPublisher переписывает topic по умолчанию на настроенный.
type topicPublisher struct {
	next     kafka.EventPublisher
	from, to string
}

func (p topicPublisher) PublishEvent(topic string, key string, event any) error {
	if topic == p.from && p.to != "" {
		topic = p.to
	}
	return p.next.PublishEvent(topic, key, event)
}

// closeKafkaProducer закрывает producer, если он был создан.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
