package kafka

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// EventPublisher — то, что нужно сервисам от Kafka. Producer реализует его, тесты подменяют.
type EventPublisher interface {
	PublishEvent(topic string, key string, event any) error
}

// ProducerConfig задаёт параметры подключения producer.
type ProducerConfig struct {
	Brokers  []string
	ClientID string
	// MaxRetries — повторы внутри sarama до возврата ошибки в outbox; 0 означает 5.
	MaxRetries int
	// SendTimeout ограничивает ожидание подтверждения брокеров; 0 означает 10s.
	SendTimeout time.Duration
}

const (
	defaultProducerRetries = 5
	defaultSendTimeout     = 10 * time.Second
)

// Producer публикует события кредитного учёта в Kafka синхронно: outbox
// помечает запись отправленной только после подтверждения брокеров.
type Producer struct {
	producer sarama.SyncProducer
	logger   *log.Entry
}

// SaramaConfig собирает настройки синхронного идемпотентного producer.
func (cfg ProducerConfig) SaramaConfig() *sarama.Config {
	config := sarama.NewConfig()
	if cfg.ClientID != "" {
		config.ClientID = cfg.ClientID
	}
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = defaultProducerRetries
	if cfg.MaxRetries > 0 {
		config.Producer.Retry.Max = cfg.MaxRetries
	}
	config.Producer.Timeout = defaultSendTimeout
	if cfg.SendTimeout > 0 {
		config.Producer.Timeout = cfg.SendTimeout
	}
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	// Идемпотентный producer требует одного in-flight запроса.
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	return config
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are not configured")
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, cfg.SaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return newProducerWith(producer), nil
}

func newProducerWith(producer sarama.SyncProducer) *Producer {
	return &Producer{
		producer: producer,
		logger:   log.WithField("component", "kafka-producer"),
	}
}

// PublishEvent публикует событие в Kafka как JSON.
func (p *Producer) PublishEvent(topic string, key string, event any) error {
	return p.publish(topic, key, event, nil)
}

// PublishEventWithHeaders публикует событие с заголовками (тип события, причина DLQ и т.п.).
func (p *Producer) PublishEventWithHeaders(topic, key string, event any, headers map[string]string) error {
	return p.publish(topic, key, event, headers)
}

func (p *Producer) publish(topic, key string, event any, headers map[string]string) error {
	eventData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event for %s: %w", topic, err)
	}

	// Ключ — идентификатор агрегата (счёт, выписка, выплата), чтобы события
	// одного агрегата попадали в одну партицию и сохраняли порядок.
	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(eventData),
		Headers:   recordHeaders(headers),
		Timestamp: time.Now().UTC(),
	}

	fields := log.Fields{"topic": topic, "aggregate_key": key}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Error("kafka publish failed")
		return fmt.Errorf("send to %s: %w", topic, err)
	}

	fields["partition"] = partition
	fields["offset"] = offset
	p.logger.WithFields(fields).Debug("event published")
	return nil
}

// recordHeaders переводит заголовки в формат sarama в стабильном порядке.
func recordHeaders(headers map[string]string) []sarama.RecordHeader {
	if len(headers) == 0 {
		return nil
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]sarama.RecordHeader, 0, len(keys))
	for _, k := range keys {
		out = append(out, sarama.RecordHeader{Key: []byte(k), Value: []byte(headers[k])})
	}
	return out
}

func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}

var _ EventPublisher = (*Producer)(nil)
