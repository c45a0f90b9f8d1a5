// Command dlq-reprocess возвращает события счетов, выписок и выплат из DLQ
// в ledger-топик после того, как причина сбоя публикации устранена.
// По умолчанию работает в режиме dry-run и только перечисляет кандидатов.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	appconfig "github.com/vladislavdragonenkov/creditmarket/internal/config"
	"github.com/vladislavdragonenkov/creditmarket/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second

	headerReplayedFrom = "x-replayed-from"
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
	// aggregates — если не пусто, переигрываются только эти типы агрегатов.
	aggregates map[string]bool
}

type replayMessage struct {
	topic   string
	key     string
	value   []byte
	headers map[string]string
}

// dlqRecord — то, что outbox worker кладёт в payload DLQ-сообщения.
type dlqRecord struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type replayProducer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	pc, err := a.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (a saramaConsumerAdapter) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

const clientID = "creditmarket-dlq-reprocess"

// newReplayDependencies подключается к Kafka; producer нужен только в режиме -execute.
var newReplayDependencies = func(cfg config) (offsetClient, partitionConsumerSource, replayProducer, error) {
	readerConfig := sarama.NewConfig()
	readerConfig.ClientID = clientID
	readerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, readerConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to %v: %w", cfg.brokers, err)
	}
	reader, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("dlq consumer: %w", err)
	}
	source := saramaConsumerAdapter{consumer: reader}
	if !cfg.execute {
		return client, source, nil, nil
	}

	writer, err := sarama.NewSyncProducer(cfg.brokers, kafka.ProducerConfig{ClientID: clientID}.SaramaConfig())
	if err != nil {
		_ = source.Close()
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("replay producer: %w", err)
	}
	return client, source, writer, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig(os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

// readConfig берёт брокеры и топики из CREDITMARKET_* окружения; флаги их переопределяют.
func readConfig(getenv func(string) string) (config, error) {
	defaults := appconfig.Default()
	if err := appconfig.ApplyEnv(getenv, &defaults); err != nil {
		return config{}, err
	}

	var (
		brokersRaw    string
		aggregatesRaw string
		cfg           config
	)

	flag.StringVar(&brokersRaw, "brokers", strings.Join(defaults.KafkaBrokers, ","), "Kafka brokers as comma-separated list (fallback: CREDITMARKET_KAFKA_BROKERS)")
	flag.StringVar(&cfg.sourceTopic, "source-topic", defaults.KafkaDLQTopic, "DLQ source topic")
	flag.StringVar(&cfg.targetTopic, "target-topic", defaults.KafkaLedgerTopic, "target topic for replay")
	flag.StringVar(&aggregatesRaw, "aggregates", "", "replay only these aggregate types: account,transaction,statement,settlement")
	flag.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of messages to scan/replay")
	flag.BoolVar(&cfg.execute, "execute", false, "execute replay; default is dry-run")
	flag.BoolVar(&cfg.fromNewest, "from-newest", false, "scan latest messages first (bounded by limit)")
	flag.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	flag.Parse()

	cfg.brokers = splitList(brokersRaw)
	if len(cfg.brokers) == 0 {
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or CREDITMARKET_KAFKA_BROKERS)")
	}
	if strings.TrimSpace(cfg.sourceTopic) == "" {
		return config{}, fmt.Errorf("source-topic is required")
	}
	if strings.TrimSpace(cfg.targetTopic) == "" {
		return config{}, fmt.Errorf("target-topic is required")
	}
	if cfg.limit <= 0 {
		return config{}, fmt.Errorf("limit must be > 0")
	}
	if cfg.idleTimeout <= 0 {
		return config{}, fmt.Errorf("idle-timeout must be > 0")
	}
	if aggregates := splitList(aggregatesRaw); len(aggregates) > 0 {
		cfg.aggregates = make(map[string]bool, len(aggregates))
		for _, a := range aggregates {
			cfg.aggregates[strings.ToLower(a)] = true
		}
	}

	return cfg, nil
}

func splitList(raw string) []string {
	chunks := strings.Split(raw, ",")
	out := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if v := strings.TrimSpace(chunk); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func run(ctx context.Context, cfg config) error {
	log.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"target_topic": cfg.targetTopic,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
		"from_newest":  cfg.fromNewest,
	}).Info("starting dlq replay")

	client, consumer, producer, err := newReplayDependencies(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if producer != nil {
			_ = producer.Close()
		}
		if consumer != nil {
			_ = consumer.Close()
		}
		if client != nil {
			_ = client.Close()
		}
	}()

	_, err = runReplay(ctx, cfg, client, consumer, producer)
	return err
}

type replayStats struct {
	processed int
	replayed  int
	skipped   int
}

func (s *replayStats) add(other replayStats) {
	s.processed += other.processed
	s.replayed += other.replayed
	s.skipped += other.skipped
}

func runReplay(ctx context.Context, cfg config, client offsetClient, consumer partitionConsumerSource, producer replayProducer) (replayStats, error) {
	var total replayStats
	if client == nil || consumer == nil {
		return total, fmt.Errorf("kafka client and consumer are required")
	}
	if cfg.execute && producer == nil {
		return total, fmt.Errorf("producer is required in execute mode")
	}

	partitions, err := client.Partitions(cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", cfg.sourceTopic).Warn("source topic has no partitions")
		return total, nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		if total.processed >= cfg.limit {
			break
		}
		stats, err := processPartition(ctx, consumer, client, producer, cfg, partition, cfg.limit-total.processed)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"mode":      mode,
		"processed": total.processed,
		"replayed":  total.replayed,
		"skipped":   total.skipped,
	}).Info("dlq replay finished")

	return total, nil
}

// offsetWindow — полуинтервал [from, until) смещений партиции, который просматривает прогон.
type offsetWindow struct {
	from  int64
	until int64
}

func (w offsetWindow) empty() bool { return w.until <= w.from }

// windowFor ограничивает просмотр текущим хвостом партиции: сообщения, пришедшие
// в DLQ во время прогона, ждут следующего запуска.
func windowFor(client offsetClient, cfg config, partition int32, limit int) (offsetWindow, error) {
	first, err := client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return offsetWindow{}, fmt.Errorf("partition %d: oldest offset: %w", partition, err)
	}
	next, err := client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return offsetWindow{}, fmt.Errorf("partition %d: newest offset: %w", partition, err)
	}

	w := offsetWindow{from: first, until: next}
	if cfg.fromNewest && next-int64(limit) > first {
		w.from = next - int64(limit)
	}
	return w, nil
}

func processPartition(
	ctx context.Context,
	consumer partitionConsumerSource,
	client offsetClient,
	producer replayProducer,
	cfg config,
	partition int32,
	limit int,
) (replayStats, error) {
	var stats replayStats
	if limit <= 0 {
		return stats, nil
	}

	window, err := windowFor(client, cfg, partition, limit)
	if err != nil || window.empty() {
		return stats, err
	}

	pc, err := consumer.ConsumePartition(cfg.sourceTopic, partition, window.from)
	if err != nil {
		return stats, fmt.Errorf("partition %d: consume from %d: %w", partition, window.from, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(cfg.idleTimeout)
	defer idle.Stop()

	for stats.processed < limit {
		var msg *sarama.ConsumerMessage
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case cerr := <-pc.Errors():
			if cerr != nil {
				return stats, fmt.Errorf("partition %d: consumer: %w", partition, cerr)
			}
			continue
		case m, ok := <-pc.Messages():
			if !ok || m == nil || m.Offset >= window.until {
				return stats, nil
			}
			msg = m
		}

		resetTimer(idle, cfg.idleTimeout)
		stats.processed++
		if err := replayOne(msg, producer, cfg, &stats); err != nil {
			return stats, err
		}
		if msg.Offset+1 >= window.until {
			return stats, nil
		}
	}

	return stats, nil
}

// replayOne публикует (или в dry-run только логирует) одно DLQ-сообщение.
func replayOne(msg *sarama.ConsumerMessage, producer replayProducer, cfg config, stats *replayStats) error {
	logger := log.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

	replay, err := extractReplayMessage(msg, cfg.targetTopic)
	if err != nil {
		stats.skipped++
		logger.WithError(err).Warn("skip unsupported dlq message")
		return nil
	}
	aggregate := replay.headers[kafka.HeaderAggregateType]
	if !cfg.wants(aggregate) {
		stats.skipped++
		return nil
	}

	if !cfg.execute {
		logger.WithFields(log.Fields{
			"aggregate":     aggregate,
			"aggregate_id":  replay.key,
			"event":         replay.headers[kafka.HeaderEventType],
			"publish_error": replay.headers[kafka.HeaderErrorMessage],
		}).Info("would replay to " + replay.topic)
		stats.replayed++
		return nil
	}
	if err := publishReplay(producer, replay); err != nil {
		return fmt.Errorf("replay %s %s: %w", aggregate, replay.key, err)
	}
	stats.replayed++
	return nil
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

func (c config) wants(aggregateType string) bool {
	return len(c.aggregates) == 0 || c.aggregates[aggregateType]
}

func publishReplay(producer replayProducer, msg replayMessage) error {
	if producer == nil {
		return fmt.Errorf("producer is nil")
	}

	producerMessage := &sarama.ProducerMessage{
		Topic:     msg.topic,
		Key:       sarama.StringEncoder(msg.key),
		Value:     sarama.ByteEncoder(msg.value),
		Timestamp: time.Now().UTC(),
	}
	for k, v := range msg.headers {
		if k == kafka.HeaderErrorMessage {
			continue
		}
		producerMessage.Headers = append(producerMessage.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	_, _, err := producer.SendMessage(producerMessage)
	return err
}

// extractReplayMessage разворачивает DLQ-сообщение outbox обратно в исходный конверт события.
func extractReplayMessage(msg *sarama.ConsumerMessage, targetTopic string) (replayMessage, error) {
	var envelope kafka.OutboxEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return replayMessage{}, fmt.Errorf("decode dlq envelope: %w", err)
	}
	if len(envelope.Payload) == 0 {
		return replayMessage{}, fmt.Errorf("dlq envelope has no payload")
	}

	var record dlqRecord
	if err := json.Unmarshal(envelope.Payload, &record); err != nil {
		return replayMessage{}, fmt.Errorf("decode outbox dlq payload: %w", err)
	}
	if len(record.Payload) == 0 {
		return replayMessage{}, fmt.Errorf("outbox dlq payload does not contain original event payload")
	}

	replay := kafka.OutboxEnvelope{
		ID:            firstNonEmpty(record.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(record.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(record.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(record.EventType, envelope.EventType),
		Payload:       record.Payload,
		OccurredAt:    envelope.OccurredAt,
		PublishedAt:   time.Now().UTC(),
	}
	encoded, err := json.Marshal(replay)
	if err != nil {
		return replayMessage{}, fmt.Errorf("encode replay envelope: %w", err)
	}

	return replayMessage{
		topic: targetTopic,
		// события одного счёта должны попасть в ту же партицию, что и исходные
		key:   firstNonEmpty(replay.AggregateID, replay.ID),
		value: encoded,
		headers: map[string]string{
			kafka.HeaderEventType:     replay.EventType,
			kafka.HeaderAggregateType: replay.AggregateType,
			kafka.HeaderErrorMessage:  record.PublishError,
			headerReplayedFrom:        msg.Topic,
		},
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
