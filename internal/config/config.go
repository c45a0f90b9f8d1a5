// Package config собирает настройки сервиса: значения по умолчанию, затем YAML-файл
// (CREDITMARKET_CONFIG), затем переменные окружения CREDITMARKET_*.
package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix — префикс переменных окружения.
const EnvPrefix = "CREDITMARKET_"

// StorageDriver определяет backend для счетов, транзакций, выписок и outbox.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// CartStore определяет хранилище корзин.
type CartStore string

const (
	CartStoreMemory CartStore = "memory"
	CartStoreRedis  CartStore = "redis"
)

// Config — настройки процесса.
type Config struct {
	GRPCAddr  string `yaml:"grpc_addr"`
	HTTPAddr  string `yaml:"http_addr"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	StorageDriver       StorageDriver `yaml:"storage_driver"`
	PostgresDSN         string        `yaml:"postgres_dsn"`
	PostgresAutoMigrate bool          `yaml:"postgres_auto_migrate"`
	PostgresMaxConns    int           `yaml:"postgres_max_conns"`

	CartStore CartStore     `yaml:"cart_store"`
	RedisURL  string        `yaml:"redis_url"`
	CartTTL   time.Duration `yaml:"cart_ttl"`

	// CartMaxLineQty — максимум штук одного товара в корзине.
	CartMaxLineQty int `yaml:"cart_max_line_qty"`

	KafkaBrokers       []string `yaml:"kafka_brokers"`
	KafkaClientID      string   `yaml:"kafka_client_id"`
	KafkaLedgerTopic   string   `yaml:"kafka_ledger_topic"`
	KafkaCheckoutTopic string   `yaml:"kafka_checkout_topic"`
	KafkaDLQTopic      string   `yaml:"kafka_dlq_topic"`

	OutboxPollInterval time.Duration `yaml:"outbox_poll_interval"`
	OutboxBatchSize    int           `yaml:"outbox_batch_size"`
	OutboxMaxAttempts  int           `yaml:"outbox_max_attempts"`
	OutboxRetryDelay   time.Duration `yaml:"outbox_retry_delay"`

	IdempotencyTTL              time.Duration `yaml:"idempotency_ttl"`
	IdempotencyCleanupInterval  time.Duration `yaml:"idempotency_cleanup_interval"`
	IdempotencyCleanupBatchSize int           `yaml:"idempotency_cleanup_batch_size"`

	BillingCloseInterval    time.Duration `yaml:"billing_close_interval"`
	StatementDueDay         int           `yaml:"statement_due_day"`
	DefaultCreditLimitMinor int64         `yaml:"default_credit_limit_minor"`

	AuthSecret string `yaml:"auth_secret"`

	TracingEnabled     bool   `yaml:"tracing_enabled"`
	TracingServiceName string `yaml:"tracing_service_name"`

	SeedFile string `yaml:"seed_file"`
}

// Default возвращает настройки локального запуска: всё в памяти, без Kafka.
func Default() Config {
	return Config{
		GRPCAddr:  ":50051",
		HTTPAddr:  ":9090",
		LogLevel:  "info",
		LogFormat: "text",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		PostgresMaxConns:    25,

		CartStore: CartStoreMemory,
		CartTTL:   24 * time.Hour,

		CartMaxLineQty: 999,

		KafkaClientID:      "creditmarket",
		KafkaLedgerTopic:   "creditmarket.ledger.events",
		KafkaCheckoutTopic: "creditmarket.checkout.events",
		KafkaDLQTopic:      "creditmarket.dlq",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   50 * time.Millisecond,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,

		BillingCloseInterval:    time.Hour,
		StatementDueDay:         15,
		DefaultCreditLimitMinor: 50000_00,

		TracingServiceName: "creditmarket",
	}
}

// Load собирает конфигурацию из файла (если задан CREDITMARKET_CONFIG) и окружения.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv(EnvPrefix + "CONFIG"); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnv(os.Getenv, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// LoadFile накладывает YAML-файл поверх cfg. Неизвестные ключи — ошибка.
func LoadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv накладывает переменные окружения поверх cfg.
func ApplyEnv(getenv func(string) string, cfg *Config) error {
	e := envReader{getenv: getenv}

	e.str("GRPC_ADDR", &cfg.GRPCAddr)
	e.str("HTTP_ADDR", &cfg.HTTPAddr)
	e.str("LOG_LEVEL", &cfg.LogLevel)
	e.str("LOG_FORMAT", &cfg.LogFormat)

	var driver, cartStore string
	if e.str("STORAGE_DRIVER", &driver) {
		cfg.StorageDriver = StorageDriver(strings.ToLower(driver))
	}
	e.str("POSTGRES_DSN", &cfg.PostgresDSN)
	e.boolean("POSTGRES_AUTO_MIGRATE", &cfg.PostgresAutoMigrate)
	e.integer("POSTGRES_MAX_CONNS", &cfg.PostgresMaxConns)

	if e.str("CART_STORE", &cartStore) {
		cfg.CartStore = CartStore(strings.ToLower(cartStore))
	}
	e.str("REDIS_URL", &cfg.RedisURL)
	e.duration("CART_TTL", &cfg.CartTTL)
	e.integer("CART_MAX_LINE_QTY", &cfg.CartMaxLineQty)

	var brokers string
	if e.str("KAFKA_BROKERS", &brokers) {
		cfg.KafkaBrokers = splitList(brokers)
	}
	e.str("KAFKA_CLIENT_ID", &cfg.KafkaClientID)
	e.str("KAFKA_LEDGER_TOPIC", &cfg.KafkaLedgerTopic)
	e.str("KAFKA_CHECKOUT_TOPIC", &cfg.KafkaCheckoutTopic)
	e.str("KAFKA_DLQ_TOPIC", &cfg.KafkaDLQTopic)

	e.duration("OUTBOX_POLL_INTERVAL", &cfg.OutboxPollInterval)
	e.integer("OUTBOX_BATCH_SIZE", &cfg.OutboxBatchSize)
	e.integer("OUTBOX_MAX_ATTEMPTS", &cfg.OutboxMaxAttempts)
	e.duration("OUTBOX_RETRY_DELAY", &cfg.OutboxRetryDelay)

	e.duration("IDEMPOTENCY_TTL", &cfg.IdempotencyTTL)
	e.duration("IDEMPOTENCY_CLEANUP_INTERVAL", &cfg.IdempotencyCleanupInterval)
	e.integer("IDEMPOTENCY_CLEANUP_BATCH_SIZE", &cfg.IdempotencyCleanupBatchSize)

	e.duration("BILLING_CLOSE_INTERVAL", &cfg.BillingCloseInterval)
	e.integer("STATEMENT_DUE_DAY", &cfg.StatementDueDay)
	e.int64("DEFAULT_CREDIT_LIMIT_MINOR", &cfg.DefaultCreditLimitMinor)

	e.str("AUTH_SECRET", &cfg.AuthSecret)
	e.boolean("TRACING_ENABLED", &cfg.TracingEnabled)
	e.str("TRACING_SERVICE_NAME", &cfg.TracingServiceName)
	e.str("SEED_FILE", &cfg.SeedFile)

	return errors.Join(e.errs...)
}

// Validate сообщает обо всех ошибках конфигурации сразу.
func (c Config) Validate() error {
	var errs []error
	if c.GRPCAddr == "" {
		errs = append(errs, errors.New("grpc_addr is required"))
	}
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres_dsn is required for postgres storage"))
		}
		if c.PostgresMaxConns < 0 {
			errs = append(errs, errors.New("postgres_max_conns must not be negative"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}
	switch c.CartStore {
	case CartStoreMemory:
	case CartStoreRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("redis_url is required for redis cart store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported cart store %q", c.CartStore))
	}
	if c.CartMaxLineQty < 1 || c.CartMaxLineQty > math.MaxInt32 {
		errs = append(errs, fmt.Errorf("cart_max_line_qty must be within 1..%d, got %d", math.MaxInt32, c.CartMaxLineQty))
	}
	if c.StatementDueDay < 1 || c.StatementDueDay > 31 {
		errs = append(errs, fmt.Errorf("statement_due_day must be within 1..31, got %d", c.StatementDueDay))
	}
	if c.DefaultCreditLimitMinor < 0 {
		errs = append(errs, errors.New("default_credit_limit_minor must be non-negative"))
	}
	if c.AuthSecret != "" && len(c.AuthSecret) < 16 {
		errs = append(errs, errors.New("auth_secret must be at least 16 bytes"))
	}
	if c.OutboxBatchSize <= 0 || c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox batch size and max attempts must be positive"))
	}
	return errors.Join(errs...)
}

// AuthEnabled — JWT-проверка включается, когда задан секрет.
func (c Config) AuthEnabled() bool {
	return c.AuthSecret != ""
}

type envReader struct {
	getenv func(string) string
	errs   []error
}

func (e *envReader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(e.getenv(EnvPrefix + key))
	return v, v != ""
}

func (e *envReader) str(key string, dst *string) bool {
	v, ok := e.lookup(key)
	if ok {
		*dst = v
	}
	return ok
}

func (e *envReader) boolean(key string, dst *bool) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return
	}
	*dst = b
}

func (e *envReader) integer(key string, dst *int) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return
	}
	*dst = n
}

func (e *envReader) int64(key string, dst *int64) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return
	}
	*dst = n
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return
	}
	*dst = d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
