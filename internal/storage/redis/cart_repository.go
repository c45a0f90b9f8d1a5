package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

const (
	defaultKeyPrefix = "creditmarket:cart:"
	defaultCartTTL   = 24 * time.Hour
)

// CartRepository хранит корзины в Redis: одна JSON-запись на клиента со скользящим TTL.
type CartRepository struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// Option настраивает CartRepository.
type Option func(*CartRepository)

// WithKeyPrefix задаёт префикс ключей.
func WithKeyPrefix(prefix string) Option {
	return func(r *CartRepository) {
		if prefix != "" {
			r.keyPrefix = prefix
		}
	}
}

// WithTTL задаёт время жизни неактивной корзины.
func WithTTL(ttl time.Duration) Option {
	return func(r *CartRepository) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// NewCartRepository создаёт хранилище поверх готового клиента.
func NewCartRepository(client *redis.Client, opts ...Option) *CartRepository {
	r := &CartRepository{client: client, keyPrefix: defaultKeyPrefix, ttl: defaultCartTTL}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect разбирает redis URL и проверяет соединение.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

type cartLineRecord struct {
	ProductID      string `json:"product_id"`
	ShopID         string `json:"shop_id"`
	ProductName    string `json:"product_name"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	Qty            int32  `json:"qty"`
}

type cartRecord struct {
	ID         string           `json:"id"`
	CustomerID string           `json:"customer_id"`
	Lines      []cartLineRecord `json:"lines"`
	Version    int64            `json:"version"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Get читает корзину и продлевает её TTL.
func (r *CartRepository) Get(ctx context.Context, customerID string) (domain.Cart, error) {
	key := r.key(customerID)
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("get cart: %w", err)
	}

	var rec cartRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.Cart{}, fmt.Errorf("decode cart: %w", err)
	}
	if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
		return domain.Cart{}, fmt.Errorf("touch cart: %w", err)
	}
	return fromRecord(rec), nil
}

// Save перезаписывает корзину целиком под WATCH: если другая реплика успела
// сохранить корзину после нашего чтения, возвращается ErrVersionConflict.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) error {
	if cart.CustomerID == "" {
		return domain.ErrCustomerRequired
	}
	key := r.key(cart.CustomerID)

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := storedVersion(ctx, tx, key)
		if err != nil {
			return err
		}
		if stored != cart.Version {
			return domain.ErrVersionConflict
		}

		rec := toRecord(cart)
		rec.Version = cart.Version + 1
		rec.UpdatedAt = time.Now().UTC()
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode cart: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, r.ttl)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return domain.ErrVersionConflict
	case errors.Is(err, domain.ErrVersionConflict):
		return err
	default:
		return fmt.Errorf("save cart: %w", err)
	}
}

// storedVersion читает версию сохранённой корзины; отсутствие ключа даёт 0.
func storedVersion(ctx context.Context, tx *redis.Tx, key string) (int64, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read cart version: %w", err)
	}
	var head struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return 0, fmt.Errorf("decode cart: %w", err)
	}
	return head.Version, nil
}

// Delete удаляет корзину; отсутствие ключа не ошибка.
func (r *CartRepository) Delete(ctx context.Context, customerID string) error {
	if err := r.client.Del(ctx, r.key(customerID)).Err(); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

// Ping нужен health-checker'у.
func (r *CartRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *CartRepository) key(customerID string) string {
	return r.keyPrefix + customerID
}

func toRecord(cart domain.Cart) cartRecord {
	rec := cartRecord{ID: cart.ID, CustomerID: cart.CustomerID, Version: cart.Version, UpdatedAt: cart.UpdatedAt}
	rec.Lines = make([]cartLineRecord, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		rec.Lines = append(rec.Lines, cartLineRecord(l))
	}
	return rec
}

func fromRecord(rec cartRecord) domain.Cart {
	cart := domain.Cart{ID: rec.ID, CustomerID: rec.CustomerID, Version: rec.Version, UpdatedAt: rec.UpdatedAt}
	for _, l := range rec.Lines {
		cart.Lines = append(cart.Lines, domain.CartLine(l))
	}
	return cart
}

var _ domain.CartRepository = (*CartRepository)(nil)
