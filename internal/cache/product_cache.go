// Package cache кэширует снимки товаров для отображения заказов в Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	defaultTTL    = time.Minute
	defaultJitter = 15 * time.Second
	keyPrefix     = "storefront:product:"
)

// ErrCacheMiss: товара нет в кэше.
var ErrCacheMiss = errors.New("cache miss")

type productEntry struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Price      string    `json:"price"`
	StockCount int       `json:"stock_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Option настраивает ProductCache.
type Option func(*ProductCache)

// WithTTL задаёт базовое время жизни записи.
func WithTTL(ttl time.Duration) Option {
	return func(c *ProductCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithJitter задаёт максимальный случайный разброс TTL.
func WithJitter(jitter time.Duration) Option {
	return func(c *ProductCache) {
		if jitter >= 0 {
			c.jitter = jitter
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(c *ProductCache) {
		c.logger = logger
	}
}

// ProductCache: read-through кэш поверх каталога.
// Промахи по одному товару схлопываются в один запрос к источнику.
type ProductCache struct {
	client *redis.Client
	source domain.ProductLookup
	group  singleflight.Group
	ttl    time.Duration
	jitter time.Duration
	logger *log.Entry
}

// NewProductCache создаёт кэш товаров.
func NewProductCache(client *redis.Client, source domain.ProductLookup, opts ...Option) *ProductCache {
	c := &ProductCache{
		client: client,
		source: source,
		ttl:    defaultTTL,
		jitter: defaultJitter,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.WithField("component", "product-cache")
	}
	return c
}

// Get возвращает товар из кэша, при промахе читает источник и заполняет кэш.
// Ошибки Redis не мешают чтению: запрос уходит в источник.
func (c *ProductCache) Get(ctx context.Context, productID string) (domain.Product, error) {
	product, err := c.cached(ctx, productID)
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		c.logger.WithError(err).WithField("product_id", productID).Warn("product cache read failed")
	}

	v, err, _ := c.group.Do(productID, func() (any, error) {
		product, err := c.source.Get(ctx, productID)
		if err != nil {
			return domain.Product{}, err
		}
		if setErr := c.store(context.WithoutCancel(ctx), product); setErr != nil {
			c.logger.WithError(setErr).WithField("product_id", productID).Warn("product cache write failed")
		}
		return product, nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return v.(domain.Product), nil
}

// Invalidate удаляет товары из кэша.
func (c *ProductCache) Invalidate(ctx context.Context, productIDs ...string) error {
	if len(productIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		keys = append(keys, cacheKey(id))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (c *ProductCache) cached(ctx context.Context, productID string) (domain.Product, error) {
	data, err := c.client.Get(ctx, cacheKey(productID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Product{}, ErrCacheMiss
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("redis get failed: %w", err)
	}

	var entry productEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return domain.Product{}, fmt.Errorf("unmarshal product failed: %w", err)
	}
	price, err := decimal.NewFromString(entry.Price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("parse cached price: %w", err)
	}
	return domain.Product{
		ID:         entry.ID,
		Name:       entry.Name,
		Price:      price,
		StockCount: entry.StockCount,
		UpdatedAt:  entry.UpdatedAt,
	}, nil
}

func (c *ProductCache) store(ctx context.Context, product domain.Product) error {
	data, err := json.Marshal(productEntry{
		ID:         product.ID,
		Name:       product.Name,
		Price:      product.Price.String(),
		StockCount: product.StockCount,
		UpdatedAt:  product.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal product failed: %w", err)
	}

	ttl := c.ttl
	if c.jitter > 0 {
		ttl += rand.N(c.jitter)
	}
	if err := c.client.Set(ctx, cacheKey(product.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func cacheKey(productID string) string {
	return keyPrefix + productID
}

var _ domain.ProductLookup = (*ProductCache)(nil)
