package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Catalog: in-memory каталог товаров с атомарным списанием остатков.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

// NewCatalog создаёт каталог с начальным набором товаров.
func NewCatalog(products ...domain.Product) *Catalog {
	c := &Catalog{products: make(map[string]domain.Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

// Put добавляет или заменяет товар.
func (c *Catalog) Put(_ context.Context, product domain.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = time.Now().UTC()
	}
	c.products[product.ID] = product
	return nil
}

// Delete убирает товар из каталога. Уже оформленные заказы сохраняют его снимок.
func (c *Catalog) Delete(_ context.Context, productID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.products, productID)
	return nil
}

// Get возвращает товар или ErrProductNotFound.
func (c *Catalog) Get(_ context.Context, productID string) (domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	product, ok := c.products[productID]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// Reserve проверяет все запросы и только затем списывает остатки, под одной блокировкой.
func (c *Catalog) Reserve(_ context.Context, requests []domain.StockRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, req := range requests {
		product, ok := c.products[req.ProductID]
		if !ok {
			return fmt.Errorf("product %s: %w", req.ProductID, domain.ErrProductNotFound)
		}
		if product.StockCount < req.Quantity {
			return &domain.InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Available:   product.StockCount,
				Requested:   req.Quantity,
			}
		}
	}

	now := time.Now().UTC()
	for _, req := range requests {
		product := c.products[req.ProductID]
		product.StockCount -= req.Quantity
		product.UpdatedAt = now
		c.products[req.ProductID] = product
	}
	return nil
}

// Release возвращает остатки. Удалённые за это время товары пропускаются.
func (c *Catalog) Release(_ context.Context, requests []domain.StockRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	for _, req := range requests {
		product, ok := c.products[req.ProductID]
		if !ok {
			continue
		}
		product.StockCount += req.Quantity
		product.UpdatedAt = now
		c.products[req.ProductID] = product
	}
	return nil
}

var _ domain.ProductCatalog = (*Catalog)(nil)
