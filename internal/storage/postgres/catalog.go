package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Catalog хранит товары и остатки в таблице products.
type Catalog struct {
	db *sql.DB
}

// NewCatalog создаёт PostgreSQL-каталог.
func NewCatalog(store *Store) *Catalog {
	return &Catalog{db: store.DB()}
}

// Put добавляет или обновляет товар.
func (c *Catalog) Put(ctx context.Context, product domain.Product) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = time.Now().UTC()
	}
	if _, err := c.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price, stock_count, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    price = EXCLUDED.price,
		    stock_count = EXCLUDED.stock_count,
		    updated_at = EXCLUDED.updated_at
	`, product.ID, product.Name, product.Price, product.StockCount, product.UpdatedAt); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

// Delete удаляет товар. Заказы хранят собственный снимок позиции.
func (c *Catalog) Delete(ctx context.Context, productID string) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	if _, err := c.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}

// Get возвращает товар или ErrProductNotFound.
func (c *Catalog) Get(ctx context.Context, productID string) (domain.Product, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	var p domain.Product
	err := c.db.QueryRowContext(ctx, `
		SELECT id, name, price, stock_count, updated_at
		FROM products
		WHERE id = $1
	`, productID).Scan(&p.ID, &p.Name, &p.Price, &p.StockCount, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

// Reserve списывает остатки всех позиций в одной транзакции.
// Строки блокируются в порядке id, чтобы параллельные заказы не взаимоблокировались.
func (c *Catalog) Reserve(ctx context.Context, requests []domain.StockRequest) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	ordered := append([]domain.StockRequest(nil), requests...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ProductID < ordered[j].ProductID })

	return inTx(ctx, c.db, func(tx *sql.Tx) error {
		for _, req := range ordered {
			var (
				name  string
				stock int
			)
			err := tx.QueryRowContext(ctx, `
				SELECT name, stock_count FROM products WHERE id = $1 FOR UPDATE
			`, req.ProductID).Scan(&name, &stock)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("product %s: %w", req.ProductID, domain.ErrProductNotFound)
			}
			if err != nil {
				return fmt.Errorf("lock product %s: %w", req.ProductID, err)
			}
			if stock < req.Quantity {
				return &domain.InsufficientStockError{
					ProductID:   req.ProductID,
					ProductName: name,
					Available:   stock,
					Requested:   req.Quantity,
				}
			}
		}

		now := time.Now().UTC()
		for _, req := range ordered {
			if _, err := tx.ExecContext(ctx, `
				UPDATE products
				SET stock_count = stock_count - $2, updated_at = $3
				WHERE id = $1
			`, req.ProductID, req.Quantity, now); err != nil {
				return fmt.Errorf("decrement stock %s: %w", req.ProductID, err)
			}
		}
		return nil
	})
}

// Release возвращает остатки. Удалённые товары пропускаются.
func (c *Catalog) Release(ctx context.Context, requests []domain.StockRequest) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	return inTx(ctx, c.db, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		for _, req := range requests {
			if _, err := tx.ExecContext(ctx, `
				UPDATE products
				SET stock_count = stock_count + $2, updated_at = $3
				WHERE id = $1
			`, req.ProductID, req.Quantity, now); err != nil {
				return fmt.Errorf("release stock %s: %w", req.ProductID, err)
			}
		}
		return nil
	})
}

var _ domain.ProductCatalog = (*Catalog)(nil)
