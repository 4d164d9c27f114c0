package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const orderColumns = `
	id, owner_id, status, payment_method,
	ship_address, ship_city, ship_postal_code, ship_country,
	subtotal, tax, shipping_fee, discount, total,
	notified_placed, notified_shipped, notified_delivered,
	version, created_at, updated_at`

// OrderRepository хранит заказы в orders, позиции в order_items, журнал статусов в order_timeline.
type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(store *Store) *OrderRepository {
	return &OrderRepository{db: store.DB()}
}

func (r *OrderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		`,
			order.ID, order.OwnerID, string(order.Status), order.PaymentMethod,
			order.ShippingAddress.Address, order.ShippingAddress.City,
			order.ShippingAddress.PostalCode, order.ShippingAddress.Country,
			order.Pricing.Subtotal, order.Pricing.Tax, order.Pricing.ShippingFee,
			order.Pricing.Discount, order.Pricing.Total,
			order.Notifications.OrderPlaced, order.Notifications.OrderShipped, order.Notifications.OrderDelivered,
			order.Version, order.CreatedAt, order.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrOrderAlreadyExists
			}
			return fmt.Errorf("insert order: %w", err)
		}

		for i, item := range order.Items {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO order_items (order_id, position, product_id, product_name, quantity, unit_price)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, order.ID, i, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}

		return insertTimeline(ctx, tx, order.ID, 0, order.Timeline)
	})
}

func (r *OrderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	orders := []domain.Order{order}
	if err := r.attachChildren(ctx, orders); err != nil {
		return domain.Order{}, err
	}
	return orders[0], nil
}

func (r *OrderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	var (
		where []string
		args  []any
	)
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		where = append(where, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	if err := r.attachChildren(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		var current int64
		err := tx.QueryRowContext(ctx, `SELECT version FROM orders WHERE id = $1 FOR UPDATE`, order.ID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if current != order.Version {
			return domain.ErrOrderVersionConflict
		}

		stored, err := loadTimeline(ctx, tx, []string{order.ID})
		if err != nil {
			return err
		}
		prev := stored[order.ID]
		if !domain.TimelineExtends(prev, order.Timeline) {
			return domain.ErrTimelineRewrite
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET status = $2,
			    notified_placed = $3,
			    notified_shipped = $4,
			    notified_delivered = $5,
			    version = version + 1,
			    updated_at = $6
			WHERE id = $1
		`,
			order.ID, string(order.Status),
			order.Notifications.OrderPlaced, order.Notifications.OrderShipped, order.Notifications.OrderDelivered,
			order.UpdatedAt,
		); err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		return insertTimeline(ctx, tx, order.ID, len(prev), order.Timeline[len(prev):])
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		status string
	)
	err := row.Scan(
		&order.ID, &order.OwnerID, &status, &order.PaymentMethod,
		&order.ShippingAddress.Address, &order.ShippingAddress.City,
		&order.ShippingAddress.PostalCode, &order.ShippingAddress.Country,
		&order.Pricing.Subtotal, &order.Pricing.Tax, &order.Pricing.ShippingFee,
		&order.Pricing.Discount, &order.Pricing.Total,
		&order.Notifications.OrderPlaced, &order.Notifications.OrderShipped, &order.Notifications.OrderDelivered,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

// attachChildren подгружает позиции и журнал статусов двумя запросами на всю выборку.
func (r *OrderRepository) attachChildren(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}

	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return err
	}
	timelines, err := loadTimeline(ctx, r.db, ids)
	if err != nil {
		return err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
		orders[i].Timeline = timelines[orders[i].ID]
	}
	return nil
}

func (r *OrderRepository) loadItems(ctx context.Context, orderIDs []string) (map[string][]domain.LineItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, product_name, quantity, unit_price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]domain.LineItem, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			item    domain.LineItem
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		result[orderID] = append(result[orderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return result, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadTimeline(ctx context.Context, q querier, orderIDs []string) (map[string][]domain.TimelineEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT order_id, status, updated_at
		FROM order_timeline
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("load order timeline: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]domain.TimelineEntry, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			status  string
			entry   domain.TimelineEntry
		)
		if err := rows.Scan(&orderID, &status, &entry.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan timeline entry: %w", err)
		}
		entry.Status = domain.OrderStatus(status)
		entry.UpdatedAt = entry.UpdatedAt.UTC()
		result[orderID] = append(result[orderID], entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline rows: %w", err)
	}
	return result, nil
}

func insertTimeline(ctx context.Context, tx *sql.Tx, orderID string, offset int, entries []domain.TimelineEntry) error {
	for i, entry := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_timeline (order_id, position, status, updated_at)
			VALUES ($1,$2,$3,$4)
		`, orderID, offset+i, string(entry.Status), entry.UpdatedAt); err != nil {
			return fmt.Errorf("insert timeline entry: %w", err)
		}
	}
	return nil
}

var _ domain.OrderRepository = (*OrderRepository)(nil)
