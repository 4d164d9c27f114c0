package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// OrderView: заказ вместе с текущими карточками его товаров.
// Цены в позициях заказа остаются зафиксированными, Products нужны только для отображения.
type OrderView struct {
	Order    domain.Order
	Products map[string]domain.Product
}

// Product возвращает текущую карточку товара позиции, если товар ещё существует.
func (v OrderView) Product(productID string) (domain.Product, bool) {
	p, ok := v.Products[productID]
	return p, ok
}

// ListFilter: параметры выборки заказов.
type ListFilter struct {
	OwnerID string
	Status  string
	Limit   int
}

// GetOrder возвращает заказ владельцу или администратору.
func (m *Manager) GetOrder(ctx context.Context, principal domain.Principal, orderID string) (OrderView, error) {
	if principal.ID == "" {
		return OrderView{}, domain.ErrUnauthenticated
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return OrderView{}, domain.ErrInvalidOrderID
	}

	order, err := m.orders.Get(ctx, orderID)
	if err != nil {
		return OrderView{}, err
	}
	if err := domain.CanAccessOrder(principal, order); err != nil {
		return OrderView{}, err
	}

	views, err := m.withProducts(ctx, []domain.Order{order})
	if err != nil {
		return OrderView{}, err
	}
	return views[0], nil
}

// ListOrders возвращает заказы, новые первыми. Пользователь видит только свои заказы,
// администратор: все, с фильтром по владельцу и статусу.
func (m *Manager) ListOrders(ctx context.Context, principal domain.Principal, filter ListFilter) ([]OrderView, error) {
	if err := domain.RequireRole(principal, domain.RoleUser); err != nil {
		return nil, err
	}

	query := domain.OrderFilter{
		OwnerID: strings.TrimSpace(filter.OwnerID),
		Limit:   filter.Limit,
	}
	if !principal.IsAdmin() {
		query.OwnerID = principal.ID
	}
	if strings.TrimSpace(filter.Status) != "" {
		status, err := domain.ParseOrderStatus(filter.Status)
		if err != nil {
			return nil, err
		}
		query.Status = status
	}
	if query.Limit <= 0 || query.Limit > defaultListLimit {
		query.Limit = defaultListLimit
	}

	orders, err := m.orders.List(ctx, query)
	if err != nil {
		return nil, err
	}
	return m.withProducts(ctx, orders)
}

// withProducts подтягивает текущие карточки товаров. Удалённые товары пропускаются.
func (m *Manager) withProducts(ctx context.Context, orders []domain.Order) ([]OrderView, error) {
	ids := make(map[string]struct{})
	for _, order := range orders {
		for _, item := range order.Items {
			ids[item.ProductID] = struct{}{}
		}
	}

	var (
		mu       sync.Mutex
		products = make(map[string]domain.Product, len(ids))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(productLookupConc)
	for id := range ids {
		g.Go(func() error {
			product, err := m.products.Get(gctx, id)
			if errors.Is(err, domain.ErrProductNotFound) {
				return nil
			}
			if err != nil {
				m.logger.WithError(err).WithField("product_id", id).Warn("product lookup for order view failed")
				return nil
			}
			mu.Lock()
			products[id] = product
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	views := make([]OrderView, 0, len(orders))
	for _, order := range orders {
		view := OrderView{Order: order, Products: make(map[string]domain.Product, len(order.Items))}
		for _, item := range order.Items {
			if p, ok := products[item.ProductID]; ok {
				view.Products[item.ProductID] = p
			}
		}
		views = append(views, view)
	}
	return views, nil
}
