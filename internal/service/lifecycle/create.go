package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// CreateOrderRequest: параметры оформления заказа.
type CreateOrderRequest struct {
	// CartOwnerID: чья корзина оформляется; пусто означает корзину самого участника.
	CartOwnerID   string
	Address       domain.AddressInput
	PaymentMethod string
}

// CreateOrder оформляет заказ из корзины: проверяет остатки, фиксирует цены,
// атомарно списывает товар, сохраняет заказ, очищает корзину и отправляет письмо.
func (m *Manager) CreateOrder(ctx context.Context, principal domain.Principal, req CreateOrderRequest) (domain.Order, error) {
	if err := domain.RequireRole(principal, domain.RoleUser); err != nil {
		return domain.Order{}, err
	}

	ownerID := strings.TrimSpace(req.CartOwnerID)
	if ownerID == "" {
		ownerID = principal.ID
	}
	if ownerID != principal.ID && !principal.IsAdmin() {
		return domain.Order{}, domain.ErrForbidden
	}

	start := time.Now()
	if m.metrics != nil {
		m.metrics.RecordCreateStarted()
		defer func() { m.metrics.RecordCreateFinished(time.Since(start)) }()
	}

	logger := m.logger.WithField("owner_id", ownerID)

	cart, err := m.carts.Get(ctx, ownerID)
	if err != nil {
		return domain.Order{}, m.createFailed(logger, "cart", fmt.Errorf("load cart: %w", err))
	}
	if cart.Empty() {
		return domain.Order{}, m.createFailed(logger, "empty_cart", domain.ErrEmptyCart)
	}

	items, err := m.snapshotItems(ctx, cart)
	if err != nil {
		return domain.Order{}, m.createFailed(logger, failureReason(err), err)
	}

	address, err := m.resolveAddress(ctx, ownerID, req.Address)
	if err != nil {
		return domain.Order{}, m.createFailed(logger, failureReason(err), err)
	}

	order := domain.NewOrder(m.newID(), ownerID, items, address, req.PaymentMethod, m.now())
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, m.createFailed(logger, "invalid", errors.Join(errs...))
	}

	stock := domain.StockRequestsFor(order.Items)
	if err := m.catalog.Reserve(ctx, stock); err != nil {
		if m.metrics != nil && errors.Is(err, domain.ErrInsufficientStock) {
			m.metrics.RecordStockRejection()
		}
		return domain.Order{}, m.createFailed(logger, failureReason(err), err)
	}

	if err := m.orders.Create(ctx, order); err != nil {
		if releaseErr := m.catalog.Release(context.WithoutCancel(ctx), stock); releaseErr != nil {
			logger.WithError(releaseErr).WithField("order_id", order.ID).Error("release stock after failed order create")
		}
		return domain.Order{}, m.createFailed(logger, "persist", fmt.Errorf("persist order: %w", err))
	}

	logger = logger.WithField("order_id", order.ID)
	if m.metrics != nil {
		m.metrics.RecordOrderCreated()
	}
	logger.WithField("total", order.Pricing.Total.String()).Info("order created")

	if err := m.carts.Clear(ctx, ownerID); err != nil {
		logger.WithError(err).Warn("clear cart after order create failed")
	}

	m.enqueue(ctx, order, domain.EventOrderPlaced, newOrderPlaced(order))

	recipient := principal.Email
	if ownerID != principal.ID || recipient == "" {
		recipient = m.ownerEmail(ctx, ownerID)
	}
	if m.mailPlaced(ctx, order, recipient) {
		order = m.markPlacedNotified(ctx, logger, order)
	}

	return order, nil
}

// snapshotItems фиксирует текущие цены и проверяет остатки до любых изменений.
func (m *Manager) snapshotItems(ctx context.Context, cart domain.Cart) ([]domain.LineItem, error) {
	items := make([]domain.LineItem, 0, len(cart.Items))
	requested := make(map[string]int, len(cart.Items))

	for _, ci := range cart.Items {
		if ci.Quantity <= 0 {
			return nil, fmt.Errorf("product %s: %w", ci.ProductID, domain.ErrItemQtyInvalid)
		}

		product, err := m.catalog.Get(ctx, ci.ProductID)
		if err != nil {
			if errors.Is(err, domain.ErrProductNotFound) {
				return nil, fmt.Errorf("product %s: %w", ci.ProductID, domain.ErrProductNotFound)
			}
			return nil, fmt.Errorf("load product %s: %w", ci.ProductID, err)
		}

		requested[product.ID] += ci.Quantity
		if requested[product.ID] > product.StockCount {
			return nil, &domain.InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Available:   product.StockCount,
				Requested:   requested[product.ID],
			}
		}

		items = append(items, domain.LineItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    ci.Quantity,
			UnitPrice:   product.Price,
		})
	}
	return items, nil
}

func (m *Manager) resolveAddress(ctx context.Context, ownerID string, input domain.AddressInput) (domain.ShippingAddress, error) {
	if addr, err := domain.ResolveShippingAddress(input, ""); err == nil {
		return addr, nil
	}

	profile, err := m.profiles.Get(ctx, ownerID)
	switch {
	case errors.Is(err, domain.ErrProfileNotFound):
		return domain.ShippingAddress{}, domain.ErrMissingAddress
	case err != nil:
		return domain.ShippingAddress{}, fmt.Errorf("load profile: %w", err)
	}
	return domain.ResolveShippingAddress(input, profile.Address)
}

// markPlacedNotified выставляет флаг orderPlaced. Ошибка сохранения не отменяет заказ.
func (m *Manager) markPlacedNotified(ctx context.Context, logger *log.Entry, order domain.Order) domain.Order {
	updated, _, err := m.mutate(ctx, order.ID, func(o *domain.Order) (bool, error) {
		if o.Notifications.OrderPlaced {
			return false, nil
		}
		o.Notifications.OrderPlaced = true
		return true, nil
	})
	if err != nil {
		logger.WithError(err).Warn("persist order placed notification flag failed")
		return order
	}
	return updated
}

func (m *Manager) createFailed(logger *log.Entry, reason string, err error) error {
	if m.metrics != nil {
		m.metrics.RecordCreateFailed(reason)
	}
	entry := logger.WithError(err).WithField("reason", reason)
	if domain.IsValidation(err) || domain.IsNotFound(err) || errors.Is(err, domain.ErrForbidden) {
		entry.Info("order create rejected")
	} else {
		entry.Error("order create failed")
	}
	return err
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, domain.ErrMissingAddress), errors.Is(err, domain.ErrIncompleteAddress):
		return "address"
	case errors.Is(err, domain.ErrItemQtyInvalid):
		return "invalid_quantity"
	default:
		return "internal"
	}
}
