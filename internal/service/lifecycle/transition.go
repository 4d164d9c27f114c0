package lifecycle

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// TransitionStatus меняет статус заказа. Доступно только администратору.
// Повторная установка текущего статуса ничего не меняет и не пишет журнал.
func (m *Manager) TransitionStatus(ctx context.Context, principal domain.Principal, orderID, rawStatus string) (domain.Order, error) {
	if err := domain.RequireRole(principal, domain.RoleAdmin); err != nil {
		return domain.Order{}, err
	}

	target, err := domain.ParseOrderStatus(rawStatus)
	if err != nil {
		return domain.Order{}, err
	}

	return m.changeStatus(ctx, principal, orderID, target, "", func(o domain.Order) error {
		if !m.policy.Allows(o.Status, target) {
			return domain.ErrInvalidTransition
		}
		return nil
	})
}

// CancelOrder отменяет заказ. Владелец может отменить только заказ в статусе pending,
// администратор: по правилам политики переходов. Остатки на склад не возвращаются.
func (m *Manager) CancelOrder(ctx context.Context, principal domain.Principal, orderID, reason string) (domain.Order, error) {
	if err := domain.RequireRole(principal, domain.RoleUser); err != nil {
		return domain.Order{}, err
	}

	return m.changeStatus(ctx, principal, orderID, domain.OrderStatusCancelled, reason, func(o domain.Order) error {
		if err := domain.CanAccessOrder(principal, o); err != nil {
			return err
		}
		if principal.IsAdmin() {
			if !m.policy.Allows(o.Status, domain.OrderStatusCancelled) {
				return domain.ErrInvalidTransition
			}
			return nil
		}
		if o.Status != domain.OrderStatusPending {
			return domain.ErrInvalidTransition
		}
		return nil
	})
}

func (m *Manager) changeStatus(
	ctx context.Context,
	principal domain.Principal,
	orderID string,
	target domain.OrderStatus,
	reason string,
	check func(domain.Order) error,
) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, domain.ErrInvalidOrderID
	}

	var from domain.OrderStatus
	order, changed, err := m.mutate(ctx, orderID, func(o *domain.Order) (bool, error) {
		if o.Status == target {
			// Права проверяются и для no-op, чтобы не раскрывать чужие заказы.
			if err := domain.CanAccessOrder(principal, *o); err != nil {
				return false, err
			}
			return false, nil
		}
		if err := check(*o); err != nil {
			return false, err
		}
		from = o.Status
		o.ApplyStatus(target, m.now())
		return true, nil
	})
	if err != nil {
		m.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"target":   target,
			"actor_id": principal.ID,
		}).Info("status change rejected")
		return domain.Order{}, err
	}
	if !changed {
		return order, nil
	}

	m.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"from":     from,
		"to":       order.Status,
		"actor_id": principal.ID,
	}).Info("order status changed")
	if m.metrics != nil {
		m.metrics.RecordTransition(string(from), string(order.Status))
	}

	m.enqueue(ctx, order, domain.EventOrderStatusChanged, statusChanged{
		OrderID:   order.ID,
		From:      from,
		Status:    order.Status,
		ActorID:   principal.ID,
		Reason:    reason,
		UpdatedAt: order.UpdatedAt,
	})
	m.mailStatusChanged(ctx, order)

	return order, nil
}

// mutate загружает заказ, применяет изменение и сохраняет с optimistic locking.
// При конфликте версий заказ перечитывается и изменение применяется заново с exponential backoff.
func (m *Manager) mutate(ctx context.Context, orderID string, apply func(*domain.Order) (bool, error)) (domain.Order, bool, error) {
	for attempt := 0; attempt < maxSaveRetries; attempt++ {
		order, err := m.orders.Get(ctx, orderID)
		if err != nil {
			return domain.Order{}, false, err
		}

		changed, err := apply(&order)
		if err != nil {
			return domain.Order{}, false, err
		}
		if !changed {
			return order, false, nil
		}

		err = m.orders.Save(ctx, order)
		if err == nil {
			order.Version++
			return order, true, nil
		}
		if !domain.IsVersionConflict(err) || attempt == maxSaveRetries-1 {
			m.logger.WithError(err).WithFields(log.Fields{
				"order_id": orderID,
				"attempt":  attempt + 1,
			}).Error("failed to persist order")
			return domain.Order{}, false, err
		}

		m.logger.WithFields(log.Fields{
			"order_id": orderID,
			"attempt":  attempt + 1,
			"version":  order.Version,
		}).Warn("version conflict detected, retrying")

		delay := baseRetryDelay * time.Duration(1<<uint(attempt))
		select {
		case <-ctx.Done():
			return domain.Order{}, false, ctx.Err()
		case <-time.After(delay):
		}
	}
	return domain.Order{}, false, domain.ErrOrderVersionConflict
}
