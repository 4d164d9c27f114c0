package lifecycle

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/notification"
)

// orderPlaced: тело события order.placed.
type orderPlaced struct {
	OrderID   string             `json:"order_id"`
	OwnerID   string             `json:"owner_id"`
	Status    domain.OrderStatus `json:"status"`
	Total     string             `json:"total"`
	ItemCount int                `json:"item_count"`
	CreatedAt time.Time          `json:"created_at"`
}

func newOrderPlaced(order domain.Order) orderPlaced {
	return orderPlaced{
		OrderID:   order.ID,
		OwnerID:   order.OwnerID,
		Status:    order.Status,
		Total:     order.Pricing.Total.String(),
		ItemCount: len(order.Items),
		CreatedAt: order.CreatedAt,
	}
}

// statusChanged: тело события order.status_changed.
type statusChanged struct {
	OrderID   string             `json:"order_id"`
	From      domain.OrderStatus `json:"from"`
	Status    domain.OrderStatus `json:"status"`
	ActorID   string             `json:"actor_id"`
	Reason    string             `json:"reason,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// enqueue кладёт событие в outbox. Ошибка только логируется: заказ уже сохранён.
func (m *Manager) enqueue(ctx context.Context, order domain.Order, eventType string, body any) {
	if m.outbox == nil {
		return
	}
	entry := m.logger.WithFields(log.Fields{"order_id": order.ID, "event_type": eventType})

	payload, err := json.Marshal(body)
	if err != nil {
		entry.WithError(err).Error("encode order event")
		return
	}
	_, err = m.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       payload,
	})
	if err != nil {
		entry.WithError(err).Error("order event lost: outbox enqueue failed")
		return
	}
	if m.metrics != nil {
		m.metrics.RecordOutboxEvent()
	}
}

// mailPlaced отправляет подтверждение заказа и сообщает, ушло ли письмо.
func (m *Manager) mailPlaced(ctx context.Context, order domain.Order, recipient string) bool {
	msg, err := notification.OrderPlaced(order)
	if err != nil {
		m.logger.WithError(err).WithField("order_id", order.ID).Error("render confirmation email")
		return false
	}
	return m.mail(ctx, order.ID, recipient, msg)
}

func (m *Manager) mailStatusChanged(ctx context.Context, order domain.Order) {
	msg, err := notification.StatusChanged(order)
	if err != nil {
		m.logger.WithError(err).WithField("order_id", order.ID).Error("render status email")
		return
	}
	m.mail(ctx, order.ID, m.ownerEmail(ctx, order.OwnerID), msg)
}

func (m *Manager) mail(ctx context.Context, orderID, recipient string, msg notification.Message) bool {
	if m.notifier == nil {
		return false
	}
	entry := m.logger.WithFields(log.Fields{"order_id": orderID, "kind": msg.Kind})
	if recipient == "" {
		entry.Warn("order email skipped: owner has no address")
		return false
	}

	sent := m.notifier.Send(ctx, recipient, msg.Subject, msg.HTML)
	if m.metrics != nil {
		m.metrics.RecordNotification(string(msg.Kind), sent)
	}
	if !sent {
		entry.Warn("order email not delivered")
	}
	return sent
}

// ownerEmail возвращает адрес из профиля владельца или "", если профиля нет.
func (m *Manager) ownerEmail(ctx context.Context, ownerID string) string {
	profile, err := m.profiles.Get(ctx, ownerID)
	if err != nil {
		m.logger.WithError(err).WithField("owner_id", ownerID).Warn("owner profile unavailable for email")
		return ""
	}
	return profile.Email
}
