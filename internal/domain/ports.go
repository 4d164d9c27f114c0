package domain

import (
	"context"
	"time"
)

// CartStore даёт доступ к корзинам пользователей.
type CartStore interface {
	// Get возвращает корзину владельца. Отсутствующая корзина: пустая корзина, не ошибка.
	Get(ctx context.Context, ownerID string) (Cart, error)
	// Clear удаляет все позиции из корзины владельца.
	Clear(ctx context.Context, ownerID string) error
}

// ProductLookup читает текущие данные товаров.
type ProductLookup interface {
	// Get возвращает товар или ErrProductNotFound.
	Get(ctx context.Context, productID string) (Product, error)
}

// ProductCatalog: каталог с управлением остатками.
type ProductCatalog interface {
	ProductLookup
	// Reserve атомарно списывает остатки по всем запросам: либо все, либо ни одного.
	// Возвращает ErrInsufficientStock, если хотя бы одного товара не хватает.
	Reserve(ctx context.Context, requests []StockRequest) error
	// Release возвращает ранее списанные остатки (компенсация при сбое сохранения заказа).
	Release(ctx context.Context, requests []StockRequest) error
}

// ProfileStore читает профили пользователей.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (Profile, error)
}

// Notifier отправляет письма. Возвращает true только при подтверждённой отправке.
type Notifier interface {
	Send(ctx context.Context, to, subject, html string) bool
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, ownerID, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, ownerID, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, ownerID, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, ownerID, key string, responseBody []byte, httpStatus int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// Типы событий outbox, публикуемых менеджером заказов.
const (
	EventOrderPlaced        = "order.placed"
	EventOrderStatusChanged = "order.status_changed"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
