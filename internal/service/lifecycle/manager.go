// Package lifecycle управляет заказами: оформление из корзины, смена статусов и выборки.
package lifecycle

import (
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	maxSaveRetries    = 3
	baseRetryDelay    = 10 * time.Millisecond
	defaultListLimit  = 500
	productLookupConc = 8
)

// Dependencies: обязательные хранилища менеджера.
type Dependencies struct {
	Orders   domain.OrderRepository
	Catalog  domain.ProductCatalog
	Carts    domain.CartStore
	Profiles domain.ProfileStore
}

// Option настраивает Manager.
type Option func(*Manager)

// WithPolicy задаёт политику переходов статусов.
func WithPolicy(policy domain.TransitionPolicy) Option {
	return func(m *Manager) {
		m.policy = policy
	}
}

// WithNotifier задаёт отправку писем.
func WithNotifier(notifier domain.Notifier) Option {
	return func(m *Manager) {
		m.notifier = notifier
	}
}

// WithOutbox включает запись событий заказа в transactional outbox.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(m *Manager) {
		m.outbox = outbox
	}
}

// WithProductLookup задаёт источник товаров для отображения заказов (например, кэш).
func WithProductLookup(lookup domain.ProductLookup) Option {
	return func(m *Manager) {
		m.products = lookup
	}
}

// WithMetrics включает метрики Prometheus.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(mgr *Manager) {
		mgr.metrics = m
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithIDGenerator подменяет генератор идентификаторов заказов.
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) {
		m.newID = newID
	}
}

// Manager реализует операции жизненного цикла заказа.
type Manager struct {
	orders   domain.OrderRepository
	catalog  domain.ProductCatalog
	products domain.ProductLookup
	carts    domain.CartStore
	profiles domain.ProfileStore
	notifier domain.Notifier
	outbox   domain.OutboxRepository
	policy   domain.TransitionPolicy
	metrics  *metrics.OrderMetrics
	logger   *log.Entry
	now      func() time.Time
	newID    func() string
}

// NewManager создаёт менеджер заказов.
func NewManager(deps Dependencies, opts ...Option) (*Manager, error) {
	if deps.Orders == nil || deps.Catalog == nil || deps.Carts == nil || deps.Profiles == nil {
		return nil, errors.New("lifecycle: orders, catalog, carts and profiles are required")
	}

	m := &Manager{
		orders:   deps.Orders,
		catalog:  deps.Catalog,
		carts:    deps.Carts,
		profiles: deps.Profiles,
		policy:   domain.PermissivePolicy(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.products == nil {
		m.products = m.catalog
	}
	if m.logger == nil {
		m.logger = log.WithField("component", "order-lifecycle")
	}
	if m.policy == nil {
		m.policy = domain.PermissivePolicy()
	}
	return m, nil
}

// Policy возвращает действующую политику переходов.
func (m *Manager) Policy() domain.TransitionPolicy {
	return m.policy
}
