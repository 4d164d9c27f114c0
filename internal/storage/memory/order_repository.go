package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// OrderRepository хранит заказы в памяти с индексом по владельцу,
// чтобы "мои заказы" не сканировали чужие.
type OrderRepository struct {
	mu      sync.RWMutex
	orders  map[string]domain.Order
	byOwner map[string][]string
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders:  make(map[string]domain.Order),
		byOwner: make(map[string][]string),
	}
}

func (r *OrderRepository) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.orders[order.ID]; taken {
		return domain.ErrOrderAlreadyExists
	}
	r.orders[order.ID] = order.Clone()
	r.byOwner[order.OwnerID] = append(r.byOwner[order.OwnerID], order.ID)
	return nil
}

func (r *OrderRepository) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

// List отдаёт заказы по фильтру: новые первыми, при равном времени по убыванию ID.
func (r *OrderRepository) List(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []domain.Order
	keep := func(order domain.Order) {
		if filter.Status == "" || order.Status == filter.Status {
			matched = append(matched, order.Clone())
		}
	}

	if filter.OwnerID != "" {
		for _, id := range r.byOwner[filter.OwnerID] {
			keep(r.orders[id])
		}
	} else {
		for _, order := range r.orders {
			keep(order)
		}
	}

	slices.SortFunc(matched, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})

	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	if matched == nil {
		matched = []domain.Order{}
	}
	return matched, nil
}

// Save заменяет заказ, если версия совпала и журнал статусов только дописан.
// Владелец заказа не меняется, поэтому индекс не трогаем.
func (r *OrderRepository) Save(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.orders[order.ID]
	switch {
	case !ok:
		return domain.ErrOrderNotFound
	case current.Version != order.Version:
		return domain.ErrOrderVersionConflict
	case !domain.TimelineExtends(current.Timeline, order.Timeline):
		return domain.ErrTimelineRewrite
	}

	order.Version++
	order.OwnerID = current.OwnerID
	r.orders[order.ID] = order.Clone()
	return nil
}

var _ domain.OrderRepository = (*OrderRepository)(nil)
