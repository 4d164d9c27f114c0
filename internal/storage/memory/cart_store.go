package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// CartStore хранит корзины пользователей в памяти.
type CartStore struct {
	mu    sync.RWMutex
	carts map[string]domain.Cart
}

// NewCartStore создаёт пустое хранилище корзин.
func NewCartStore() *CartStore {
	return &CartStore{carts: make(map[string]domain.Cart)}
}

// Put заменяет корзину владельца.
func (s *CartStore) Put(_ context.Context, cart domain.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart.Items = append([]domain.CartItem(nil), cart.Items...)
	cart.UpdatedAt = time.Now().UTC()
	s.carts[cart.OwnerID] = cart
	return nil
}

// Get возвращает корзину; отсутствующая корзина считается пустой.
func (s *CartStore) Get(_ context.Context, ownerID string) (domain.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, ok := s.carts[ownerID]
	if !ok {
		return domain.Cart{OwnerID: ownerID}, nil
	}
	cart.Items = append([]domain.CartItem(nil), cart.Items...)
	return cart, nil
}

// Clear удаляет позиции, сама корзина остаётся.
func (s *CartStore) Clear(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[ownerID]
	if !ok {
		return nil
	}
	cart.Items = nil
	cart.UpdatedAt = time.Now().UTC()
	s.carts[ownerID] = cart
	return nil
}

var _ domain.CartStore = (*CartStore)(nil)
