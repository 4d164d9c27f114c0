package lifecycle_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

var (
	alice = domain.Principal{ID: "alice", Email: "alice@example.com", Role: domain.RoleUser}
	bob   = domain.Principal{ID: "bob", Email: "bob@example.com", Role: domain.RoleUser}
	admin = domain.Principal{ID: "root", Email: "ops@example.com", Role: domain.RoleAdmin}
)

type sentMail struct {
	To      string
	Subject string
}

type recordingNotifier struct {
	mu   sync.Mutex
	fail bool
	sent []sentMail
}

func (n *recordingNotifier) Send(_ context.Context, to, subject, _ string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return false
	}
	n.sent = append(n.sent, sentMail{To: to, Subject: subject})
	return true
}

func (n *recordingNotifier) Sent() []sentMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMail(nil), n.sent...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	mgr      *lifecycle.Manager
	orders   domain.OrderRepository
	catalog  *memory.Catalog
	carts    *memory.CartStore
	profiles *memory.ProfileStore
	outbox   *memory.OutboxRepository
	notifier *recordingNotifier
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	wrapOrders func(domain.OrderRepository) domain.OrderRepository
	wrapCarts  func(domain.CartStore) domain.CartStore
	opts       []lifecycle.Option
}

func withOrders(wrap func(domain.OrderRepository) domain.OrderRepository) fixtureOption {
	return func(c *fixtureConfig) { c.wrapOrders = wrap }
}

func withCarts(wrap func(domain.CartStore) domain.CartStore) fixtureOption {
	return func(c *fixtureConfig) { c.wrapCarts = wrap }
}

func withManagerOptions(opts ...lifecycle.Option) fixtureOption {
	return func(c *fixtureConfig) { c.opts = append(c.opts, opts...) }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		orders: memory.NewOrderRepository(),
		catalog: memory.NewCatalog(
			domain.Product{ID: "kettle", Name: "Kettle", Price: decimal.NewFromInt(1500), StockCount: 5},
			domain.Product{ID: "mug", Name: "Mug", Price: decimal.NewFromInt(800), StockCount: 3},
		),
		carts: memory.NewCartStore(),
		profiles: memory.NewProfileStore(
			domain.Profile{UserID: "alice", Email: "alice@example.com", Name: "Alice", Address: "1 Mall Rd, Lahore, 54000"},
			domain.Profile{UserID: "bob", Email: "bob@example.com", Name: "Bob", Address: domain.AddressNotProvided},
		),
		outbox:   memory.NewOutboxRepository(),
		notifier: &recordingNotifier{},
	}

	var cfg fixtureConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	var (
		orders domain.OrderRepository = f.orders
		carts  domain.CartStore       = f.carts
	)
	if cfg.wrapOrders != nil {
		orders = cfg.wrapOrders(orders)
	}
	if cfg.wrapCarts != nil {
		carts = cfg.wrapCarts(carts)
	}

	var seq atomic.Int64
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	managerOpts := append([]lifecycle.Option{
		lifecycle.WithNotifier(f.notifier),
		lifecycle.WithOutbox(f.outbox),
		lifecycle.WithMetrics(metrics.NewOrderMetricsWithRegisterer(prometheus.NewRegistry())),
		lifecycle.WithClock(clock.Now),
		lifecycle.WithIDGenerator(func() string { return fmt.Sprintf("ord-%d", seq.Add(1)) }),
	}, cfg.opts...)

	mgr, err := lifecycle.NewManager(lifecycle.Dependencies{
		Orders:   orders,
		Catalog:  f.catalog,
		Carts:    carts,
		Profiles: f.profiles,
	}, managerOpts...)
	require.NoError(t, err)
	f.mgr = mgr
	return f
}

func (f *fixture) fillCart(t *testing.T, owner string, items ...domain.CartItem) {
	t.Helper()
	require.NoError(t, f.carts.Put(context.Background(), domain.Cart{OwnerID: owner, Items: items}))
}

func (f *fixture) stock(t *testing.T, productID string) int {
	t.Helper()
	p, err := f.catalog.Get(context.Background(), productID)
	require.NoError(t, err)
	return p.StockCount
}

// placeOrder оформляет заказ alice из одного чайника.
func (f *fixture) placeOrder(t *testing.T) domain.Order {
	t.Helper()
	f.fillCart(t, alice.ID, domain.CartItem{ProductID: "kettle", Quantity: 1})
	order, err := f.mgr.CreateOrder(context.Background(), alice, lifecycle.CreateOrderRequest{})
	require.NoError(t, err)
	return order
}

func (f *fixture) eventTypes() []string {
	var types []string
	for _, msg := range f.outbox.AllPending() {
		types = append(types, msg.EventType)
	}
	return types
}

type failingOrders struct {
	domain.OrderRepository
	createErr     error
	saveConflicts atomic.Int32
}

func (r *failingOrders) Create(ctx context.Context, order domain.Order) error {
	if r.createErr != nil {
		return r.createErr
	}
	return r.OrderRepository.Create(ctx, order)
}

func (r *failingOrders) Save(ctx context.Context, order domain.Order) error {
	if r.saveConflicts.Load() > 0 {
		r.saveConflicts.Add(-1)
		return domain.ErrOrderVersionConflict
	}
	return r.OrderRepository.Save(ctx, order)
}

type failingCarts struct {
	domain.CartStore
}

func (failingCarts) Clear(context.Context, string) error {
	return fmt.Errorf("cart backend unavailable")
}
