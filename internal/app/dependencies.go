package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cache"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/service/notification"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	mongostore "github.com/vladislavdragonenkov/storefront/internal/storage/mongo"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

// Dependencies содержит хранилища и адаптеры, из которых собирается сервис.
type Dependencies struct {
	Orders      domain.OrderRepository
	Catalog     domain.ProductCatalog
	Products    domain.ProductLookup
	Carts       domain.CartStore
	Profiles    domain.ProfileStore
	Outbox      domain.OutboxRepository
	Idempotency domain.IdempotencyRepository
	Notifier    domain.Notifier
	Health      *health.Monitor
	Logger      *log.Entry

	closers []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// NewDependencies подключает хранилища по выбранному драйверу.
// При ошибке уже открытые подключения закрываются.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{
		Health: health.NewMonitor(version.GetVersion()),
		Logger: logger,
	}

	var err error
	switch cfg.StorageDriver {
	case StorageDriverPostgres:
		err = deps.initPostgres(ctx, cfg)
		if err == nil {
			err = deps.initMongo(ctx, cfg)
		}
	case StorageDriverMemory, "":
		deps.initMemory(cfg)
	default:
		err = fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
	if err != nil {
		deps.Close(context.WithoutCancel(ctx))
		return nil, err
	}

	deps.Products = deps.Catalog
	if cfg.RedisAddr != "" {
		deps.initProductCache(ctx, cfg)
	}
	deps.Notifier = newNotifier(cfg.SMTP, logger)

	return deps, nil
}

// Close закрывает подключения в обратном порядке открытия.
func (d *Dependencies) Close(ctx context.Context) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		c := d.closers[i]
		if err := c.fn(ctx); err != nil {
			d.Logger.WithError(err).WithField("dependency", c.name).Warn("failed to close dependency")
		}
	}
	d.closers = nil
}

func (d *Dependencies) onClose(name string, fn func(context.Context) error) {
	d.closers = append(d.closers, closer{name: name, fn: fn})
}

func (d *Dependencies) initMemory(cfg Config) {
	catalog := memory.NewCatalog()
	carts := memory.NewCartStore()
	profiles := memory.NewProfileStore()
	if cfg.SeedDemoData {
		catalog, carts, profiles = demoData()
		d.Logger.Info("in-memory storage seeded with demo catalog")
	}

	d.Orders = memory.NewOrderRepository()
	d.Catalog = catalog
	d.Carts = carts
	d.Profiles = profiles
	d.Outbox = memory.NewOutboxRepository()
	d.Idempotency = memory.NewIdempotencyRepository()
}

func (d *Dependencies) initPostgres(ctx context.Context, cfg Config) error {
	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	d.onClose("postgres", func(context.Context) error { return store.Close() })

	if cfg.PostgresAutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("apply postgres migrations: %w", err)
		}
	}

	d.Orders = postgres.NewOrderRepository(store)
	d.Catalog = postgres.NewCatalog(store)
	d.Outbox = postgres.NewOutboxRepository(store)
	d.Idempotency = postgres.NewIdempotencyRepository(store)
	d.Health.Require("postgres", store.Ping)

	d.Logger.Info("postgres storage initialized")
	return nil
}

func (d *Dependencies) initMongo(ctx context.Context, cfg Config) error {
	db, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	d.onClose("mongo", func(ctx context.Context) error { return mongostore.Disconnect(ctx, db) })

	carts := mongostore.NewCartStore(db)
	if err := carts.CreateIndexes(ctx); err != nil {
		return fmt.Errorf("create cart indexes: %w", err)
	}
	profiles := mongostore.NewProfileStore(db)
	if err := profiles.CreateIndexes(ctx); err != nil {
		return fmt.Errorf("create profile indexes: %w", err)
	}

	d.Carts = carts
	d.Profiles = profiles
	d.Health.Require("mongo", func(ctx context.Context) error {
		return mongostore.Ping(ctx, db)
	})

	d.Logger.WithField("database", cfg.MongoDatabase).Info("mongo storage initialized")
	return nil
}

// initProductCache ставит redis перед каталогом для отображения заказов.
// Redis не обязателен: без него товары читаются из каталога напрямую.
func (d *Dependencies) initProductCache(ctx context.Context, cfg Config) {
	client, err := cache.NewClient(ctx, cache.ClientOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		d.Logger.WithError(err).Warn("redis is unavailable, product cache disabled")
		return
	}
	d.onClose("redis", func(context.Context) error { return client.Close() })

	d.Products = cache.NewProductCache(client, d.Catalog,
		cache.WithTTL(cfg.ProductCacheTTL),
		cache.WithLogger(d.Logger.WithField("component", "product-cache")),
	)
	d.Health.Watch("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

func newNotifier(cfg notification.SMTPConfig, logger *log.Entry) domain.Notifier {
	if !cfg.Enabled() {
		logger.Info("smtp is not configured, order emails are only logged")
		return notification.NewNoopNotifier(logger.WithField("component", "notifier"))
	}
	return notification.NewSMTPNotifier(cfg, notification.WithLogger(logger.WithField("component", "smtp-notifier")))
}

func demoData() (*memory.Catalog, *memory.CartStore, *memory.ProfileStore) {
	catalog := memory.NewCatalog(
		domain.Product{ID: "kettle", Name: "Electric Kettle", Price: decimal.NewFromInt(1500), StockCount: 25},
		domain.Product{ID: "mug", Name: "Ceramic Mug", Price: decimal.NewFromInt(800), StockCount: 40},
		domain.Product{ID: "teapot", Name: "Glass Teapot", Price: decimal.NewFromInt(2600), StockCount: 10},
	)
	profiles := memory.NewProfileStore(
		domain.Profile{UserID: "demo", Email: "demo@example.com", Name: "Demo User", Address: "1 Mall Rd, Lahore, 54000"},
	)
	carts := memory.NewCartStore()
	_ = carts.Put(context.Background(), domain.Cart{
		OwnerID: "demo",
		Items: []domain.CartItem{
			{ProductID: "kettle", Quantity: 2},
			{ProductID: "mug", Quantity: 1},
		},
	})
	return catalog, carts, profiles
}
