package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/notification"
)

const (
	// StorageDriverMemory хранит всё в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres хранит заказы и каталог в PostgreSQL, корзины и профили в MongoDB.
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска сервиса заказов.
type Config struct {
	HTTPAddr       string
	MetricsAddr    string
	RequestTimeout time.Duration

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	MongoURI            string
	MongoDatabase       string
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	ProductCacheTTL     time.Duration

	KafkaBrokers  []string
	KafkaClientID string

	JWTSecret string
	JWTIssuer string

	SMTP             notification.SMTPConfig
	TransitionPolicy string

	OutboxPollInterval          time.Duration
	OutboxBatchSize             int
	OutboxMaxAttempts           int
	OutboxRetryDelay            time.Duration
	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	// SeedDemoData наполняет in-memory хранилища демонстрационным каталогом.
	SeedDemoData bool
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:       ":8080",
		MetricsAddr:    ":9090",
		RequestTimeout: 15 * time.Second,

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		MongoDatabase:       "storefront",
		ProductCacheTTL:     time.Minute,

		KafkaClientID: "storefront-orders",
		JWTIssuer:     "storefront",

		TransitionPolicy: domain.PolicyPermissive,

		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            50 * time.Millisecond,
		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
	}
}

// Validate проверяет согласованность настроек перед запуском.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http addr is required"))
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("jwt secret is required"))
	}

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage"))
		}
		if strings.TrimSpace(c.MongoURI) == "" {
			errs = append(errs, errors.New("mongo uri is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	if _, err := domain.PolicyByName(c.TransitionPolicy); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
