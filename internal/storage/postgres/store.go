// Package postgres хранит заказы, каталог, outbox и ключи идемпотентности в PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
)

const (
	pingTimeout = 5 * time.Second
	opTimeout   = 5 * time.Second

	// SQLSTATE unique_violation.
	uniqueViolation = "23505"
)

var errStoreClosed = errors.New("postgres store is not initialized")

type poolConfig struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
	maxIdleTime time.Duration
	appName     string
}

// Option настраивает пул подключений Store.
type Option func(*poolConfig)

// WithPoolSize задаёт максимум открытых и простаивающих подключений.
func WithPoolSize(maxOpen, maxIdle int) Option {
	return func(c *poolConfig) {
		if maxOpen > 0 {
			c.maxOpen = maxOpen
		}
		if maxIdle > 0 {
			c.maxIdle = min(maxIdle, c.maxOpen)
		}
	}
}

// WithConnLifetime ограничивает жизнь подключения; полезно за pgbouncer.
func WithConnLifetime(d time.Duration) Option {
	return func(c *poolConfig) {
		if d > 0 {
			c.maxLifetime = d
		}
	}
}

// WithApplicationName задаёт application_name, видимый в pg_stat_activity.
func WithApplicationName(name string) Option {
	return func(c *poolConfig) {
		if name != "" {
			c.appName = name
		}
	}
}

// Store: пул database/sql поверх драйвера pgx.
type Store struct {
	db     *sql.DB
	logger *log.Entry
}

// Open разбирает DSN, открывает пул и проверяет доступность базы.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	cfg := poolConfig{
		maxOpen:     25,
		maxIdle:     25,
		maxLifetime: 30 * time.Minute,
		maxIdleTime: 5 * time.Minute,
		appName:     "storefront",
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if _, set := connConfig.RuntimeParams["application_name"]; !set {
		connConfig.RuntimeParams["application_name"] = cfg.appName
	}

	db := stdlib.OpenDB(*connConfig)
	db.SetMaxOpenConns(cfg.maxOpen)
	db.SetMaxIdleConns(cfg.maxIdle)
	db.SetConnMaxLifetime(cfg.maxLifetime)
	db.SetConnMaxIdleTime(cfg.maxIdleTime)

	store := &Store{
		db: db,
		logger: log.WithFields(log.Fields{
			"component": "postgres-store",
			"host":      connConfig.Host,
			"database":  connConfig.Database,
		}),
	}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return store, nil
}

// DB отдаёт пул для запросов репозиториев.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreClosed
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Close безопасен для nil.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// inTx коммитит, если fn вернула nil, иначе откатывает.
func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func withOpTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// execCount выполняет запрос и возвращает число затронутых строк.
func execCount(ctx context.Context, db *sql.DB, query string, args ...any) (int64, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
