// Package idempotency обслуживает ключи идемпотентности оформления заказов.
package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultSweepInterval   = 10 * time.Minute
	defaultSweepBatchSize  = 500
	defaultSweepMaxBatches = 100
)

// ExpiredKeyStore удаляет просроченные ключи порциями.
// domain.IdempotencyRepository удовлетворяет этому интерфейсу.
type ExpiredKeyStore interface {
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// SweepReport описывает один проход очистки.
type SweepReport struct {
	Cutoff  time.Time
	Deleted int
	Batches int
	// Truncated выставляется, когда проход упёрся в лимит батчей;
	// остаток уйдёт на следующий тик.
	Truncated bool
}

// Sweeper периодически удаляет ключи, чей TTL истёк.
// Репозитории и сами скрывают просроченные ключи, поэтому очистка только освобождает место.
type Sweeper struct {
	store      ExpiredKeyStore
	metrics    *metrics.IdempotencyMetrics
	logger     *log.Entry
	interval   time.Duration
	batchSize  int
	maxBatches int
	now        func() time.Time
}

// Option настраивает Sweeper.
type Option func(*Sweeper)

func WithLogger(logger *log.Entry) Option {
	return func(s *Sweeper) { s.logger = logger }
}

func WithMetrics(m *metrics.IdempotencyMetrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

// WithInterval задаёт паузу между проходами.
func WithInterval(interval time.Duration) Option {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithBatchSize задаёт limit одного вызова DeleteExpired.
func WithBatchSize(size int) Option {
	return func(s *Sweeper) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithMaxBatches ограничивает число батчей за проход.
func WithMaxBatches(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.maxBatches = n
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSweeper создаёт очистку для store.
func NewSweeper(store ExpiredKeyStore, options ...Option) *Sweeper {
	s := &Sweeper{
		store:      store,
		interval:   defaultSweepInterval,
		batchSize:  defaultSweepBatchSize,
		maxBatches: defaultSweepMaxBatches,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "idempotency-sweeper")
	}
	return s
}

// Run выполняет проход сразу и затем каждые interval до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if s.store == nil {
		s.logger.Warn("idempotency sweeper is disabled: no key store")
		return
	}

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	report, err := s.Sweep(ctx)
	if errors.Is(err, context.Canceled) {
		return
	}
	if s.metrics != nil {
		s.metrics.RecordRun(err, report.Deleted, report.Truncated)
	}

	entry := s.logger.WithFields(log.Fields{
		"deleted": report.Deleted,
		"batches": report.Batches,
	})
	switch {
	case err != nil:
		entry.WithError(err).Warn("idempotency sweep failed")
	case report.Truncated:
		entry.Info("idempotency sweep hit batch cap, continuing next tick")
	case report.Deleted > 0:
		entry.Debug("idempotency sweep completed")
	}
}

// Sweep удаляет ключи, просроченные на момент начала прохода.
// Cutoff фиксируется один раз, чтобы ключи, истекающие во время прохода, не удлиняли его.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	report := SweepReport{Cutoff: s.now()}

	for report.Batches < s.maxBatches {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		deleted, err := s.store.DeleteExpired(ctx, report.Cutoff, s.batchSize)
		if err != nil {
			return report, err
		}
		report.Batches++
		report.Deleted += deleted
		if s.metrics != nil {
			s.metrics.RecordDeleted(deleted)
		}
		if deleted < s.batchSize {
			return report, nil
		}
	}

	report.Truncated = true
	return report, nil
}
