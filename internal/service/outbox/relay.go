// Package outbox доставляет события заказов из transactional outbox в брокер.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	defaultMaxRetryDelay  = 5 * time.Second
)

// Исходы доставки, они же значения label у storefront_outbox_publish_attempts_total.
const (
	outcomeSent         = "sent"
	outcomeRetry        = "retry"
	outcomeDeadLettered = "dead_lettered"
	outcomeDLQFailed    = "dlq_failed"
)

var errNoDeadLetterQueue = errors.New("no dead letter publisher configured")

// BatchReport: итог одного Flush.
type BatchReport struct {
	Pulled       int
	Sent         int
	DeadLettered int
	// Dropped: события, которые не ушли ни в основной топик, ни в DLQ.
	Dropped int
}

// Relay забирает pending-события из outbox и публикует их.
// Событие, исчерпавшее попытки, уходит в DLQ и помечается failed,
// поэтому один сломанный заказ не блокирует очередь.
type Relay struct {
	repo       domain.OutboxRepository
	publisher  domain.OutboxPublisher
	deadLetter domain.OutboxPublisher
	metrics    *metrics.OutboxMetrics
	logger     *log.Entry
	now        func() time.Time

	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
	maxRetryDelay  time.Duration
}

// Option настраивает Relay.
type Option func(*Relay)

func WithLogger(logger *log.Entry) Option {
	return func(r *Relay) { r.logger = logger }
}

func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(r *Relay) { r.metrics = m }
}

// WithDLQPublisher задаёт получателя событий, исчерпавших попытки.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(r *Relay) { r.deadLetter = publisher }
}

func WithPollInterval(interval time.Duration) Option {
	return func(r *Relay) {
		if interval > 0 {
			r.pollInterval = interval
		}
	}
}

func WithBatchSize(size int) Option {
	return func(r *Relay) {
		if size > 0 {
			r.batchSize = size
		}
	}
}

// WithMaxAttempts задаёт число попыток публикации одного события.
func WithMaxAttempts(attempts int) Option {
	return func(r *Relay) {
		if attempts > 0 {
			r.maxAttempts = attempts
		}
	}
}

// WithRetryBaseDelay задаёт первую паузу между попытками; дальше она удваивается.
// Ноль отключает паузы.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(r *Relay) { r.retryBaseDelay = max(delay, 0) }
}

// WithMaxRetryDelay ограничивает паузу между попытками сверху.
func WithMaxRetryDelay(delay time.Duration) Option {
	return func(r *Relay) {
		if delay > 0 {
			r.maxRetryDelay = delay
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRelay создаёт relay между repo и publisher.
func NewRelay(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Relay {
	r := &Relay{
		repo:           repo,
		publisher:      publisher,
		now:            func() time.Time { return time.Now().UTC() },
		pollInterval:   defaultPollInterval,
		batchSize:      defaultBatchSize,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
		maxRetryDelay:  defaultMaxRetryDelay,
	}
	for _, option := range options {
		option(r)
	}
	if r.logger == nil {
		r.logger = log.WithField("component", "outbox-relay")
	}
	return r
}

// Run вызывает Flush каждые pollInterval до отмены ctx.
func (r *Relay) Run(ctx context.Context) {
	if r.repo == nil || r.publisher == nil {
		r.logger.Warn("outbox relay is disabled: no outbox or publisher")
		return
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		report := r.Flush(ctx)
		if report.DeadLettered > 0 || report.Dropped > 0 {
			r.logger.WithFields(log.Fields{
				"pulled":        report.Pulled,
				"sent":          report.Sent,
				"dead_lettered": report.DeadLettered,
				"dropped":       report.Dropped,
			}).Warn("outbox batch had undeliverable events")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Flush публикует одну порцию pending-событий.
func (r *Relay) Flush(ctx context.Context) BatchReport {
	var report BatchReport
	if ctx.Err() != nil {
		return report
	}

	r.observeBacklog(ctx)

	batch, err := r.repo.PullPending(ctx, r.batchSize)
	if err != nil {
		r.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return report
	}
	report.Pulled = len(batch)

	// Статусы пишутся и после отмены ctx: событие уже ушло наружу.
	markCtx := context.WithoutCancel(ctx)

	for _, msg := range batch {
		if ctx.Err() != nil {
			break
		}
		err := r.deliver(ctx, msg)
		if err != nil && ctx.Err() != nil {
			break
		}

		entry := r.logger.WithFields(log.Fields{
			"outbox_id":  msg.ID,
			"event_type": msg.EventType,
			"order_id":   msg.AggregateID,
		})

		if err == nil {
			report.Sent++
			if markErr := r.repo.MarkSent(markCtx, msg.ID); markErr != nil {
				entry.WithError(markErr).Warn("event published but not marked sent")
			}
			continue
		}

		entry.WithError(err).Error("order event undeliverable")
		if dlqErr := r.sendToDLQ(ctx, msg, err); dlqErr != nil {
			entry.WithError(dlqErr).Warn("dead letter publish failed")
			r.count(outcomeDLQFailed)
			report.Dropped++
		} else {
			r.count(outcomeDeadLettered)
			report.DeadLettered++
		}
		if markErr := r.repo.MarkFailed(markCtx, msg.ID); markErr != nil {
			entry.WithError(markErr).Warn("event not marked failed")
		}
	}

	if report.Pulled > 0 {
		r.observeBacklog(ctx)
	}
	return report
}

func (r *Relay) deliver(ctx context.Context, msg domain.OutboxMessage) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = r.publisher.Publish(ctx, msg); err == nil {
			r.count(outcomeSent)
			return nil
		}
		r.count(outcomeRetry)

		if attempt == r.maxAttempts {
			return fmt.Errorf("publish %s after %d attempts: %w", msg.EventType, attempt, err)
		}
		if wait := r.backoff(attempt); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
}

// backoff возвращает паузу после attempt-й неудачной попытки: base, 2*base, 4*base, ... не больше maxRetryDelay.
func (r *Relay) backoff(attempt int) time.Duration {
	if r.retryBaseDelay <= 0 {
		return 0
	}
	wait := r.retryBaseDelay
	for i := 1; i < attempt && wait < r.maxRetryDelay; i++ {
		wait *= 2
	}
	return min(wait, r.maxRetryDelay)
}

func (r *Relay) sendToDLQ(ctx context.Context, msg domain.OutboxMessage, cause error) error {
	if r.deadLetter == nil {
		return errNoDeadLetterQueue
	}

	body, err := json.Marshal(NewDeadLetter(msg, cause, r.now()))
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}

	wrapped := msg
	wrapped.Payload = body
	if err := r.deadLetter.Publish(ctx, wrapped); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	return nil
}

func (r *Relay) count(outcome string) {
	if r.metrics != nil {
		r.metrics.RecordPublish(outcome)
	}
}

func (r *Relay) observeBacklog(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	stats, err := r.repo.Stats(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("failed to read outbox backlog")
		return
	}
	r.metrics.SetBacklog(stats.PendingCount, stats.OldestPendingAt, r.now())
}
