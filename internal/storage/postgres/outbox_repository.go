package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	outboxPending = "pending"
	outboxSent    = "sent"
	outboxFailed  = "failed"

	defaultOutboxClaim = 100
	// defaultOutboxLease: сколько pending-событие невидимо для других реплик после выдачи.
	defaultOutboxLease = 30 * time.Second
)

// OutboxRepository: transactional outbox в таблице outbox_messages.
// PullPending арендует строки на lease, поэтому несколько реплик relay
// не публикуют одно событие параллельно; неотмеченная аренда истекает сама.
type OutboxRepository struct {
	db    *sql.DB
	lease time.Duration
	now   func() time.Time
}

func NewOutboxRepository(store *Store) *OutboxRepository {
	return &OutboxRepository{
		db:    store.DB(),
		lease: defaultOutboxLease,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = r.now()
	}

	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outbox_messages
			(id, aggregate_type, aggregate_id, event_type, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, outboxPending, msg.CreatedAt)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("enqueue %s for %s: %w", msg.EventType, msg.AggregateID, err)
	}
	return msg, nil
}

// PullPending арендует до limit pending-событий, у которых нет живой аренды, в порядке seq.
func (r *OutboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultOutboxClaim
	}
	now := r.now()

	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		WITH claimable AS (
			SELECT id
			FROM outbox_messages
			WHERE status = $1
			  AND (claimed_until IS NULL OR claimed_until <= $2)
			ORDER BY seq
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outbox_messages AS o
		SET claimed_until = $4,
		    attempt_count = o.attempt_count + 1
		FROM claimable
		WHERE o.id = claimable.id
		RETURNING o.seq, o.id, o.aggregate_type, o.aggregate_id, o.event_type, o.payload, o.created_at
	`, outboxPending, now, limit, now.Add(r.lease))
	if err != nil {
		return nil, fmt.Errorf("claim pending outbox messages: %w", err)
	}
	defer rows.Close()

	type claimed struct {
		seq int64
		msg domain.OutboxMessage
	}
	var batch []claimed
	for rows.Next() {
		var c claimed
		if err := rows.Scan(&c.seq, &c.msg.ID, &c.msg.AggregateType, &c.msg.AggregateID, &c.msg.EventType, &c.msg.Payload, &c.msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		c.msg.CreatedAt = c.msg.CreatedAt.UTC()
		batch = append(batch, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claimed outbox messages: %w", err)
	}

	// RETURNING не гарантирует порядок.
	sort.Slice(batch, func(i, j int) bool { return batch[i].seq < batch[j].seq })

	out := make([]domain.OutboxMessage, 0, len(batch))
	for _, c := range batch {
		out = append(out, c.msg)
	}
	return out, nil
}

// Stats считает весь pending-backlog, включая арендованные строки.
func (r *OutboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(created_at) FROM outbox_messages WHERE status = $1
	`, outboxPending).Scan(&stats.PendingCount, &oldest)
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox backlog: %w", err)
	}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}
	return stats, nil
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.settle(ctx, id, outboxSent)
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.settle(ctx, id, outboxFailed)
}

func (r *OutboxRepository) settle(ctx context.Context, id, status string) error {
	now := r.now()

	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	settled, err := execCount(ctx, r.db, `
		UPDATE outbox_messages
		SET status = $2, settled_at = $3, updated_at = $3, claimed_until = NULL
		WHERE id = $1
	`, id, status, now)
	switch {
	case err != nil:
		return fmt.Errorf("settle outbox message %s as %s: %w", id, status, err)
	case settled == 0:
		return fmt.Errorf("outbox message %s: %w", id, domain.ErrOutboxPublish)
	}
	return nil
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
