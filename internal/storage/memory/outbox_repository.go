package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const defaultOutboxPullLimit = 100

type outboxState uint8

const (
	outboxPending outboxState = iota
	outboxSent
	outboxFailed
)

type outboxEntry struct {
	msg       domain.OutboxMessage
	state     outboxState
	settledAt time.Time
}

// OutboxRepository: in-memory outbox в виде журнала в порядке постановки.
// head указывает на первую запись, которая ещё может быть pending.
type OutboxRepository struct {
	mu      sync.Mutex
	entries []outboxEntry
	index   map[string]int
	head    int
	now     func() time.Time
}

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{
		index: make(map[string]int),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue добавляет событие в конец журнала. Пустой ID заменяется на UUID.
func (r *OutboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if _, dup := r.index[msg.ID]; dup {
		return domain.OutboxMessage{}, fmt.Errorf("outbox message %s already enqueued", msg.ID)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = r.now()
	}
	msg.Payload = append([]byte(nil), msg.Payload...)

	r.index[msg.ID] = len(r.entries)
	r.entries = append(r.entries, outboxEntry{msg: msg})
	return cloneOutboxMessage(msg), nil
}

// PullPending возвращает до limit pending-событий, старые первыми.
func (r *OutboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultOutboxPullLimit
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	batch := make([]domain.OutboxMessage, 0, min(limit, len(r.entries)-r.head))
	for i := r.head; i < len(r.entries) && len(batch) < limit; i++ {
		if r.entries[i].state == outboxPending {
			batch = append(batch, cloneOutboxMessage(r.entries[i].msg))
		}
	}
	return batch, nil
}

func (r *OutboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats domain.OutboxStats
	for i := r.head; i < len(r.entries); i++ {
		entry := r.entries[i]
		if entry.state != outboxPending {
			continue
		}
		if stats.PendingCount == 0 {
			stats.OldestPendingAt = entry.msg.CreatedAt
		}
		stats.PendingCount++
	}
	return stats, nil
}

func (r *OutboxRepository) MarkSent(_ context.Context, id string) error {
	return r.settle(id, outboxSent)
}

func (r *OutboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.settle(id, outboxFailed)
}

// AllPending возвращает все pending-события; используется тестами для проверки backlog.
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	msgs, _ := r.PullPending(context.Background(), len(r.entries)+1)
	return msgs
}

// settle переводит событие в конечное состояние. Повторная отметка перезаписывает предыдущую.
func (r *OutboxRepository) settle(id string, state outboxState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.index[id]
	if !ok {
		return fmt.Errorf("outbox message %s: %w", id, domain.ErrOutboxPublish)
	}
	r.entries[pos].state = state
	r.entries[pos].settledAt = r.now()

	for r.head < len(r.entries) && r.entries[r.head].state != outboxPending {
		r.head++
	}
	return nil
}

func cloneOutboxMessage(msg domain.OutboxMessage) domain.OutboxMessage {
	msg.Payload = append([]byte(nil), msg.Payload...)
	return msg
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
