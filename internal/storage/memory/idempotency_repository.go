package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const defaultIdempotencyTTL = 24 * time.Hour

type ownerKey struct {
	owner string
	key   string
}

// IdempotencyRepository хранит ключи идемпотентности оформления заказов в памяти.
// Просроченный ключ считается свободным ещё до того, как его удалит idempotency.Sweeper.
type IdempotencyRepository struct {
	mu      sync.RWMutex
	records map[ownerKey]domain.IdempotencyRecord
	now     func() time.Time
}

// IdempotencyOption настраивает IdempotencyRepository.
type IdempotencyOption func(*IdempotencyRepository)

// WithIdempotencyClock подменяет источник времени.
func WithIdempotencyClock(now func() time.Time) IdempotencyOption {
	return func(r *IdempotencyRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// NewIdempotencyRepository создаёт in-memory реализацию IdempotencyRepository.
func NewIdempotencyRepository(opts ...IdempotencyOption) *IdempotencyRepository {
	r := &IdempotencyRepository{
		records: make(map[ownerKey]domain.IdempotencyRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *IdempotencyRepository) CreateProcessing(_ context.Context, ownerID, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	id, err := lookupKey(ownerID, key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	if requestHash = strings.TrimSpace(requestHash); requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if held, ok := r.records[id]; ok && !held.Expired(now) {
		if held.RequestHash == requestHash {
			return held.Clone(), domain.ErrIdempotencyKeyAlreadyExists
		}
		return held.Clone(), domain.ErrIdempotencyHashMismatch
	}

	if ttlAt.IsZero() {
		ttlAt = now.Add(defaultIdempotencyTTL)
	}
	claimed := domain.IdempotencyRecord{
		Key:         id.key,
		OwnerID:     ownerID,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.records[id] = claimed
	return claimed.Clone(), nil
}

func (r *IdempotencyRepository) Get(_ context.Context, ownerID, key string) (domain.IdempotencyRecord, error) {
	id, err := lookupKey(ownerID, key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	held, ok := r.records[id]
	if !ok || held.Expired(r.now()) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return held.Clone(), nil
}

func (r *IdempotencyRepository) MarkDone(_ context.Context, ownerID, key string, responseBody []byte, httpStatus int) error {
	return r.finish(ownerID, key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *IdempotencyRepository) MarkFailed(_ context.Context, ownerID, key string, responseBody []byte, httpStatus int) error {
	return r.finish(ownerID, key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

// DeleteExpired удаляет до limit ключей, срок которых истёк к before, начиная с самых старых.
// limit <= 0 снимает ограничение.
func (r *IdempotencyRepository) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if before.IsZero() {
		before = r.now()
	}

	var expired []ownerKey
	for id, held := range r.records {
		if held.Expired(before) {
			expired = append(expired, id)
		}
	}
	slices.SortFunc(expired, func(a, b ownerKey) int {
		return r.records[a].TTLAt.Compare(r.records[b].TTLAt)
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	for _, id := range expired {
		delete(r.records, id)
	}
	return len(expired), nil
}

func (r *IdempotencyRepository) finish(ownerID, key string, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	id, err := lookupKey(ownerID, key)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	held, ok := r.records[id]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	held.Status = status
	held.HTTPStatus = httpStatus
	held.ResponseBody = slices.Clone(responseBody)
	held.UpdatedAt = r.now()
	r.records[id] = held
	return nil
}

func lookupKey(ownerID, key string) (ownerKey, error) {
	key, err := domain.NormalizeIdempotencyKey(key)
	if err != nil {
		return ownerKey{}, err
	}
	return ownerKey{owner: ownerID, key: key}, nil
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)
