package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const defaultIdempotencyTTL = 24 * time.Hour

// IdempotencyRepository хранит ключи идемпотентности в таблице idempotency_keys.
// Ключ уникален в пределах владельца; просроченный ключ занимается заново одним upsert.
type IdempotencyRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewIdempotencyRepository создаёт PostgreSQL-реализацию IdempotencyRepository.
func NewIdempotencyRepository(store *Store) *IdempotencyRepository {
	return &IdempotencyRepository{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// CreateProcessing занимает ключ. Живой ключ возвращается вместе с
// ErrIdempotencyKeyAlreadyExists или ErrIdempotencyHashMismatch.
func (r *IdempotencyRepository) CreateProcessing(ctx context.Context, ownerID, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key, err := domain.NormalizeIdempotencyKey(key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	if requestHash = strings.TrimSpace(requestHash); requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	claim := domain.IdempotencyRecord{
		Key:         key,
		OwnerID:     ownerID,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   r.now(),
	}
	if claim.TTLAt.IsZero() {
		claim.TTLAt = claim.CreatedAt.Add(defaultIdempotencyTTL)
	}

	opCtx, cancel := withOpTimeout(ctx)
	defer cancel()

	// Upsert перезаписывает строку только если её срок истёк к моменту захвата.
	err = r.db.QueryRowContext(opCtx, `
		INSERT INTO idempotency_keys AS k (owner_id, key, request_hash, status, ttl_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (owner_id, key) DO UPDATE
		SET request_hash  = EXCLUDED.request_hash,
		    status        = EXCLUDED.status,
		    ttl_at        = EXCLUDED.ttl_at,
		    created_at    = EXCLUDED.created_at,
		    updated_at    = EXCLUDED.updated_at,
		    response_body = NULL,
		    http_status   = NULL
		WHERE k.ttl_at <= EXCLUDED.created_at
		RETURNING k.created_at
	`, ownerID, key, requestHash, string(claim.Status), claim.TTLAt, claim.CreatedAt).Scan(&claim.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return r.heldBy(ctx, ownerID, key, requestHash)
	}
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("claim idempotency key: %w", err)
	}
	claim.UpdatedAt = claim.CreatedAt
	return claim, nil
}

// heldBy объясняет, почему захват не удался: ключ занят тем же или другим запросом.
func (r *IdempotencyRepository) heldBy(ctx context.Context, ownerID, key, requestHash string) (domain.IdempotencyRecord, error) {
	held, err := r.Get(ctx, ownerID, key)
	switch {
	case err != nil:
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
	case held.RequestHash != requestHash:
		return held, domain.ErrIdempotencyHashMismatch
	default:
		return held, domain.ErrIdempotencyKeyAlreadyExists
	}
}

// Get возвращает живой ключ; просроченный считается отсутствующим.
func (r *IdempotencyRepository) Get(ctx context.Context, ownerID, key string) (domain.IdempotencyRecord, error) {
	key, err := domain.NormalizeIdempotencyKey(key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT owner_id, key, request_hash, response_body, http_status, status, ttl_at, created_at, updated_at
		FROM idempotency_keys
		WHERE owner_id = $1 AND key = $2
	`, ownerID, key)
	held, err := scanIdempotencyRecord(row)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && held.Expired(r.now())) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return held, err
}

func scanIdempotencyRecord(row rowScanner) (domain.IdempotencyRecord, error) {
	var (
		rec    domain.IdempotencyRecord
		status string
		code   sql.NullInt32
	)
	err := row.Scan(&rec.OwnerID, &rec.Key, &rec.RequestHash, &rec.ResponseBody, &code, &status, &rec.TTLAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan idempotency key: %w", err)
	}
	if rec.Status = domain.IdempotencyStatus(status); !rec.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("idempotency key %s has unknown status %q", rec.Key, status)
	}
	rec.HTTPStatus = int(code.Int32)
	return rec, nil
}

func (r *IdempotencyRepository) MarkDone(ctx context.Context, ownerID, key string, responseBody []byte, httpStatus int) error {
	return r.finish(ctx, ownerID, key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *IdempotencyRepository) MarkFailed(ctx context.Context, ownerID, key string, responseBody []byte, httpStatus int) error {
	return r.finish(ctx, ownerID, key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

// DeleteExpired удаляет до limit просроченных ключей, старые первыми; limit <= 0 снимает ограничение.
func (r *IdempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}

	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	query := `DELETE FROM idempotency_keys WHERE ttl_at <= $1`
	args := []any{before}
	if limit > 0 {
		query = `
			DELETE FROM idempotency_keys
			WHERE (owner_id, key) IN (
				SELECT owner_id, key
				FROM idempotency_keys
				WHERE ttl_at <= $1
				ORDER BY ttl_at
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)`
		args = append(args, limit)
	}

	deleted, err := execCount(ctx, r.db, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sweep idempotency keys before %s: %w", before.Format(time.RFC3339), err)
	}
	return int(deleted), nil
}

func (r *IdempotencyRepository) finish(ctx context.Context, ownerID, key string, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	key, err := domain.NormalizeIdempotencyKey(key)
	if err != nil {
		return err
	}

	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	updated, err := execCount(ctx, r.db, `
		UPDATE idempotency_keys
		SET status = $3, http_status = $4, response_body = $5, updated_at = $6
		WHERE owner_id = $1 AND key = $2
	`, ownerID, key, string(status), httpStatus, responseBody, r.now())
	switch {
	case err != nil:
		return fmt.Errorf("store %s response for key %s: %w", status, key, err)
	case updated == 0:
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)
