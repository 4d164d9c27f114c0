package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	// HeaderIdempotencyKey: ключ, по которому повтор запроса получает сохранённый ответ.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotentReplay выставляется на ответах, взятых из хранилища.
	HeaderIdempotentReplay = "Idempotent-Replayed"

	defaultIdempotencyTTL = 24 * time.Hour
)

// Idempotency повторяет сохранённый ответ для запросов с тем же Idempotency-Key.
// Ключи разделены по владельцам: одинаковые ключи разных пользователей не конфликтуют.
type Idempotency struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	logger *log.Entry
	now    func() time.Time
}

// NewIdempotency создаёт middleware идемпотентности. repo == nil отключает механизм.
func NewIdempotency(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) *Idempotency {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	if logger == nil {
		logger = log.WithField("component", "http-idempotency")
	}
	return &Idempotency{
		repo:   repo,
		ttl:    ttl,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Middleware оборачивает обработчик, который должен выполняться не более одного раза на ключ.
func (i *Idempotency) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := PrincipalFrom(r.Context())
		key, err := domain.NormalizeIdempotencyKey(r.Header.Get(HeaderIdempotencyKey))
		if i == nil || i.repo == nil || errors.Is(err, domain.ErrIdempotencyKeyRequired) || principal.ID == "" {
			next.ServeHTTP(w, r)
			return
		}
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_idempotency_key", err.Error())
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_body", "failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		logger := i.logger.WithFields(log.Fields{
			"owner_id":        principal.ID,
			"idempotency_key": key,
		})

		record, err := i.repo.CreateProcessing(r.Context(), principal.ID, key, requestHash(r, body), i.now().Add(i.ttl))
		if err != nil {
			i.replay(w, logger, record, err)
			return
		}

		rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		markCtx := context.WithoutCancel(r.Context())
		if rec.status < http.StatusBadRequest {
			err = i.repo.MarkDone(markCtx, principal.ID, key, rec.body.Bytes(), rec.status)
		} else {
			err = i.repo.MarkFailed(markCtx, principal.ID, key, rec.body.Bytes(), rec.status)
		}
		if err != nil {
			logger.WithError(err).Warn("failed to store idempotent response")
		}
	})
}

func (i *Idempotency) replay(w http.ResponseWriter, logger *log.Entry, record domain.IdempotencyRecord, createErr error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		respondError(w, http.StatusConflict, "idempotency_key_reused", "idempotency key is already used with different request payload")
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch {
		case record.Completed():
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(HeaderIdempotentReplay, "true")
			w.WriteHeader(record.ReplayStatus())
			_, _ = w.Write(record.ResponseBody)
		case record.Status == domain.IdempotencyStatusProcessing:
			respondError(w, http.StatusConflict, "idempotency_in_progress", "request with the same idempotency key is already processing")
		default:
			logger.WithField("status", record.Status).Error("unknown idempotency record status")
			respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		}
	default:
		logger.WithError(createErr).Error("failed to create idempotency record")
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// requestHash связывает ключ с методом, путём и телом запроса.
func requestHash(r *http.Request, body []byte) string {
	h := sha256.New()
	_, _ = io.WriteString(h, r.Method)
	_, _ = io.WriteString(h, " ")
	_, _ = io.WriteString(h, r.URL.Path)
	_, _ = io.WriteString(h, "\n")
	_, _ = h.Write(bytes.TrimSpace(body))
	return hex.EncodeToString(h.Sum(nil))
}

// recordingWriter пропускает ответ клиенту и копирует его для сохранения.
type recordingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (w *recordingWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	w.body.Write(p)
	return w.ResponseWriter.Write(p)
}
