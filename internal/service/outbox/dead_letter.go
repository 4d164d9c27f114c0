package outbox

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// DeadLetter: событие, которое не удалось опубликовать за отведённые попытки.
// Уходит в DLQ как payload outbox-сообщения и разбирается утилитой повторной публикации.
type DeadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt time.Time       `json:"dlq_published_at"`
}

// NewDeadLetter фиксирует событие и последнюю ошибку публикации.
func NewDeadLetter(event domain.OutboxMessage, publishErr error, now time.Time) DeadLetter {
	dl := DeadLetter{
		OutboxID:       event.ID,
		AggregateType:  event.AggregateType,
		AggregateID:    event.AggregateID,
		EventType:      event.EventType,
		Payload:        json.RawMessage(event.Payload),
		DLQPublishedAt: now,
	}
	if publishErr != nil {
		dl.PublishError = publishErr.Error()
	}
	return dl
}

// Original восстанавливает исходное outbox-сообщение.
func (d DeadLetter) Original() (domain.OutboxMessage, error) {
	if len(d.Payload) == 0 {
		return domain.OutboxMessage{}, errors.New("dead letter does not carry the original payload")
	}
	return domain.OutboxMessage{
		ID:            d.OutboxID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       []byte(d.Payload),
	}, nil
}
