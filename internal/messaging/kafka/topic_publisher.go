package kafka

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ErrNoProducer возвращается паблишером без подключённого producer.
var ErrNoProducer = errors.New("kafka producer is not connected")

// sender: часть Producer, нужная паблишеру.
type sender interface {
	Send(ctx context.Context, topic, key string, value any, headers map[string]string) error
}

// TopicPublisher упаковывает outbox-сообщения в Envelope и шлёт их в один топик.
// Ключ сообщения: ID заказа, поэтому события заказа сохраняют порядок в партиции.
type TopicPublisher struct {
	sender  sender
	topic   string
	headers map[string]string
	now     func() time.Time
}

// PublisherOption настраивает TopicPublisher.
type PublisherOption func(*TopicPublisher)

// WithStaticHeader добавляет заголовок к каждому сообщению.
// Заголовки Envelope с тем же именем имеют приоритет.
func WithStaticHeader(key, value string) PublisherOption {
	return func(p *TopicPublisher) { p.headers[key] = value }
}

func NewTopicPublisher(producer *Producer, topic string, opts ...PublisherOption) *TopicPublisher {
	p := &TopicPublisher{
		topic:   topic,
		headers: make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
	if producer != nil {
		p.sender = producer
	}
	if p.topic == "" {
		p.topic = TopicOrderEvents
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *TopicPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if p == nil || p.sender == nil {
		return ErrNoProducer
	}

	envelope := NewEnvelope(msg, p.now())
	headers := maps.Clone(p.headers)
	maps.Copy(headers, envelope.Headers())
	return p.sender.Send(ctx, p.topic, envelope.Key(), envelope, headers)
}

var _ domain.OutboxPublisher = (*TopicPublisher)(nil)
