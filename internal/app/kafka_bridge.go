package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// kafkaBridge: producer и два outbox-паблишера поверх него: основной топик и DLQ.
type kafkaBridge struct {
	producer    *kafka.Producer
	events      domain.OutboxPublisher
	deadLetters domain.OutboxPublisher
	logger      *log.Entry
}

// connectKafka возвращает nil, nil, если брокеры не заданы.
func connectKafka(brokers []string, clientID string, logger *log.Entry) (*kafkaBridge, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers, kafka.WithClientID(clientID))
	if err != nil {
		logger.WithError(err).WithField("brokers", brokers).Warn("kafka unavailable, order events stay in outbox")
		return nil, err
	}
	logger.WithField("brokers", brokers).Info("kafka producer connected")

	return &kafkaBridge{
		producer: producer,
		events:   kafka.NewTopicPublisher(producer, kafka.TopicOrderEvents),
		deadLetters: kafka.NewTopicPublisher(producer, kafka.TopicDeadLetterQueue,
			kafka.WithStaticHeader(kafka.HeaderDeadLetter, "true")),
		logger: logger,
	}, nil
}

// close безопасен для nil.
func (b *kafkaBridge) close() {
	if b == nil {
		return
	}
	if err := b.producer.Close(); err != nil {
		b.logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	b.logger.Info("kafka producer closed")
}
