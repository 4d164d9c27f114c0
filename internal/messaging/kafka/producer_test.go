package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func TestProducer_Send(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := newProducer(mockProducer)

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicOrderEvents {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "ord-1" {
			return errors.New("unexpected key " + string(key))
		}
		if len(msg.Headers) != 2 || string(msg.Headers[0].Key) != "a" || string(msg.Headers[1].Key) != "b" {
			return errors.New("headers must be sorted by key")
		}
		return nil
	})

	err := producer.Send(context.Background(), TopicOrderEvents, "ord-1", map[string]string{"status": "pending"},
		map[string]string{"b": "2", "a": "1"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_Send_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := newProducer(mockProducer)

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := producer.Send(context.Background(), TopicOrderEvents, "ord-1", map[string]string{}, nil)
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("expected ErrOutOfBrokers, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_Send_CancelledContext(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := newProducer(mockProducer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := producer.Send(ctx, TopicOrderEvents, "ord-1", struct{}{}, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_Send_UnmarshalableValue(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := newProducer(mockProducer)

	if err := producer.Send(context.Background(), TopicOrderEvents, "k", json.RawMessage(`{broken`), nil); err == nil {
		t.Fatal("expected marshal error")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducerConfig(t *testing.T) {
	cfg := producerConfig(WithClientID("storefront-orders"), WithSendRetries(3))

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must be valid: %v", err)
	}
	if cfg.ClientID != "storefront-orders" || cfg.Producer.Retry.Max != 3 {
		t.Fatalf("options not applied: client=%q retries=%d", cfg.ClientID, cfg.Producer.Retry.Max)
	}
	if !cfg.Producer.Idempotent || cfg.Producer.RequiredAcks != sarama.WaitForAll {
		t.Fatal("producer must be idempotent and wait for all replicas")
	}
}

func TestNewProducer_RejectsInvalidConfig(t *testing.T) {
	// Идемпотентный producer без повторов sarama считает ошибкой конфигурации.
	if _, err := NewProducer([]string{"127.0.0.1:1"}, WithSendRetries(0)); err == nil {
		t.Fatal("expected config validation error")
	}
}
