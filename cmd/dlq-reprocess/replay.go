package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
)

var errNotDeadLetter = errors.New("message is not an outbox dead letter")

// topicOffsets отдаёт разметку топика; реализуется sarama.Client.
type topicOffsets interface {
	Partitions(topic string) ([]int32, error)
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Close() error
}

type partitionStream interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type streamOpener interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionStream, error)
	Close() error
}

// replaySink реализуется *kafka.Producer.
type replaySink interface {
	Send(ctx context.Context, topic, key string, value any, headers map[string]string) error
	Close() error
}

// saramaOpener сужает sarama.PartitionConsumer до partitionStream.
type saramaOpener struct {
	consumer sarama.Consumer
}

func (o saramaOpener) ConsumePartition(topic string, partition int32, offset int64) (partitionStream, error) {
	pc, err := o.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (o saramaOpener) Close() error {
	if o.consumer == nil {
		return nil
	}
	return o.consumer.Close()
}

// tally считает сообщения DLQ по исходу.
type tally struct {
	scanned     int
	replayed    int
	filtered    int
	undecodable int
}

func (t *tally) merge(other tally) {
	t.scanned += other.scanned
	t.replayed += other.replayed
	t.filtered += other.filtered
	t.undecodable += other.undecodable
}

func (t tally) fields() log.Fields {
	return log.Fields{
		"scanned":     t.scanned,
		"replayed":    t.replayed,
		"filtered":    t.filtered,
		"undecodable": t.undecodable,
	}
}

// replayer проходит партиции DLQ по возрастанию номера и останавливается,
// когда просмотрено limit сообщений.
type replayer struct {
	cfg     config
	offsets topicOffsets
	streams streamOpener
	sink    replaySink
	logger  *log.Entry
	now     func() time.Time
}

func newReplayer(cfg config, offsets topicOffsets, streams streamOpener, sink replaySink) (*replayer, error) {
	if offsets == nil || streams == nil {
		return nil, errors.New("kafka client and consumer are required")
	}
	if cfg.execute && sink == nil {
		return nil, errors.New("producer is required in execute mode")
	}
	return &replayer{
		cfg:     cfg,
		offsets: offsets,
		streams: streams,
		sink:    sink,
		logger:  log.WithField("component", "dlq-replay"),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *replayer) replayAll(ctx context.Context) (tally, error) {
	var total tally

	partitions, err := r.offsets.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("list partitions of %s: %w", r.cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		r.logger.WithField("topic", r.cfg.sourceTopic).Warn("dlq topic has no partitions")
		return total, nil
	}
	slices.Sort(partitions)

	for _, partition := range partitions {
		budget := r.cfg.limit - total.scanned
		if budget <= 0 {
			break
		}
		got, err := r.drainPartition(ctx, partition, budget)
		total.merge(got)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// window возвращает полуинтервал [from, to) смещений, который нужно прочитать.
// С fromNewest берутся последние budget сообщений.
func (r *replayer) window(partition int32, budget int) (int64, int64, error) {
	oldest, err := r.offsets.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, 0, fmt.Errorf("oldest offset of partition %d: %w", partition, err)
	}
	newest, err := r.offsets.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, 0, fmt.Errorf("newest offset of partition %d: %w", partition, err)
	}
	from := oldest
	if r.cfg.fromNewest {
		from = max(newest-int64(budget), oldest)
	}
	return from, newest, nil
}

func (r *replayer) drainPartition(ctx context.Context, partition int32, budget int) (tally, error) {
	var got tally

	from, to, err := r.window(partition, budget)
	if err != nil || from >= to {
		return got, err
	}

	stream, err := r.streams.ConsumePartition(r.cfg.sourceTopic, partition, from)
	if err != nil {
		return got, fmt.Errorf("open partition %d: %w", partition, err)
	}
	defer func() { _ = stream.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	for got.scanned < budget {
		select {
		case <-ctx.Done():
			return got, ctx.Err()
		case <-idle.C:
			r.logger.WithField("partition", partition).Debug("partition idle, moving on")
			return got, nil
		case cerr := <-stream.Errors():
			if cerr != nil {
				return got, fmt.Errorf("read partition %d: %w", partition, cerr)
			}
		case msg, ok := <-stream.Messages():
			if !ok || msg == nil || msg.Offset >= to {
				return got, nil
			}
			idle.Reset(r.cfg.idleTimeout)

			got.scanned++
			if err := r.handle(ctx, msg, &got); err != nil {
				return got, err
			}
			if msg.Offset+1 >= to {
				return got, nil
			}
		}
	}
	return got, nil
}

func (r *replayer) handle(ctx context.Context, msg *sarama.ConsumerMessage, got *tally) error {
	entry := r.logger.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

	envelope, err := decodeDeadLetter(msg.Value, r.now())
	if err != nil {
		got.undecodable++
		entry.WithError(err).Warn("skip unsupported dlq message")
		return nil
	}

	entry = entry.WithFields(log.Fields{
		"outbox_id":  envelope.ID,
		"event_type": envelope.EventType,
		"order_id":   envelope.AggregateID,
	})
	if !r.cfg.filter.match(envelope) {
		got.filtered++
		entry.Debug("dlq message filtered out")
		return nil
	}

	if !r.cfg.execute {
		got.replayed++
		entry.Info("dlq replay candidate")
		return nil
	}
	if err := r.sink.Send(ctx, r.cfg.targetTopic, envelope.Key(), envelope, envelope.Headers()); err != nil {
		return fmt.Errorf("republish %s: %w", envelope.ID, err)
	}
	got.replayed++
	entry.Info("dlq event replayed")
	return nil
}

// decodeDeadLetter разбирает сообщение DLQ и восстанавливает исходное событие
// в том виде, в котором его публикует outbox.
func decodeDeadLetter(value []byte, now time.Time) (kafka.Envelope, error) {
	var envelope kafka.Envelope
	if err := json.Unmarshal(value, &envelope); err != nil {
		return kafka.Envelope{}, fmt.Errorf("decode dlq envelope: %w", err)
	}
	if len(envelope.Payload) == 0 {
		return kafka.Envelope{}, errNotDeadLetter
	}

	var dl outbox.DeadLetter
	if err := json.Unmarshal(envelope.Payload, &dl); err != nil {
		return kafka.Envelope{}, fmt.Errorf("decode dead letter: %w", err)
	}
	if dl.OutboxID == "" && dl.AggregateID == "" {
		return kafka.Envelope{}, errNotDeadLetter
	}

	original, err := dl.Original()
	if err != nil {
		return kafka.Envelope{}, err
	}
	original.CreatedAt = envelope.OccurredAt
	return kafka.NewEnvelope(original, now), nil
}
