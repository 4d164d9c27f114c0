// Команда dlq-reprocess перечитывает DLQ заказов и заново публикует исходные события.
// По умолчанию работает в режиме dry-run и только показывает кандидатов.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
	replayClientID     = "storefront-dlq-replay"
	envKafkaBrokers    = "STOREFRONT_KAFKA_BROKERS"
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
	filter      eventFilter
}

// eventFilter отбирает события для повторной публикации. Пустой фильтр пропускает всё.
type eventFilter struct {
	eventTypes []string
	orderID    string
}

func (f eventFilter) match(envelope kafka.Envelope) bool {
	if f.orderID != "" && envelope.AggregateID != f.orderID {
		return false
	}
	if len(f.eventTypes) == 0 {
		return true
	}
	for _, eventType := range f.eventTypes {
		if envelope.EventType == eventType {
			return true
		}
	}
	return false
}

// connect подменяется в тестах.
var connect = func(cfg config) (topicOffsets, streamOpener, replaySink, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.ClientID = replayClientID
	saramaCfg.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, saramaCfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to kafka: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create consumer: %w", err)
	}
	streams := saramaOpener{consumer: consumer}
	if !cfg.execute {
		return client, streams, nil, nil
	}

	producer, err := kafka.NewProducer(cfg.brokers, kafka.WithClientID(replayClientID))
	if err != nil {
		_ = streams.Close()
		_ = client.Close()
		return nil, nil, nil, err
	}
	return client, streams, producer, nil
}

func main() {
	_ = godotenv.Load()
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := readConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig(args []string, getenv func(string) string) (config, error) {
	var (
		cfg        config
		brokersRaw string
		typesRaw   string
	)

	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&brokersRaw, "brokers", "", "comma-separated Kafka brokers, defaults to $"+envKafkaBrokers)
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "dead letter topic to read")
	fs.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicOrderEvents, "topic that receives replayed events")
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "maximum number of dlq messages to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "publish events instead of listing them")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan the most recent messages of each partition")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "give up on a partition after this much silence")
	fs.StringVar(&typesRaw, "event-type", "", "comma-separated event types to replay")
	fs.StringVar(&cfg.filter.orderID, "order-id", "", "replay only events of this order")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = getenv(envKafkaBrokers)
	}
	cfg.brokers = splitList(brokersRaw)
	cfg.filter.eventTypes = splitList(typesRaw)
	cfg.filter.orderID = strings.TrimSpace(cfg.filter.orderID)

	switch {
	case len(cfg.brokers) == 0:
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or %s)", envKafkaBrokers)
	case strings.TrimSpace(cfg.sourceTopic) == "":
		return config{}, errors.New("source-topic is required")
	case strings.TrimSpace(cfg.targetTopic) == "":
		return config{}, errors.New("target-topic is required")
	case cfg.sourceTopic == cfg.targetTopic:
		return config{}, errors.New("source-topic and target-topic must differ")
	case cfg.limit <= 0:
		return config{}, errors.New("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, errors.New("idle-timeout must be > 0")
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func run(ctx context.Context, cfg config) error {
	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	logger := log.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"target_topic": cfg.targetTopic,
		"mode":         mode,
	})
	logger.WithFields(log.Fields{
		"limit":       cfg.limit,
		"from_newest": cfg.fromNewest,
		"event_types": cfg.filter.eventTypes,
		"order_id":    cfg.filter.orderID,
	}).Info("starting dlq replay")

	offsets, streams, sink, err := connect(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if sink != nil {
			_ = sink.Close()
		}
		if streams != nil {
			_ = streams.Close()
		}
		if offsets != nil {
			_ = offsets.Close()
		}
	}()

	r, err := newReplayer(cfg, offsets, streams, sink)
	if err != nil {
		return err
	}
	total, err := r.replayAll(ctx)
	logger.WithFields(total.fields()).Info("dlq replay finished")
	return err
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
