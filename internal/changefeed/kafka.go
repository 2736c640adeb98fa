package changefeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	go_json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/garrettladley/noticeboard/internal/realtime"
	"github.com/garrettladley/noticeboard/internal/xslog"
)

type KafkaConfig struct {
	Brokers []string `env:"BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	Topic   string   `env:"TOPIC" envDefault:"noticeboard.realtime"`
}

var _ Feed = (*Kafka)(nil)

// Kafka is a Feed over a single Kafka topic. The realtime topic travels as
// the message key. Every subscription reads with its own consumer group
// starting at the newest offset, so each subscriber sees every later event.
type Kafka struct {
	cfg    KafkaConfig
	writer *kafka.Writer
	logger *slog.Logger
}

func NewKafka(cfg KafkaConfig, logger *slog.Logger) *Kafka {
	return &Kafka{
		cfg: cfg,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
		logger: logger,
	}
}

func (k *Kafka) Publish(ctx context.Context, ev realtime.Event) error {
	data, err := go_json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.Topic()),
		Value: data,
		Time:  ev.CommitTimestamp,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

func (k *Kafka) Subscribe(ctx context.Context, topic string) (<-chan realtime.Event, func(), error) {
	groupID := "noticeboard-" + uuid.NewString()
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     k.cfg.Brokers,
		GroupID:     groupID,
		Topic:       k.cfg.Topic,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(ctx)
	events := make(chan realtime.Event)

	go func() {
		defer close(events)
		defer func() {
			_ = reader.Close()
		}()

		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					return
				}
				k.logger.WarnContext(ctx, "kafka read failed", xslog.Topic(topic), xslog.Error(err))
				select {
				case <-time.After(time.Second):
					continue
				case <-ctx.Done():
					return
				}
			}
			if string(msg.Key) != topic {
				continue
			}

			var ev realtime.Event
			if err := go_json.Unmarshal(msg.Value, &ev); err != nil {
				k.logger.WarnContext(ctx, "failed to decode event", xslog.Topic(topic), xslog.Error(err))
				continue
			}

			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	unsubscribe := func() { once.Do(cancel) }

	return events, unsubscribe, nil
}

func (k *Kafka) Close() error {
	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	return nil
}
