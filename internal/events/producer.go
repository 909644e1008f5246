package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	skafka "github.com/segmentio/kafka-go"
)

// Writer defines the subset of segmentio kafka.Writer we need.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// Publisher is used by the ledger and the run hooks to emit events.
type Publisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
	Close() error
}

// KafkaProducer is a thin wrapper around a kafka writer implementing Publisher.
type KafkaProducer struct {
	writer Writer
	logger zerolog.Logger
}

// NewKafkaProducer creates a producer writing to topic on brokers.
func NewKafkaProducer(brokers []string, topic string, logger zerolog.Logger) *KafkaProducer {
	w := &skafka.Writer{
		Addr:         skafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &skafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: skafka.RequireOne,
	}
	return &KafkaProducer{writer: w, logger: logger}
}

// NewKafkaProducerWithWriter allows injecting a test writer.
func NewKafkaProducerWithWriter(w Writer, logger zerolog.Logger) *KafkaProducer {
	return &KafkaProducer{writer: w, logger: logger}
}

// Publish marshals value to JSON and writes it under key. Events of the
// same invoice share a key and so a partition.
func (p *KafkaProducer) Publish(ctx context.Context, key string, value interface{}) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal kafka value: %w", err)
	}
	msg := skafka.Message{Key: []byte(key), Value: b, Time: time.Now()}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error().Err(err).Str("key", key).Msg("kafka write error")
		return err
	}
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

