package writeback

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rzpsarthak13/starphoenix/internal/core"
)

var ErrKafkaQueueClosed = errors.New("kafka queue is closed")

// KafkaQueue carries one table's operations on a Kafka topic. Messages are
// keyed by table, so they land on one partition and keep their order.
type KafkaQueue struct {
	writer  *kafka.Writer
	reader  *kafka.Reader
	codec   Codec
	topic   string
	maxWait time.Duration

	closed atomic.Bool
	// pending is approximate: it counts what this process produced and has
	// not consumed yet.
	pending atomic.Int64
}

// KafkaQueueConfig holds configuration for Kafka queue.
type KafkaQueueConfig struct {
	Brokers         []string
	Topic           string
	GroupID         string
	BatchSize       int
	BatchTimeout    time.Duration
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	RequiredAcks    int // 0, 1, or -1 (all)
	MaxMessageBytes int
	MinBytes        int
	MaxBytes        int
	MaxWait         time.Duration
}

// NewKafkaQueue creates a new Kafka-based write-back queue.
func NewKafkaQueue(config KafkaQueueConfig, codec Codec) (*KafkaQueue, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker is required")
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	if config.GroupID == "" {
		config.GroupID = "starphoenix-writeback"
	}
	if codec == nil {
		codec = JSONCodec{}
	}
	if config.MaxWait <= 0 {
		config.MaxWait = 100 * time.Millisecond
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    config.BatchSize,
		BatchTimeout: config.BatchTimeout,
		WriteTimeout: config.WriteTimeout,
		ReadTimeout:  config.ReadTimeout,
		BatchBytes:   int64(config.MaxMessageBytes),
		RequiredAcks: kafka.RequiredAcks(config.RequiredAcks),
		MaxAttempts:  3,
		Async:        false,
	}

	// New consumer groups start at the beginning so nothing accepted before
	// the first drain is skipped.
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     config.Brokers,
		Topic:       config.Topic,
		GroupID:     config.GroupID,
		MinBytes:    config.MinBytes,
		MaxBytes:    config.MaxBytes,
		MaxWait:     config.MaxWait,
		StartOffset: kafka.FirstOffset,
	})

	log.Printf("[KAFKA] Queue ready: brokers=%v topic=%s group=%s codec=%s",
		config.Brokers, config.Topic, config.GroupID, codec.Name())

	return &KafkaQueue{
		writer:  writer,
		reader:  reader,
		codec:   codec,
		topic:   config.Topic,
		maxWait: config.MaxWait,
	}, nil
}

// message builds the Kafka message for an operation.
func (q *KafkaQueue) message(operation *core.WriteOperation) (kafka.Message, error) {
	opData, err := q.codec.Marshal(operation)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal write operation: %w", err)
	}
	return kafka.Message{
		Key:   []byte(operation.Table),
		Value: opData,
		Time:  operation.Timestamp,
		Headers: []kafka.Header{
			{Key: "id", Value: []byte(operation.ID)},
			{Key: "operation", Value: []byte(operation.Operation)},
			{Key: "table", Value: []byte(operation.Table)},
			{Key: "codec", Value: []byte(q.codec.Name())},
		},
	}, nil
}

// Enqueue produces the operation synchronously.
func (q *KafkaQueue) Enqueue(ctx context.Context, operation *core.WriteOperation) error {
	if q.closed.Load() {
		return ErrKafkaQueueClosed
	}
	if err := validate(operation); err != nil {
		return err
	}
	message, err := q.message(operation)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := q.writer.WriteMessages(ctx, message); err != nil {
		log.Printf("[KAFKA] ERROR: produce to %s failed after %v: %v", q.topic, time.Since(start), err)
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}
	q.pending.Add(1)
	return nil
}

// Dequeue reads up to batchSize operations, committing each offset as it is
// read. It waits at most the configured max wait for the first message and
// returns what it has once the topic goes quiet.
func (q *KafkaQueue) Dequeue(ctx context.Context, batchSize int) ([]*core.WriteOperation, error) {
	if q.closed.Load() {
		return nil, ErrKafkaQueueClosed
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	operations := make([]*core.WriteOperation, 0, batchSize)
	for len(operations) < batchSize {
		message, ok := q.fetch(ctx)
		if !ok {
			break
		}

		if op, err := q.codec.Unmarshal(message.Value); err != nil {
			log.Printf("[KAFKA] WARNING: skipping undecodable message at %d/%d: %v", message.Partition, message.Offset, err)
		} else {
			operations = append(operations, op)
		}
		if err := q.reader.CommitMessages(ctx, message); err != nil {
			log.Printf("[KAFKA] WARNING: commit of %d/%d failed: %v", message.Partition, message.Offset, err)
		}
	}

	if n := int64(len(operations)); n > 0 {
		if q.pending.Add(-n) < 0 {
			q.pending.Store(0)
		}
	}
	return operations, nil
}

func (q *KafkaQueue) fetch(ctx context.Context) (kafka.Message, bool) {
	fetchCtx, cancel := context.WithTimeout(ctx, q.maxWait)
	defer cancel()
	message, err := q.reader.FetchMessage(fetchCtx)
	if err != nil {
		if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			log.Printf("[KAFKA] ERROR: read from %s failed: %v", q.topic, err)
		}
		return kafka.Message{}, false
	}
	return message, true
}

// Size is approximate; Kafka has no cheap exact count.
func (q *KafkaQueue) Size() int {
	return int(q.pending.Load())
}

func (q *KafkaQueue) Close() error {
	if q.closed.Swap(true) {
		return nil
	}
	if err := q.writer.Close(); err != nil {
		log.Printf("[KAFKA] ERROR: failed to close writer: %v", err)
	}
	if err := q.reader.Close(); err != nil {
		return fmt.Errorf("failed to close reader: %w", err)
	}
	return nil
}
