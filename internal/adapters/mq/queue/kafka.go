package queue

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/googly1030/intern-platform/pkg/logger"
	"github.com/googly1030/intern-platform/pkg/metrics"
)

// KafkaConfig configures the Kafka-backed queue.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	GroupID      string
	BatchSize    int
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	MinBytes     int
	MaxBytes     int
	MaxWait      time.Duration
}

// DefaultKafkaConfig returns a KafkaConfig with sensible defaults.
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
		MinBytes:     1,
		MaxBytes:     1 << 20,
		MaxWait:      time.Second,
	}
}

func (c KafkaConfig) validate() error {
	if len(c.Brokers) == 0 {
		return ErrNoBrokers
	}
	if c.Topic == "" {
		return ErrNoTopic
	}
	return nil
}

// KafkaQueue publishes jobs keyed by submission id and consumes them through
// a consumer group. Offsets are committed on Ack so an unfinished job is
// redelivered after a restart.
type KafkaQueue struct {
	writer *kafka.Writer
	reader *kafka.Reader
	log    logger.Logger

	mu     sync.RWMutex
	closed bool
}

// NewKafkaQueue creates the writer and group reader for cfg.
func NewKafkaQueue(cfg KafkaConfig) (*KafkaQueue, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	def := DefaultKafkaConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = def.BatchTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = def.MinBytes
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = def.MaxWait
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
		MaxWait:  cfg.MaxWait,
	})
	return &KafkaQueue{
		writer: writer,
		reader: reader,
		log:    logger.Get().Named("kafka-queue"),
	}, nil
}

// Enqueue publishes j. Kafka has no capacity bound, so failure means the
// broker refused the write.
func (q *KafkaQueue) Enqueue(ctx context.Context, j Job) bool {
	if q.IsClosed() {
		metrics.RecordQueueRejected()
		return false
	}
	payload, err := encodeJob(j)
	if err != nil {
		q.log.Error(ctx, "encode job failed", logger.Error(err))
		metrics.RecordQueueRejected()
		return false
	}
	err = q.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(j.SubmissionID),
		Value: payload,
		Time:  j.EnqueuedAt,
	})
	if err != nil {
		q.log.Error(ctx, "publish job failed", logger.String("submission_id", j.SubmissionID), logger.Error(err))
		metrics.RecordQueueRejected()
		metrics.RecordErrorByComponent("queue", "kafka")
		return false
	}
	metrics.RecordQueueEnqueue()
	return true
}

// Dequeue fetches messages without committing them.
func (q *KafkaQueue) Dequeue(ctx context.Context) <-chan Job {
	out := make(chan Job)
	go func() {
		defer close(out)
		for {
			msg, err := q.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, io.EOF) || q.IsClosed() {
					return
				}
				q.log.Warn(ctx, "fetch message failed", logger.Error(err))
				metrics.RecordErrorByComponent("queue", "kafka")
				continue
			}
			j, err := decodeJob(msg.Value)
			if err != nil {
				q.log.Error(ctx, "skipping malformed job",
					logger.Int("partition", msg.Partition), logger.Any("offset", msg.Offset), logger.Error(err))
				_ = q.reader.CommitMessages(ctx, msg)
				continue
			}
			j.Receipt = msg
			select {
			case out <- j:
				metrics.RecordQueueDequeue()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Ack commits the message offset.
func (q *KafkaQueue) Ack(ctx context.Context, j Job) error {
	msg, ok := j.Receipt.(kafka.Message)
	if !ok {
		return ErrNoReceipt
	}
	if err := q.reader.CommitMessages(ctx, msg); err != nil {
		metrics.RecordQueueAckFailure()
		return err
	}
	return nil
}

// Len reports consumer lag as the queued count.
func (q *KafkaQueue) Len(ctx context.Context) int {
	lag := int(q.reader.Stats().Lag)
	metrics.UpdateQueueSize(lag)
	return lag
}

// Close flushes the writer and leaves the consumer group.
func (q *KafkaQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()
	return errors.Join(q.writer.Close(), q.reader.Close())
}

// IsClosed returns true if the queue has been closed.
func (q *KafkaQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
