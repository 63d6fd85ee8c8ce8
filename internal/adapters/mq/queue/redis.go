package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/googly1030/intern-platform/pkg/logger"
	"github.com/googly1030/intern-platform/pkg/metrics"
)

const defaultBlockTimeout = time.Second

// RedisQueue is a reliable list queue. Jobs are pushed onto <key>:pending,
// atomically moved to <key>:processing on delivery and removed on Ack.
// Anything left in processing when a new queue starts is requeued.
type RedisQueue struct {
	client       redis.UniversalClient
	pending      string
	processing   string
	capacity     int
	blockTimeout time.Duration
	log          logger.Logger

	mu      sync.RWMutex
	closed  bool
	closeCh chan struct{}
}

// NewRedisQueue creates a queue under key and requeues unacknowledged jobs.
func NewRedisQueue(ctx context.Context, client redis.UniversalClient, key string, opts ...RedisOption) (*RedisQueue, error) {
	if client == nil {
		return nil, ErrNilRedisConn
	}
	if key == "" {
		return nil, ErrNoRedisKey
	}
	q := &RedisQueue{
		client:       client,
		pending:      key + ":pending",
		processing:   key + ":processing",
		blockTimeout: defaultBlockTimeout,
		log:          logger.Get().Named("redis-queue"),
		closeCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}

	recovered, err := q.recover(ctx)
	if err != nil {
		return nil, err
	}
	if recovered > 0 {
		q.log.Info(ctx, "requeued unacknowledged jobs", logger.Int("count", recovered))
	}
	metrics.UpdateQueueCapacity(q.capacity)
	return q, nil
}

func (q *RedisQueue) recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.client.LMove(ctx, q.processing, q.pending, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

// Enqueue pushes j onto the pending list. It fails when the list is at capacity.
func (q *RedisQueue) Enqueue(ctx context.Context, j Job) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		metrics.RecordQueueRejected()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}

	if q.capacity > 0 {
		size, err := q.client.LLen(ctx, q.pending).Result()
		if err != nil {
			q.log.Error(ctx, "queue length check failed", logger.Error(err))
			metrics.RecordQueueRejected()
			return false
		}
		if int(size) >= q.capacity {
			metrics.RecordQueueRejected()
			metrics.RecordErrorByComponent("queue", "capacity_exceeded")
			return false
		}
	}

	payload, err := encodeJob(j)
	if err != nil {
		q.log.Error(ctx, "encode job failed", logger.Error(err))
		metrics.RecordQueueRejected()
		return false
	}
	size, err := q.client.LPush(ctx, q.pending, payload).Result()
	if err != nil {
		q.log.Error(ctx, "enqueue failed", logger.String("submission_id", j.SubmissionID), logger.Error(err))
		metrics.RecordQueueRejected()
		metrics.RecordErrorByComponent("queue", "redis")
		return false
	}
	metrics.RecordQueueEnqueue()
	metrics.UpdateQueueSize(int(size))
	return true
}

// Dequeue moves jobs into the processing list and delivers them on the
// returned channel. The raw payload is kept as the receipt for Ack.
func (q *RedisQueue) Dequeue(ctx context.Context) <-chan Job {
	out := make(chan Job)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.closeCh:
				return
			default:
			}

			raw, err := q.client.BLMove(ctx, q.pending, q.processing, "RIGHT", "LEFT", q.blockTimeout).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				if ctx.Err() != nil || q.IsClosed() {
					return
				}
				q.log.Warn(ctx, "blocking move failed", logger.Error(err))
				metrics.RecordErrorByComponent("queue", "redis")
				if !sleep(ctx, q.closeCh, q.blockTimeout) {
					return
				}
				continue
			}

			j, err := decodeJob([]byte(raw))
			if err != nil {
				// A payload that cannot be decoded can never be processed.
				q.log.Error(ctx, "dropping malformed job", logger.Error(err))
				_ = q.client.LRem(ctx, q.processing, 1, raw).Err()
				continue
			}
			j.Receipt = raw

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

// Ack removes a delivered job from the processing list.
func (q *RedisQueue) Ack(ctx context.Context, j Job) error {
	raw, ok := j.Receipt.(string)
	if !ok {
		return ErrNoReceipt
	}
	if err := q.client.LRem(ctx, q.processing, 1, raw).Err(); err != nil {
		metrics.RecordQueueAckFailure()
		return err
	}
	return nil
}

// Len returns the pending list length.
func (q *RedisQueue) Len(ctx context.Context) int {
	size, err := q.client.LLen(ctx, q.pending).Result()
	if err != nil {
		q.log.Warn(ctx, "queue length check failed", logger.Error(err))
		return 0
	}
	metrics.UpdateQueueSize(int(size))
	return int(size)
}

// Close stops delivery. The client is owned by the caller.
func (q *RedisQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.closeCh)
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *RedisQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func sleep(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	}
}
