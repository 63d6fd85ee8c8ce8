package queue

import (
	"time"

	"github.com/googly1030/intern-platform/pkg/logger"
)

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the maximum capacity of the queue.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// RedisOption applies a configuration option to the RedisQueue.
type RedisOption func(*RedisQueue)

// WithRedisCapacity bounds the pending list. Zero means unbounded.
func WithRedisCapacity(capacity int) RedisOption {
	return func(q *RedisQueue) {
		if capacity >= 0 {
			q.capacity = capacity
		}
	}
}

// WithBlockTimeout sets how long one blocking move waits before rechecking
// for shutdown.
func WithBlockTimeout(d time.Duration) RedisOption {
	return func(q *RedisQueue) {
		if d > 0 {
			q.blockTimeout = d
		}
	}
}

// WithRedisLogger sets the logger.
func WithRedisLogger(l logger.Logger) RedisOption {
	return func(q *RedisQueue) {
		if l != nil {
			q.log = l
		}
	}
}
