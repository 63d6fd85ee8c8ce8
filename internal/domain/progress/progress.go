// Package progress fans out stage transitions to live subscribers.
package progress

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/pkg/metrics"
)

const defaultBufferSize = 32

// Publisher is the write side used by the pipeline.
type Publisher interface {
	Publish(ctx context.Context, event model.ProgressEvent)
}

// Subscription receives events for one submission until closed.
type Subscription struct {
	C <-chan model.ProgressEvent

	submissionID string
	ch           chan model.ProgressEvent
	b            *Broadcaster
	done         chan struct{}
	once         sync.Once
}

// Close releases the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.b.unsubscribe(s)
	})
}

// Stats is a snapshot of broadcaster load.
type Stats struct {
	Connections   int            `json:"connections"`
	Subscriptions map[string]int `json:"subscriptions"`
}

// Broadcaster delivers progress events at most once to each subscriber.
// A subscriber whose buffer is full misses the event.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Subscription]struct{}
	count       int
	bufferSize  int
	seq         atomic.Uint64
	now         func() time.Time
}

// Option applies a configuration option to the Broadcaster.
type Option func(*Broadcaster)

// WithBufferSize sets the per-subscriber channel capacity.
func WithBufferSize(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		subscribers: make(map[string]map[*Subscription]struct{}),
		bufferSize:  defaultBufferSize,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers interest in submissionID. The subscription is closed
// when ctx is done or Close is called.
func (b *Broadcaster) Subscribe(ctx context.Context, submissionID string) *Subscription {
	ch := make(chan model.ProgressEvent, b.bufferSize)
	sub := &Subscription{C: ch, submissionID: submissionID, ch: ch, b: b, done: make(chan struct{})}

	b.mu.Lock()
	set, ok := b.subscribers[submissionID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subscribers[submissionID] = set
	}
	set[sub] = struct{}{}
	b.count++
	count := b.count
	b.mu.Unlock()
	metrics.UpdateProgressSubscribers(count)

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub
}

func (b *Broadcaster) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	if set, ok := b.subscribers[sub.submissionID]; ok {
		if _, ok := set[sub]; ok {
			delete(set, sub)
			b.count--
			close(sub.ch)
		}
		if len(set) == 0 {
			delete(b.subscribers, sub.submissionID)
		}
	}
	count := b.count
	b.mu.Unlock()
	metrics.UpdateProgressSubscribers(count)
}

// Publish stamps event with a sequence number and timestamp and offers it to
// every subscriber of its submission without blocking.
func (b *Broadcaster) Publish(ctx context.Context, event model.ProgressEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	set := b.subscribers[event.SubmissionID]
	if len(set) == 0 {
		return
	}
	event.Seq = b.seq.Add(1)
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now().UTC()
	}
	for sub := range set {
		select {
		case sub.ch <- event:
			metrics.RecordProgressPublished()
		default:
			metrics.RecordProgressDropped()
		}
	}
}

// Stats returns the number of live subscriptions, total and per submission.
func (b *Broadcaster) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st := Stats{Connections: b.count, Subscriptions: make(map[string]int, len(b.subscribers))}
	for id, set := range b.subscribers {
		st.Subscriptions[id] = len(set)
	}
	return st
}
