// Package dedupe guards submissions against concurrent processing.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Guard grants at most one owner per submission id at a time.
type Guard interface {
	// Acquire atomically claims id. It returns false when another owner
	// already holds an unexpired claim.
	Acquire(ctx context.Context, id string) bool

	// Release drops the claim on id so a later delivery can run it.
	Release(ctx context.Context, id string)

	Size() int64
}

// node represents a single claim in the linked list
type node struct {
	id      string
	expires time.Time
	next    *node
}

// reset clears the node state for reuse
func (n *node) reset() {
	n.id = ""
	n.expires = time.Time{}
	n.next = nil
}

// inMemoryGuard implements Guard with a map and a linked list of claims,
// newest first. When bounded, the oldest claim is evicted to make room.
type inMemoryGuard struct {
	mu       sync.Mutex
	claims   map[string]*node
	head     *node
	maxSize  int           // 0 or negative means unbounded
	ttl      time.Duration // 0 means claims never expire
	now      func() time.Time
	size     atomic.Int64
	nodePool sync.Pool
}

// NewInMemoryGuard creates a process-local guard with configuration options.
func NewInMemoryGuard(opts ...Option) Guard {
	g := &inMemoryGuard{
		maxSize: 50000,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.claims = make(map[string]*node)
	g.nodePool = sync.Pool{
		New: func() interface{} {
			return &node{}
		},
	}
	return g
}

// Acquire claims id unless a live claim exists. Expired claims are replaced.
func (g *inMemoryGuard) Acquire(ctx context.Context, id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if n, exists := g.claims[id]; exists {
		if n.expires.IsZero() || now.Before(n.expires) {
			return false
		}
		g.remove(n)
	}

	if g.maxSize > 0 && len(g.claims) >= g.maxSize {
		g.evictOldest()
	}

	n := g.nodePool.Get().(*node)
	n.id = id
	if g.ttl > 0 {
		n.expires = now.Add(g.ttl)
	}
	n.next = g.head
	g.head = n
	g.claims[id] = n
	g.size.Add(1)
	return true
}

// Release drops the claim on id if present.
func (g *inMemoryGuard) Release(ctx context.Context, id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if n, exists := g.claims[id]; exists {
		g.remove(n)
	}
}

// remove unlinks n. Must be called with g.mu held.
func (g *inMemoryGuard) remove(n *node) {
	delete(g.claims, n.id)
	if g.head == n {
		g.head = n.next
	} else {
		current := g.head
		for current != nil && current.next != n {
			current = current.next
		}
		if current != nil {
			current.next = n.next
		}
	}
	n.reset()
	g.nodePool.Put(n)
	g.size.Add(-1)
}

// evictOldest removes the tail of the list. Must be called with g.mu held.
func (g *inMemoryGuard) evictOldest() {
	if g.head == nil {
		return
	}
	tail := g.head
	for tail.next != nil {
		tail = tail.next
	}
	g.remove(tail)
}

// Size returns the current number of claims.
func (g *inMemoryGuard) Size() int64 {
	return g.size.Load()
}
