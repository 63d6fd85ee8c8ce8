package repository

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/googly1030/intern-platform/internal/domain/types"
	"github.com/googly1030/intern-platform/pkg/metrics"
)

// Treap-based ranking of completed submissions.
//
// Ordering: overall score DESC, then submission id ASC (deterministic).
// "less" means ranks earlier, so in-order traversal yields the leaderboard
// from best to worst. One index covers every submission and one more is
// kept per batch.

type rankKey struct {
	score int
	id    string
}

// less returns true if a should appear before b in the leaderboard.
func less(a, b rankKey) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.id < b.id
}

type node struct {
	key   rankKey
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, k rankKey) *node {
	if n == nil {
		return &node{key: k, prio: rand.Uint64(), size: 1}
	}
	if less(k, n.key) {
		n.left = insert(n.left, k)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, k)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, k rankKey) *node {
	if n == nil {
		return nil
	}
	if k == n.key {
		// Rotate the higher-priority child up until the node is a leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, k)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, k)
		}
	} else if less(k, n.key) {
		n.left = deleteNode(n.left, k)
	} else {
		n.right = deleteNode(n.right, k)
	}
	fix(n)
	return n
}

// countBefore returns how many keys order strictly before k.
func countBefore(n *node, k rankKey) int {
	count := 0
	for n != nil {
		if less(n.key, k) {
			count += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// collectTopN appends up to limit ids in rank order.
func collectTopN(n *node, limit int, out *[]string) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n.key.id)
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}

// Ranking orders completed submissions overall and per batch.
type Ranking struct {
	mu      sync.RWMutex
	all     *node
	byBatch map[string]*node
	entries map[string]types.Entry
}

// NewRanking constructs an empty ranking.
func NewRanking() *Ranking {
	return &Ranking{
		byBatch: make(map[string]*node),
		entries: make(map[string]types.Entry),
	}
}

func keyOf(e types.Entry) rankKey { return rankKey{score: e.OverallScore, id: e.SubmissionID} }

// Upsert inserts e or moves an existing entry to its new position.
func (r *Ranking) Upsert(e types.Entry) {
	r.mu.Lock()
	if old, ok := r.entries[e.SubmissionID]; ok {
		r.removeLocked(old)
	}
	e.Rank = 0
	r.entries[e.SubmissionID] = e
	k := keyOf(e)
	r.all = insert(r.all, k)
	if e.BatchID != "" {
		r.byBatch[e.BatchID] = insert(r.byBatch[e.BatchID], k)
	}
	n := len(r.entries)
	r.mu.Unlock()

	metrics.UpdateRankingEntries(n)
}

// Remove drops the entry for id if present.
func (r *Ranking) Remove(id string) {
	r.mu.Lock()
	if old, ok := r.entries[id]; ok {
		r.removeLocked(old)
	}
	n := len(r.entries)
	r.mu.Unlock()

	metrics.UpdateRankingEntries(n)
}

func (r *Ranking) removeLocked(e types.Entry) {
	k := keyOf(e)
	r.all = deleteNode(r.all, k)
	if e.BatchID != "" {
		root := deleteNode(r.byBatch[e.BatchID], k)
		if root == nil {
			delete(r.byBatch, e.BatchID)
		} else {
			r.byBatch[e.BatchID] = root
		}
	}
	delete(r.entries, e.SubmissionID)
}

// Rebuild replaces the ranking with entries.
func (r *Ranking) Rebuild(entries []types.Entry) {
	r.mu.Lock()
	r.all = nil
	r.byBatch = make(map[string]*node)
	r.entries = make(map[string]types.Entry, len(entries))
	r.mu.Unlock()
	for _, e := range entries {
		r.Upsert(e)
	}
}

func (r *Ranking) root(batchID string) *node {
	if batchID == "" {
		return r.all
	}
	return r.byBatch[batchID]
}

// TopN returns the best n entries, overall when batchID is empty. Tied
// scores share a rank and the next rank skips past them.
func (r *Ranking) TopN(ctx context.Context, batchID string, n int) ([]types.Entry, error) {
	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, min(n, len(r.entries)))
	collectTopN(r.root(batchID), n, &ids)
	out := make([]types.Entry, len(ids))
	for i, id := range ids {
		out[i] = r.entries[id]
	}
	assignRanks(out)
	return out, nil
}

// Rank returns the entry for id with its rank overall, or within its batch
// when inBatch is set.
func (r *Ranking) Rank(ctx context.Context, id string, inBatch bool) (types.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return types.Entry{}, ErrNotFound
	}
	root := r.all
	if inBatch {
		root = r.root(e.BatchID)
	}
	// Every entry with a higher score sorts before the empty id at this score.
	e.Rank = countBefore(root, rankKey{score: e.OverallScore}) + 1
	return e, nil
}

// Count returns the number of ranked entries, overall when batchID is empty.
func (r *Ranking) Count(batchID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if batchID == "" {
		return len(r.entries)
	}
	return nsize(r.byBatch[batchID])
}

// assignRanks gives tied scores the same rank; the next distinct score takes
// its position in the list.
func assignRanks(entries []types.Entry) {
	for i := range entries {
		if i > 0 && entries[i].OverallScore == entries[i-1].OverallScore {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
}
