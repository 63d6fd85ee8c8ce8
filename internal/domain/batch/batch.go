// Package batch derives batch aggregates from member submissions.
package batch

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/internal/domain/rubric"
	"github.com/googly1030/intern-platform/pkg/metrics"
)

// Summarize computes the aggregate view of b from its members. It is pure:
// only the members' persisted state is read.
func Summarize(b model.Batch, members []model.Submission) model.BatchStats {
	st := model.BatchStats{
		Total:              len(members),
		GradeDistribution:  make(map[rubric.Grade]int),
		StatusDistribution: make(map[model.Status]int),
	}

	sum, scored := 0, 0
	for _, m := range members {
		st.StatusDistribution[m.Status]++
		switch m.Status {
		case model.StatusCompleted:
			st.Completed++
			if m.OverallScore != nil {
				sum += *m.OverallScore
				scored++
				st.GradeDistribution[rubric.GradeFor(*m.OverallScore)]++
			}
		case model.StatusFailed:
			st.Failed++
		default:
			st.Pending++
		}
	}

	terminal := st.Completed + st.Failed
	if st.Total > 0 {
		st.ProgressPercent = terminal * 100 / st.Total
	}
	if scored > 0 {
		avg := math.Round(float64(sum)/float64(scored)*10) / 10
		st.AverageScore = &avg
	}

	switch {
	case st.Total > 0 && terminal == st.Total:
		st.Status = model.BatchCompleted
	case b.StartedAt != nil:
		st.Status = model.BatchProcessing
	default:
		st.Status = model.BatchPending
	}
	return st
}

// Store is the persistence the tracker needs.
type Store interface {
	LoadBatch(ctx context.Context, id string) (model.Batch, error)
	SaveBatch(ctx context.Context, b model.Batch) error
	ListSubmissions(ctx context.Context, filter model.SubmissionFilter) ([]model.Submission, error)
}

// Tracker persists batch counters after member transitions. Refreshes of the
// same batch are serialized so a slow refresh cannot overwrite a newer one.
type Tracker struct {
	store Store
	locks keyedMutex
	now   func() time.Time

	mu     sync.Mutex
	active map[string]struct{}
}

// NewTracker creates a Tracker over store.
func NewTracker(store Store) *Tracker {
	return &Tracker{
		store:  store,
		locks:  keyedMutex{locks: make(map[string]*refLock)},
		now:    time.Now,
		active: make(map[string]struct{}),
	}
}

// Refresh recounts batchID from its members and saves the result.
func (t *Tracker) Refresh(ctx context.Context, batchID string) (model.BatchStats, error) {
	if batchID == "" {
		return model.BatchStats{}, nil
	}
	unlock := t.locks.lock(batchID)
	defer unlock()
	return t.refresh(ctx, batchID)
}

// Update runs fn while holding the refresh lock of batchID, then recounts the
// batch before letting go. A member transition that lands while fn runs waits
// and sees whatever fn wrote. fn must not refresh batchID itself. The error of
// fn takes precedence over a failed recount.
func (t *Tracker) Update(ctx context.Context, batchID string, fn func(ctx context.Context) error) (model.BatchStats, error) {
	unlock := t.locks.lock(batchID)
	defer unlock()

	fnErr := fn(ctx)
	st, err := t.refresh(ctx, batchID)
	if fnErr != nil {
		return st, fnErr
	}
	return st, err
}

func (t *Tracker) refresh(ctx context.Context, batchID string) (model.BatchStats, error) {
	b, err := t.store.LoadBatch(ctx, batchID)
	if err != nil {
		return model.BatchStats{}, fmt.Errorf("load batch %s: %w", batchID, err)
	}
	members, err := t.store.ListSubmissions(ctx, model.SubmissionFilter{BatchID: batchID})
	if err != nil {
		return model.BatchStats{}, fmt.Errorf("list batch %s members: %w", batchID, err)
	}

	st := Summarize(b, members)
	now := t.now().UTC()
	switch {
	case st.Status != model.BatchCompleted:
		b.CompletedAt = nil
	case b.Status != model.BatchCompleted:
		b.CompletedAt = &now
	}
	b.Status = st.Status
	b.Total = st.Total
	b.Completed = st.Completed
	b.Failed = st.Failed
	b.Pending = st.Pending
	b.AverageScore = st.AverageScore
	b.UpdatedAt = now
	if err := t.store.SaveBatch(ctx, b); err != nil {
		return model.BatchStats{}, fmt.Errorf("save batch %s: %w", batchID, err)
	}
	t.track(batchID, st.Status == model.BatchProcessing)
	return st, nil
}

func (t *Tracker) track(id string, processing bool) {
	t.mu.Lock()
	if processing {
		t.active[id] = struct{}{}
	} else {
		delete(t.active, id)
	}
	n := len(t.active)
	t.mu.Unlock()
	metrics.UpdateBatchesActive(n)
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

// keyedMutex hands out one mutex per key and frees it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
