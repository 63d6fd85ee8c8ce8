package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/pkg/metrics"
)

// MemoryStore keeps every record in maps behind one RWMutex. Returned values
// are copies; report maps are shared and must not be mutated by callers.
type MemoryStore struct {
	mu          sync.RWMutex
	submissions map[string]model.Submission
	reports     map[string]model.ScoreReport
	batches     map[string]model.Batch
	now         func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		submissions: make(map[string]model.Submission),
		reports:     make(map[string]model.ScoreReport),
		batches:     make(map[string]model.Batch),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
}

// SaveSubmission inserts or replaces s.
func (s *MemoryStore) SaveSubmission(_ context.Context, sub model.Submission) error {
	defer observe("save_submission", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = s.now().UTC()
	}
	s.submissions[sub.ID] = sub
	return nil
}

// LoadSubmission returns the submission with id.
func (s *MemoryStore) LoadSubmission(_ context.Context, id string) (model.Submission, error) {
	defer observe("load_submission", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[id]
	if !ok {
		return model.Submission{}, ErrNotFound
	}
	return sub, nil
}

// ListSubmissions returns the submissions matching filter.
func (s *MemoryStore) ListSubmissions(_ context.Context, filter model.SubmissionFilter) ([]model.Submission, error) {
	defer observe("list_submissions", time.Now())
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	out := make([]model.Submission, 0, len(s.submissions))
	for _, sub := range s.submissions {
		if filter.Matches(sub) {
			out = append(out, sub)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return Page(out, filter.Offset, filter.Limit)
}

// UpdateStatus applies u to the stored submission.
func (s *MemoryStore) UpdateStatus(_ context.Context, id string, u model.StatusUpdate) error {
	defer observe("update_status", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		return ErrNotFound
	}
	u.Apply(&sub, s.now().UTC())
	s.submissions[id] = sub
	return nil
}

// RequestCancel flags a running or pending submission for cancellation.
// Terminal submissions are returned unchanged.
func (s *MemoryStore) RequestCancel(_ context.Context, id string) (model.Submission, error) {
	defer observe("request_cancel", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		return model.Submission{}, ErrNotFound
	}
	if sub.Status.Terminal() {
		return sub, nil
	}
	sub.CancelRequested = true
	sub.UpdatedAt = s.now().UTC()
	s.submissions[id] = sub
	return sub, nil
}

// SaveReport stores r and completes the submission in one critical section.
func (s *MemoryStore) SaveReport(_ context.Context, id string, r model.ScoreReport) error {
	defer observe("save_report", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		return ErrNotFound
	}
	Complete(&sub, r)
	s.submissions[id] = sub
	s.reports[id] = r
	return nil
}

// LoadReport returns the report for id.
func (s *MemoryStore) LoadReport(_ context.Context, id string) (model.ScoreReport, error) {
	defer observe("load_report", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return model.ScoreReport{}, ErrNotFound
	}
	return r, nil
}

// SaveBatch inserts or replaces b.
func (s *MemoryStore) SaveBatch(_ context.Context, b model.Batch) error {
	defer observe("save_batch", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	b.UpdatedAt = s.now().UTC()
	s.batches[b.ID] = b
	return nil
}

// LoadBatch returns the batch with id.
func (s *MemoryStore) LoadBatch(_ context.Context, id string) (model.Batch, error) {
	defer observe("load_batch", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	if !ok {
		return model.Batch{}, ErrNotFound
	}
	return b, nil
}

// ListBatches returns every batch, newest first.
func (s *MemoryStore) ListBatches(_ context.Context) ([]model.Batch, error) {
	defer observe("list_batches", time.Now())
	s.mu.RLock()
	out := make([]model.Batch, 0, len(s.batches))
	for _, b := range s.batches {
		out = append(out, b)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
