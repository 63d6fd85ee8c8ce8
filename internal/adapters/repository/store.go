// Package repository persists submissions, reports and batches, and keeps
// the ranking index used by leaderboards.
package repository

import (
	"context"

	"github.com/googly1030/intern-platform/internal/domain/model"
)

// Store is the system of record. Status updates go through UpdateStatus so
// the persisted stage is always the latest one reached.
type Store interface {
	SaveSubmission(ctx context.Context, s model.Submission) error
	// LoadSubmission returns ErrNotFound for an unknown id.
	LoadSubmission(ctx context.Context, id string) (model.Submission, error)
	// ListSubmissions orders by creation time, newest first. A zero limit
	// means no limit; a negative limit or offset is ErrInvalidLimit.
	ListSubmissions(ctx context.Context, filter model.SubmissionFilter) ([]model.Submission, error)
	UpdateStatus(ctx context.Context, id string, u model.StatusUpdate) error
	// RequestCancel flags a non-terminal submission for cancellation at its
	// next stage boundary and returns the stored record.
	RequestCancel(ctx context.Context, id string) (model.Submission, error)

	// SaveReport stores the report and marks the submission completed.
	SaveReport(ctx context.Context, id string, r model.ScoreReport) error
	LoadReport(ctx context.Context, id string) (model.ScoreReport, error)

	SaveBatch(ctx context.Context, b model.Batch) error
	LoadBatch(ctx context.Context, id string) (model.Batch, error)
	// ListBatches orders by creation time, newest first.
	ListBatches(ctx context.Context) ([]model.Batch, error)
}

// Complete applies the completion of r to s. Both store implementations use it.
func Complete(s *model.Submission, r model.ScoreReport) {
	at := r.GeneratedAt
	model.StatusUpdate{
		Status:      model.StatusCompleted,
		Stage:       model.StageCompleted,
		Progress:    model.StageCompleted.Progress(),
		ProcessedAt: &at,
	}.Apply(s, at)
	overall := r.OverallScore
	s.OverallScore = &overall
	s.Grade = r.Grade
}

// Page applies offset and limit to an ordered slice.
func Page[T any](items []T, offset, limit int) ([]T, error) {
	if limit < 0 || offset < 0 {
		return nil, ErrInvalidLimit
	}
	if offset >= len(items) {
		return []T{}, nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items, nil
}
