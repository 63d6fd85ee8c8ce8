package service

import (
	"cmp"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/googly1030/intern-platform/internal/domain/batch"
	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/internal/domain/types"
	"github.com/googly1030/intern-platform/pkg/errors"
	"github.com/googly1030/intern-platform/pkg/logger"
	"github.com/googly1030/intern-platform/pkg/metrics"
)

// CreateBatch persists an empty pending batch.
func (s *Service) CreateBatch(ctx context.Context, in BatchInput) (model.Batch, error) {
	if err := in.Validate(); err != nil {
		return model.Batch{}, err
	}
	now := s.now().UTC()
	b := model.Batch{
		ID:          s.newID(),
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Overrides:   in.Overrides,
		Status:      model.BatchPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.SaveBatch(ctx, b); err != nil {
		return model.Batch{}, storeError(err, "batch")
	}
	s.logger.Info(ctx, "batch created", logger.String("batch_id", b.ID), logger.String("name", b.Name))
	return b, nil
}

// GetBatch returns a batch by id.
func (s *Service) GetBatch(ctx context.Context, id string) (model.Batch, error) {
	b, err := s.store.LoadBatch(ctx, id)
	if err != nil {
		return model.Batch{}, storeError(err, "batch")
	}
	return b, nil
}

// ListBatches returns batches newest first.
func (s *Service) ListBatches(ctx context.Context) ([]model.Batch, error) {
	bs, err := s.store.ListBatches(ctx)
	if err != nil {
		return nil, storeError(err, "batches")
	}
	return bs, nil
}

// AddResult reports the outcome of AddSubmissions.
type AddResult struct {
	IDs []string `json:"ids"`
	// Rejected counts members the queue refused; they are recorded as failed.
	Rejected int `json:"rejected"`
}

// AddSubmissions validates every input, then persists them concurrently as
// members of batchID. Members of a processing batch are enqueued at once.
// The status check, the writes and the recount happen under the batch's
// refresh lock, so a finishing member cannot complete the batch in between.
func (s *Service) AddSubmissions(ctx context.Context, batchID string, inputs []SubmissionInput) (AddResult, error) {
	if len(inputs) == 0 {
		return AddResult{}, errors.BadRequest("at least one submission is required")
	}
	s.batchMu.Lock()
	defer s.batchMu.Unlock()

	var res AddResult
	_, err := s.tracker.Update(ctx, batchID, func(ctx context.Context) error {
		b, err := s.store.LoadBatch(ctx, batchID)
		if err != nil {
			return storeError(err, "batch")
		}
		if b.Status == model.BatchCompleted {
			return errors.Newf(errors.Conflict, "batch %s is completed", batchID)
		}
		subs := make([]model.Submission, len(inputs))
		for i, in := range inputs {
			sub, err := s.newMember(in, b)
			if err != nil {
				return errors.Wrapf(err, errors.InvalidParams, "submission %d: %v", i, err)
			}
			subs[i] = sub
		}
		res, err = s.addMembers(ctx, b, subs)
		return err
	})
	if err != nil {
		return res, refreshError(err)
	}
	s.logger.Info(ctx, "submissions added to batch",
		logger.String("batch_id", batchID),
		logger.Int("added", len(res.IDs)),
		logger.Int("rejected", res.Rejected))
	return res, nil
}

// newMember builds a pending member of b. Inputs without overrides inherit
// the batch's.
func (s *Service) newMember(in SubmissionInput, b model.Batch) (model.Submission, error) {
	if in.Overrides.RulesText == "" && in.Overrides.StructureText == "" {
		in.Overrides = b.Overrides
	}
	return s.newSubmission(in, b.ID)
}

// addMembers saves subs concurrently and enqueues them when b is processing.
// It runs inside Tracker.Update, so refused jobs are failed without a refresh.
func (s *Service) addMembers(ctx context.Context, b model.Batch, subs []model.Submission) (AddResult, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchFanout)
	for _, sub := range subs {
		g.Go(func() error {
			if err := s.store.SaveSubmission(gctx, sub); err != nil {
				return storeError(err, "submission")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return AddResult{}, err
	}

	res := AddResult{IDs: make([]string, len(subs))}
	for i, sub := range subs {
		res.IDs[i] = sub.ID
		metrics.RecordSubmissionCreated()
		if b.Status != model.BatchProcessing {
			continue
		}
		if err := s.enqueue(ctx, sub, s.refuseHeld); err != nil {
			if !errors.Is(err, errors.Backpressure) {
				return res, err
			}
			res.Rejected++
		}
	}
	return res, nil
}

// StartResult reports the outcome of StartBatch.
type StartResult struct {
	Batch    model.Batch `json:"batch"`
	Enqueued int         `json:"enqueued"`
	Rejected int         `json:"rejected"`
}

// StartBatch moves a pending batch to processing and enqueues its pending
// members. Refused members are failed with the backpressure reason.
func (s *Service) StartBatch(ctx context.Context, batchID string) (StartResult, error) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()

	b, err := s.store.LoadBatch(ctx, batchID)
	if err != nil {
		return StartResult{}, storeError(err, "batch")
	}
	if b.Status != model.BatchPending {
		return StartResult{}, errors.Newf(errors.Conflict, "cannot start batch in status %s", b.Status)
	}
	members, err := s.store.ListSubmissions(ctx, model.SubmissionFilter{BatchID: batchID})
	if err != nil {
		return StartResult{}, storeError(err, "batch members")
	}
	if len(members) == 0 {
		return StartResult{}, errors.Newf(errors.Conflict, "batch %s has no submissions", batchID)
	}

	now := s.now().UTC()
	b.Status = model.BatchProcessing
	b.StartedAt = &now
	b.UpdatedAt = now
	if err := s.store.SaveBatch(ctx, b); err != nil {
		return StartResult{}, storeError(err, "batch")
	}

	res := StartResult{}
	slices.SortFunc(members, func(a, b model.Submission) int { return a.CreatedAt.Compare(b.CreatedAt) })
	for _, m := range members {
		if m.Status != model.StatusPending {
			continue
		}
		if err := s.enqueue(ctx, m, s.fail); err != nil {
			if !errors.Is(err, errors.Backpressure) {
				return res, err
			}
			res.Rejected++
			continue
		}
		res.Enqueued++
	}
	if _, err := s.tracker.Refresh(ctx, batchID); err != nil {
		return res, errors.Wrapf(err, errors.InternalServerError, "refresh batch: %v", err)
	}
	if res.Batch, err = s.GetBatch(ctx, batchID); err != nil {
		return res, err
	}
	s.logger.Info(ctx, "batch started",
		logger.String("batch_id", batchID),
		logger.Int("enqueued", res.Enqueued),
		logger.Int("rejected", res.Rejected))
	return res, nil
}

// CancelBatch requests cancellation of every non-terminal member and returns
// how many were affected.
func (s *Service) CancelBatch(ctx context.Context, batchID string) (int, error) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()

	if _, err := s.store.LoadBatch(ctx, batchID); err != nil {
		return 0, storeError(err, "batch")
	}
	members, err := s.store.ListSubmissions(ctx, model.SubmissionFilter{BatchID: batchID})
	if err != nil {
		return 0, storeError(err, "batch members")
	}
	n := 0
	for _, m := range members {
		if m.Status.Terminal() {
			continue
		}
		if _, err := s.CancelSubmission(ctx, m.ID); err != nil && !errors.Is(err, errors.Conflict) {
			return n, err
		}
		n++
	}
	if _, err := s.tracker.Refresh(ctx, batchID); err != nil {
		return n, errors.Wrapf(err, errors.InternalServerError, "refresh batch: %v", err)
	}
	s.logger.Info(ctx, "batch cancellation requested", logger.String("batch_id", batchID), logger.Int("members", n))
	return n, nil
}

// GetBatchResults returns the batch, its ranked members and the aggregate.
func (s *Service) GetBatchResults(ctx context.Context, batchID string) (types.BatchResults, error) {
	b, err := s.store.LoadBatch(ctx, batchID)
	if err != nil {
		return types.BatchResults{}, storeError(err, "batch")
	}
	members, err := s.store.ListSubmissions(ctx, model.SubmissionFilter{BatchID: batchID})
	if err != nil {
		return types.BatchResults{}, storeError(err, "batch members")
	}
	rankMembers(members)
	return types.BatchResults{
		Batch:       b,
		Submissions: members,
		Stats:       batch.Summarize(b, members),
	}, nil
}

// rankMembers orders completed members by score like the leaderboard, then
// the rest newest first.
func rankMembers(members []model.Submission) {
	slices.SortStableFunc(members, func(a, b model.Submission) int {
		ea, aok := entryOf(a)
		eb, bok := entryOf(b)
		switch {
		case aok && bok:
			if ea.Before(eb) {
				return -1
			}
			if eb.Before(ea) {
				return 1
			}
			return 0
		case aok:
			return -1
		case bok:
			return 1
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

var exportHeader = []string{
	"Rank",
	"Candidate Name",
	"Email",
	"GitHub URL",
	"Hosted URL",
	"Video URL",
	"Status",
	"Overall Score",
	"Grade",
	"Error",
	"Created At",
	"Processed At",
}

// ExportBatch writes the ranked batch results as CSV to w.
func (s *Service) ExportBatch(ctx context.Context, batchID string, w io.Writer) (model.Batch, error) {
	res, err := s.GetBatchResults(ctx, batchID)
	if err != nil {
		return model.Batch{}, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return res.Batch, fmt.Errorf("write csv header: %w", err)
	}
	rank := 0
	for i, m := range res.Submissions {
		rankCell := ""
		if m.OverallScore != nil {
			if i == 0 || res.Submissions[i-1].OverallScore == nil || *res.Submissions[i-1].OverallScore != *m.OverallScore {
				rank = i + 1
			}
			rankCell = strconv.Itoa(rank)
		}
		row := []string{
			rankCell,
			m.CandidateName,
			m.CandidateEmail,
			m.RepoURL,
			m.HostedURL,
			m.VideoURL,
			string(m.Status),
			scoreCell(m.OverallScore),
			string(m.Grade),
			m.ErrorMessage,
			m.CreatedAt.Format(time.RFC3339),
			timeCell(m.ProcessedAt),
		}
		if err := cw.Write(row); err != nil {
			return res.Batch, fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return res.Batch, fmt.Errorf("flush csv: %w", err)
	}
	return res.Batch, nil
}

func scoreCell(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func timeCell(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
