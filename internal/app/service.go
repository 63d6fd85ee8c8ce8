// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	eventqueue "github.com/googly1030/intern-platform/internal/adapters/mq/queue"
	workerpool "github.com/googly1030/intern-platform/internal/adapters/mq/worker"
	"github.com/googly1030/intern-platform/internal/adapters/repository"
	"github.com/googly1030/intern-platform/internal/domain/batch"
	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/internal/domain/progress"
	"github.com/googly1030/intern-platform/internal/domain/types"
	"github.com/googly1030/intern-platform/pkg/errors"
	"github.com/googly1030/intern-platform/pkg/logger"
	"github.com/googly1030/intern-platform/pkg/metrics"
)

const (
	defaultBatchFanout     = 8
	defaultLeaderboardSize = 10
	defaultMaxLeaderboard  = 1000
)

// StatusReader is a fast-path source of status views.
type StatusReader interface {
	Get(ctx context.Context, id string) (model.StatusView, bool, error)
}

// Service implements the API dependencies for the scoring pipeline.
type Service struct {
	mu sync.RWMutex

	// Core components
	store       repository.Store
	queue       eventqueue.Queue
	ranking     *repository.Ranking
	tracker     *batch.Tracker
	broadcaster *progress.Broadcaster
	status      StatusReader
	pool        *workerpool.Pool

	// Configuration
	batchFanout    int
	maxLeaderboard int

	// batchMu serializes batch lifecycle changes.
	batchMu sync.Mutex

	started bool
	now     func() time.Time
	newID   func() string
	logger  logger.Logger
}

// New constructs a Service over store and queue.
func New(store repository.Store, queue eventqueue.Queue, opts ...Option) *Service {
	s := &Service{
		store:          store,
		queue:          queue,
		ranking:        repository.NewRanking(),
		broadcaster:    progress.NewBroadcaster(),
		batchFanout:    defaultBatchFanout,
		maxLeaderboard: defaultMaxLeaderboard,
		now:            time.Now,
		newID:          uuid.NewString,
		logger:         logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracker == nil {
		s.tracker = batch.NewTracker(store)
	}
	return s
}

// Broadcaster returns the progress broadcaster shared with the pipeline.
func (s *Service) Broadcaster() *progress.Broadcaster { return s.broadcaster }

// Ranking returns the leaderboard index.
func (s *Service) Ranking() *repository.Ranking { return s.ranking }

// Start rebuilds the leaderboard from the store and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting scoring service...")
	completed, err := s.store.ListSubmissions(ctx, model.SubmissionFilter{Status: model.StatusCompleted})
	if err != nil {
		return storeError(err, "completed submissions")
	}
	entries := make([]types.Entry, 0, len(completed))
	for _, sub := range completed {
		if e, ok := entryOf(sub); ok {
			entries = append(entries, e)
		}
	}
	s.ranking.Rebuild(entries)

	if s.pool != nil {
		s.pool.Start(ctx)
	}
	s.started = true
	s.logger.Info(ctx, "scoring service started",
		logger.Int("ranked", len(entries)),
		logger.Int("workers", s.workerCount()),
	)
	return nil
}

// Stop drains the worker pool. It is safe to call on a stopped service.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping scoring service...")
	var err error
	if s.pool != nil {
		err = s.pool.Shutdown(ctx)
	} else if s.queue != nil {
		err = s.queue.Close()
	}
	s.started = false
	s.logger.Info(ctx, "scoring service stopped")
	return err
}

// Started reports whether Start has run.
func (s *Service) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

func (s *Service) workerCount() int {
	if s.pool == nil {
		return 0
	}
	return s.pool.Size()
}

// OnTransition keeps the leaderboard and batch counters in step with a
// persisted submission. The orchestrator calls it after every transition.
func (s *Service) OnTransition(ctx context.Context, sub model.Submission) {
	if e, ok := entryOf(sub); ok {
		s.ranking.Upsert(e)
	}
	if sub.BatchID == "" {
		return
	}
	if _, err := s.tracker.Refresh(ctx, sub.BatchID); err != nil {
		s.logger.Warn(ctx, "batch refresh failed",
			logger.String("batch_id", sub.BatchID),
			logger.String("submission_id", sub.ID),
			logger.Error(err))
	}
}

func entryOf(sub model.Submission) (types.Entry, bool) {
	if sub.Status != model.StatusCompleted || sub.OverallScore == nil {
		return types.Entry{}, false
	}
	return types.Entry{
		SubmissionID:  sub.ID,
		CandidateName: sub.CandidateName,
		BatchID:       sub.BatchID,
		OverallScore:  *sub.OverallScore,
		Grade:         sub.Grade,
	}, true
}

// CreateSubmission validates and persists a standalone submission, then
// enqueues it. On backpressure the submission is recorded as failed and both
// its id and ErrBackpressure are returned.
func (s *Service) CreateSubmission(ctx context.Context, in SubmissionInput) (string, error) {
	sub, err := s.newSubmission(in, "")
	if err != nil {
		return "", err
	}
	if err := s.store.SaveSubmission(ctx, sub); err != nil {
		return "", storeError(err, "submission")
	}
	metrics.RecordSubmissionCreated()
	s.logger.Info(ctx, "submission created",
		logger.String("submission_id", sub.ID),
		logger.String("repo_url", sub.RepoURL))

	if err := s.enqueue(ctx, sub, s.fail); err != nil {
		return sub.ID, err
	}
	return sub.ID, nil
}

func (s *Service) newSubmission(in SubmissionInput, batchID string) (model.Submission, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return model.Submission{}, err
	}
	now := s.now().UTC()
	return model.Submission{
		ID:             s.newID(),
		CandidateName:  in.CandidateName,
		CandidateEmail: in.CandidateEmail,
		RepoURL:        in.RepoURL,
		HostedURL:      in.HostedURL,
		VideoURL:       in.VideoURL,
		Overrides:      in.Overrides,
		BatchID:        batchID,
		Status:         model.StatusPending,
		Stage:          model.StagePending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// failFunc records a terminal failure for a submission no run owns.
type failFunc func(ctx context.Context, sub model.Submission, reason string) error

// enqueue hands sub to the queue. A refused job is failed at the pending
// stage through refuse.
func (s *Service) enqueue(ctx context.Context, sub model.Submission, refuse failFunc) error {
	job := model.Job{SubmissionID: sub.ID, BatchID: sub.BatchID, EnqueuedAt: s.now().UTC()}
	if s.queue.Enqueue(ctx, job) {
		return nil
	}
	s.logger.Warn(ctx, "queue refused submission", logger.String("submission_id", sub.ID))
	if err := refuse(ctx, sub, backpressureReason); err != nil {
		return err
	}
	return ErrBackpressure
}

// fail records a terminal failure and refreshes the submission's batch.
func (s *Service) fail(ctx context.Context, sub model.Submission, reason string) error {
	sub, err := s.failHeld(ctx, sub, reason)
	if err != nil {
		return err
	}
	s.OnTransition(ctx, sub)
	return nil
}

// failHeld records a terminal failure without touching batch counters. It is
// for callers inside Tracker.Update, which recounts on the way out.
func (s *Service) failHeld(ctx context.Context, sub model.Submission, reason string) (model.Submission, error) {
	at := s.now().UTC()
	u := model.StatusUpdate{
		Status:       model.StatusFailed,
		Stage:        model.StageFailed,
		Progress:     sub.Progress,
		ErrorMessage: reason,
		FailedStage:  model.StagePending,
		ProcessedAt:  &at,
	}
	if err := s.store.UpdateStatus(ctx, sub.ID, u); err != nil {
		return sub, storeError(err, "submission")
	}
	metrics.RecordSubmissionFinished(string(model.StatusFailed))
	u.Apply(&sub, at)
	s.broadcaster.Publish(ctx, model.ProgressEvent{
		SubmissionID: sub.ID,
		Stage:        model.StageFailed,
		Progress:     sub.Progress,
		Message:      reason,
		Done:         true,
		Error:        true,
	})
	return sub, nil
}

func (s *Service) refuseHeld(ctx context.Context, sub model.Submission, reason string) error {
	_, err := s.failHeld(ctx, sub, reason)
	return err
}

// GetSubmission returns a submission by id.
func (s *Service) GetSubmission(ctx context.Context, id string) (model.Submission, error) {
	sub, err := s.store.LoadSubmission(ctx, id)
	if err != nil {
		return model.Submission{}, storeError(err, "submission")
	}
	return sub, nil
}

// ListSubmissions returns submissions newest first.
func (s *Service) ListSubmissions(ctx context.Context, filter model.SubmissionFilter) ([]model.Submission, error) {
	subs, err := s.store.ListSubmissions(ctx, filter)
	if err != nil {
		return nil, storeError(err, "submissions")
	}
	return subs, nil
}

// GetStatus returns the polling view, preferring the status cache.
func (s *Service) GetStatus(ctx context.Context, id string) (model.StatusView, error) {
	if s.status != nil {
		v, ok, err := s.status.Get(ctx, id)
		if err != nil {
			s.logger.Debug(ctx, "status cache read failed", logger.String("submission_id", id), logger.Error(err))
		}
		if ok {
			return v, nil
		}
	}
	sub, err := s.store.LoadSubmission(ctx, id)
	if err != nil {
		return model.StatusView{}, storeError(err, "submission")
	}
	return sub.View(), nil
}

// GetReport returns the report of a completed submission.
func (s *Service) GetReport(ctx context.Context, id string) (model.ScoreReport, error) {
	sub, err := s.store.LoadSubmission(ctx, id)
	if err != nil {
		return model.ScoreReport{}, storeError(err, "submission")
	}
	if sub.Status != model.StatusCompleted {
		return model.ScoreReport{}, ErrNotReady
	}
	r, err := s.store.LoadReport(ctx, id)
	if err != nil {
		return model.ScoreReport{}, storeError(err, "report")
	}
	return r, nil
}

// CancelSubmission requests cancellation. A queued or running submission
// fails at its next stage boundary. Only a member of a batch that has not
// started fails immediately, since no job exists for it yet.
func (s *Service) CancelSubmission(ctx context.Context, id string) (model.Submission, error) {
	sub, err := s.store.RequestCancel(ctx, id)
	if err != nil {
		return model.Submission{}, storeError(err, "submission")
	}
	if sub.Status.Terminal() {
		return sub, errors.Newf(errors.Conflict, "submission %s already %s", id, sub.Status)
	}
	if sub.Status == model.StatusPending && !s.queued(ctx, sub) {
		if err := s.fail(ctx, sub, "cancelled"); err != nil {
			return model.Submission{}, err
		}
		return s.GetSubmission(ctx, id)
	}
	s.logger.Info(ctx, "cancellation requested", logger.String("submission_id", id))
	return sub, nil
}

// RetriggerSubmission resets a finished submission to pending and queues it
// again. Its score, error and cancellation flag are cleared. A member of a
// batch that has not started stays pending until StartBatch; any other batch
// is reopened and recounted.
func (s *Service) RetriggerSubmission(ctx context.Context, id string) (model.Submission, error) {
	sub, err := s.store.LoadSubmission(ctx, id)
	if err != nil {
		return model.Submission{}, storeError(err, "submission")
	}
	if !sub.Status.Terminal() {
		return sub, errors.Newf(errors.Conflict, "submission %s is %s", id, sub.Status)
	}
	if sub.BatchID == "" {
		sub, err = s.reset(ctx, sub)
		if err != nil {
			return model.Submission{}, err
		}
		if err := s.enqueue(ctx, sub, s.fail); err != nil {
			return sub, err
		}
		return sub, nil
	}

	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	var queueErr error
	_, err = s.tracker.Update(ctx, sub.BatchID, func(ctx context.Context) error {
		b, err := s.store.LoadBatch(ctx, sub.BatchID)
		if err != nil {
			return storeError(err, "batch")
		}
		if sub, err = s.reset(ctx, sub); err != nil {
			return err
		}
		if b.StartedAt == nil {
			return nil
		}
		if err := s.enqueue(ctx, sub, s.refuseHeld); err != nil {
			if !errors.Is(err, errors.Backpressure) {
				return err
			}
			queueErr = err
		}
		return nil
	})
	if err != nil {
		return model.Submission{}, refreshError(err)
	}
	return sub, queueErr
}

// reset clears the outcome of a previous run and persists sub as pending.
func (s *Service) reset(ctx context.Context, sub model.Submission) (model.Submission, error) {
	sub.Status = model.StatusPending
	sub.Stage = model.StagePending
	sub.Progress = 0
	sub.ErrorMessage = ""
	sub.FailedStage = ""
	sub.CancelRequested = false
	sub.OverallScore = nil
	sub.Grade = ""
	sub.StartedAt = nil
	sub.ProcessedAt = nil
	sub.Duration = 0
	sub.UpdatedAt = s.now().UTC()
	if err := s.store.SaveSubmission(ctx, sub); err != nil {
		return sub, storeError(err, "submission")
	}
	s.ranking.Remove(sub.ID)
	metrics.RecordSubmissionRetriggered()
	s.logger.Info(ctx, "submission retriggered", logger.String("submission_id", sub.ID))
	return sub, nil
}

// queued reports whether a pending submission has been handed to the queue.
// Only members of a batch that has not started are held back.
func (s *Service) queued(ctx context.Context, sub model.Submission) bool {
	if sub.BatchID == "" {
		return true
	}
	b, err := s.store.LoadBatch(ctx, sub.BatchID)
	if err != nil {
		return true
	}
	return b.Status != model.BatchPending
}

// SubscribeProgress registers for events and returns the current status. The
// subscription is taken first so no transition between the two is lost.
func (s *Service) SubscribeProgress(ctx context.Context, id string) (*progress.Subscription, model.StatusView, error) {
	sub := s.broadcaster.Subscribe(ctx, id)
	view, err := s.GetStatus(ctx, id)
	if err != nil {
		sub.Close()
		return nil, model.StatusView{}, err
	}
	return sub, view, nil
}

// Leaderboard returns the top completed submissions, overall or in one batch.
func (s *Service) Leaderboard(ctx context.Context, batchID string, limit int) ([]types.Entry, error) {
	if limit == 0 {
		limit = defaultLeaderboardSize
	}
	if limit < 0 {
		return nil, errors.BadRequest("limit must be positive")
	}
	if limit > s.maxLeaderboard {
		limit = s.maxLeaderboard
	}
	entries, err := s.ranking.TopN(ctx, batchID, limit)
	if err != nil {
		return nil, storeError(err, "leaderboard")
	}
	return entries, nil
}

// Rank returns a completed submission's leaderboard position.
func (s *Service) Rank(ctx context.Context, id string, inBatch bool) (types.Entry, error) {
	e, err := s.ranking.Rank(ctx, id, inBatch)
	if err != nil {
		return types.Entry{}, storeError(err, "ranked submission")
	}
	return e, nil
}

// GetStats summarises every submission and batch.
func (s *Service) GetStats(ctx context.Context) (types.Stats, error) {
	subs, err := s.store.ListSubmissions(ctx, model.SubmissionFilter{})
	if err != nil {
		return types.Stats{}, storeError(err, "submissions")
	}
	batches, err := s.store.ListBatches(ctx)
	if err != nil {
		return types.Stats{}, storeError(err, "batches")
	}

	st := batch.Summarize(model.Batch{}, subs)
	depth := s.queue.Len(ctx)
	metrics.UpdateQueueSize(depth)
	return types.Stats{
		Submissions:        st.Total,
		StatusDistribution: st.StatusDistribution,
		GradeDistribution:  st.GradeDistribution,
		AverageScore:       st.AverageScore,
		Batches:            len(batches),
		QueueDepth:         depth,
		Subscribers:        s.broadcaster.Stats().Connections,
	}, nil
}
