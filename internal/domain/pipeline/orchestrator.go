// Package pipeline drives one submission through the scoring stages.
package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/googly1030/intern-platform/internal/domain/analyzer"
	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/internal/domain/scoring"
	"github.com/googly1030/intern-platform/pkg/errors"
	"github.com/googly1030/intern-platform/pkg/logger"
	"github.com/googly1030/intern-platform/pkg/metrics"
)

const (
	defaultCloneTimeout  = 2 * time.Minute
	defaultReviewTimeout = 90 * time.Second
	defaultDeployTimeout = 30 * time.Second
)

// Orchestrator runs submissions stage by stage. One run owns the status
// fields of its submission; the worker guard ensures a single active run.
type Orchestrator struct {
	store      Store
	retriever  Retriever
	reviewer   Reviewer
	prober     Prober
	capturer   Capturer
	publisher  Publisher
	aggregator *scoring.Aggregator

	onTransition  TransitionHook
	retry         RetryPolicy
	degradedScore int
	weights       analyzer.AuthorshipWeights

	cloneTimeout  time.Duration
	reviewTimeout time.Duration
	deployTimeout time.Duration

	log logger.Logger
	now func() time.Time
}

// New creates an Orchestrator over store and retriever.
func New(store Store, retriever Retriever, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:         store,
		retriever:     retriever,
		publisher:     nopPublisher{},
		aggregator:    scoring.NewAggregator(),
		retry:         DefaultRetryPolicy(),
		weights:       analyzer.DefaultAuthorshipWeights(),
		cloneTimeout:  defaultCloneTimeout,
		reviewTimeout: defaultReviewTimeout,
		deployTimeout: defaultDeployTimeout,
		log:           logger.Get().Named("pipeline"),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run is the state carried between stages.
type run struct {
	sub         model.Submission
	snapshot    analyzer.Snapshot
	results     []analyzer.Result
	review      *model.ReviewNotes
	screenshots []model.Screenshot
}

// Run executes every stage for submissionID. A run that ends in a recorded
// failure returns the failed submission and a nil error. A non-nil error
// means the record was left mid-run: ctx was cancelled (the job should be
// redelivered) or the store could not be written.
func (o *Orchestrator) Run(ctx context.Context, submissionID string) (model.Submission, error) {
	sub, err := o.store.LoadSubmission(ctx, submissionID)
	if err != nil {
		return model.Submission{}, fmt.Errorf("load submission %s: %w", submissionID, err)
	}
	if sub.Status.Terminal() {
		return sub, nil
	}

	ctx = logger.WithFields(ctx, logger.String("submission_id", submissionID))
	r := &run{sub: sub}

	for _, stage := range model.RunStages() {
		if err := ctx.Err(); err != nil {
			return r.sub, err
		}
		if cur, err := o.store.LoadSubmission(ctx, submissionID); err == nil && cur.CancelRequested {
			return o.fail(ctx, r, stage, errors.Newf(errors.RunCancelled, "cancelled"))
		}

		if err := o.enter(ctx, r, stage); err != nil {
			return r.sub, err
		}

		start := o.now()
		err := o.runStage(ctx, r, stage)
		metrics.RecordStageLatency(string(stage), float64(o.now().Sub(start).Milliseconds()))
		if err == nil {
			continue
		}
		if ctx.Err() != nil && stderrors.Is(err, ctx.Err()) {
			o.log.Warn(ctx, "run interrupted", logger.String("stage", string(stage)))
			return r.sub, ctx.Err()
		}
		return o.fail(ctx, r, stage, err)
	}
	return r.sub, nil
}

// enter persists the stage, then publishes it, then runs the hook.
func (o *Orchestrator) enter(ctx context.Context, r *run, stage model.Stage) error {
	now := o.now().UTC()
	u := model.StatusUpdate{Status: model.StatusProcessing, Stage: stage, Progress: stage.Progress()}
	if stage == model.StageCloning {
		u.StartedAt = &now
	}
	if err := o.store.UpdateStatus(ctx, r.sub.ID, u); err != nil {
		return fmt.Errorf("persist stage %s: %w", stage, err)
	}
	u.Apply(&r.sub, now)

	o.log.Info(ctx, "stage started", logger.String("stage", string(stage)), logger.Int("progress", r.sub.Progress))
	o.publisher.Publish(ctx, model.ProgressEvent{
		SubmissionID: r.sub.ID,
		Stage:        stage,
		Progress:     r.sub.Progress,
		Message:      stageMessages[stage],
		Timestamp:    now,
	})
	o.transition(ctx, r.sub)
	return nil
}

var stageMessages = map[model.Stage]string{
	model.StageCloning:     "Cloning repository",
	model.StageAnalyzing:   "Analyzing code structure",
	model.StageAIReview:    "Reviewing code quality",
	model.StageAIDetection: "Checking commit history",
	model.StageDeployment:  "Checking deployment",
	model.StageScoring:     "Calculating scores",
}

func (o *Orchestrator) transition(ctx context.Context, sub model.Submission) {
	if o.onTransition != nil {
		o.onTransition(ctx, sub)
	}
}

func (o *Orchestrator) runStage(ctx context.Context, r *run, stage model.Stage) error {
	switch stage {
	case model.StageCloning:
		return o.clone(ctx, r)
	case model.StageAnalyzing:
		r.results = append(r.results, analyzer.Static(r.snapshot)...)
		return nil
	case model.StageAIReview:
		return o.review(ctx, r)
	case model.StageAIDetection:
		a := analyzer.Authorship(r.snapshot.Commits, o.weights)
		metrics.RecordAIRisk(a.Risk)
		r.results = append(r.results, a)
		return nil
	case model.StageDeployment:
		return o.deployment(ctx, r)
	case model.StageScoring:
		return o.score(ctx, r)
	}
	return fmt.Errorf("unknown stage %s", stage)
}

func (o *Orchestrator) clone(ctx context.Context, r *run) error {
	return o.withRetry(ctx, model.StageCloning, func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, o.cloneTimeout)
		defer cancel()
		snap, err := o.retriever.Fetch(cctx, r.sub.RepoURL)
		if err != nil {
			return err
		}
		r.snapshot = snap
		return nil
	})
}

func (o *Orchestrator) review(ctx context.Context, r *run) error {
	if o.reviewer == nil {
		o.degrade(ctx, r, "reviewer not configured")
		return nil
	}

	req := analyzer.ReviewRequest{
		SubmissionID: r.sub.ID,
		Overrides:    r.sub.Overrides,
		Signals:      analyzer.Security(r.snapshot),
		Findings:     analyzer.ReviewFindings(r.results),
		Sample:       analyzer.CodeSample(r.snapshot),
	}
	var res analyzer.ReviewResult
	err := o.withRetry(ctx, model.StageAIReview, func(ctx context.Context) error {
		rctx, cancel := context.WithTimeout(ctx, o.reviewTimeout)
		defer cancel()
		var err error
		res, err = o.reviewer.Review(rctx, req)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.degrade(ctx, r, err.Error())
		return nil
	}
	r.results = append(r.results, analyzer.QualityResults(res, o.degradedScore)...)
	r.review = res.Notes()
	return nil
}

func (o *Orchestrator) degrade(ctx context.Context, r *run, reason string) {
	o.log.Warn(ctx, "code review degraded", logger.String("reason", reason))
	metrics.RecordStageDegradation(string(model.StageAIReview))
	r.results = append(r.results, analyzer.DegradedQuality(o.degradedScore, reason)...)
}

// deployment checks the hosted app, captures screenshots and checks the demo
// video concurrently. Every failure is recorded as a fact, never returned.
func (o *Orchestrator) deployment(ctx context.Context, r *run) error {
	facts := analyzer.DeploymentFacts{
		HostedURL: r.sub.HostedURL,
		VideoURL:  r.sub.VideoURL,
		HasReadme: r.snapshot.HasReadme(),
	}

	g, gctx := errgroup.WithContext(ctx)
	if facts.HostedURL != "" {
		g.Go(func() error {
			if o.prober == nil {
				facts.ReachError = "prober not configured"
				return nil
			}
			pctx, cancel := context.WithTimeout(gctx, o.deployTimeout)
			defer cancel()
			if err := o.prober.Reachable(pctx, facts.HostedURL); err != nil {
				facts.ReachError = err.Error()
				return nil
			}
			facts.Reachable = true
			return nil
		})
		if o.capturer != nil {
			facts.CaptureAttempted = true
			g.Go(func() error {
				pctx, cancel := context.WithTimeout(gctx, o.deployTimeout)
				defer cancel()
				shots, err := o.capturer.Capture(pctx, r.sub.ID, facts.HostedURL)
				if err != nil {
					facts.CaptureError = err.Error()
					return nil
				}
				facts.Screenshots = shots
				return nil
			})
		}
	}
	if facts.VideoURL != "" {
		facts.VideoPlatform = analyzer.VideoPlatform(facts.VideoURL)
		g.Go(func() error {
			facts.VideoValid = o.videoValid(gctx, facts.VideoURL)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	if facts.ReachError != "" {
		o.log.Warn(ctx, "deployment not reachable", logger.String("url", facts.HostedURL), logger.String("reason", facts.ReachError))
	}
	r.screenshots = facts.Screenshots
	r.results = append(r.results, analyzer.Deployment(facts)...)
	return nil
}

// videoValid trusts a HEAD response when one arrives and otherwise falls back
// to the URL shape, since video hosts often reject HEAD requests.
func (o *Orchestrator) videoValid(ctx context.Context, url string) bool {
	if o.prober != nil {
		pctx, cancel := context.WithTimeout(ctx, o.deployTimeout)
		defer cancel()
		if ok, err := o.prober.Head(pctx, url); err == nil {
			return ok
		}
	}
	return analyzer.WellFormedURL(url)
}

func (o *Orchestrator) score(ctx context.Context, r *run) error {
	report, err := o.aggregator.Aggregate(r.sub.ID, r.results)
	if err != nil {
		return err
	}
	report.Screenshots = r.screenshots
	report.Review = r.review

	if err := o.store.SaveReport(ctx, r.sub.ID, report); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	now := report.GeneratedAt
	model.StatusUpdate{
		Status:      model.StatusCompleted,
		Stage:       model.StageCompleted,
		Progress:    model.StageCompleted.Progress(),
		ProcessedAt: &now,
	}.Apply(&r.sub, now)
	overall := report.OverallScore
	r.sub.OverallScore = &overall
	r.sub.Grade = report.Grade

	metrics.RecordOverallScore(report.OverallScore)
	metrics.RecordSubmissionFinished(string(model.StatusCompleted))
	o.log.Info(ctx, "run completed",
		logger.Int("overall_score", report.OverallScore),
		logger.String("grade", string(report.Grade)),
		logger.Float64("ai_risk", report.AIRisk),
	)
	o.publisher.Publish(ctx, model.ProgressEvent{
		SubmissionID: r.sub.ID,
		Stage:        model.StageCompleted,
		Progress:     100,
		Message:      "Scoring complete",
		Done:         true,
		Timestamp:    now,
		Data: map[string]any{
			"overall_score": report.OverallScore,
			"grade":         report.Grade,
		},
	})
	o.transition(ctx, r.sub)
	return nil
}

// Fail records a terminal failure for a run that could not finish on its own,
// such as one that panicked or could not persist a stage. The failure is
// attributed to the last persisted stage and goes through the same persist,
// publish and hook path as a stage failure. Terminal submissions are returned
// unchanged.
func (o *Orchestrator) Fail(ctx context.Context, submissionID string, cause error) (model.Submission, error) {
	sub, err := o.store.LoadSubmission(ctx, submissionID)
	if err != nil {
		return model.Submission{}, fmt.Errorf("load submission %s: %w", submissionID, err)
	}
	if sub.Status.Terminal() {
		return sub, nil
	}
	stage := sub.Stage
	if stage == "" {
		stage = model.StagePending
	}
	ctx = logger.WithFields(ctx, logger.String("submission_id", submissionID))
	return o.fail(ctx, &run{sub: sub}, stage, cause)
}

// fail records a terminal failure at stage. Progress keeps its last value.
func (o *Orchestrator) fail(ctx context.Context, r *run, stage model.Stage, cause error) (model.Submission, error) {
	now := o.now().UTC()
	u := model.StatusUpdate{
		Status:       model.StatusFailed,
		Stage:        model.StageFailed,
		Progress:     r.sub.Progress,
		ErrorMessage: cause.Error(),
		FailedStage:  stage,
		ProcessedAt:  &now,
	}
	if err := o.store.UpdateStatus(ctx, r.sub.ID, u); err != nil {
		return r.sub, fmt.Errorf("persist failure at %s: %w", stage, err)
	}
	u.Apply(&r.sub, now)

	metrics.RecordStageFailure(string(stage))
	metrics.RecordSubmissionFinished(string(model.StatusFailed))
	o.log.Error(ctx, "run failed", logger.String("stage", string(stage)), logger.Error(cause))
	o.publisher.Publish(ctx, model.ProgressEvent{
		SubmissionID: r.sub.ID,
		Stage:        model.StageFailed,
		Progress:     r.sub.Progress,
		Message:      cause.Error(),
		Done:         true,
		Error:        true,
		Timestamp:    now,
		Data:         map[string]any{"failed_stage": stage},
	})
	o.transition(ctx, r.sub)
	return r.sub, nil
}

// withRetry calls fn until it succeeds, returns a non-transient error, or
// the attempts run out. Only transient errors are retried.
func (o *Orchestrator) withRetry(ctx context.Context, stage model.Stage, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= o.retry.MaxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.IsTransient(err) || attempt == o.retry.MaxAttempts {
			return err
		}

		delay := o.retry.delay(attempt)
		metrics.RecordStageRetry(string(stage))
		o.log.Warn(ctx, "transient error, retrying",
			logger.String("stage", string(stage)),
			logger.Int("attempt", attempt),
			logger.Duration("backoff", delay),
			logger.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
