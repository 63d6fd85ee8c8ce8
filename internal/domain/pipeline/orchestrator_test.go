package pipeline_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/googly1030/intern-platform/internal/domain/analyzer"
	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/internal/domain/pipeline"
	"github.com/googly1030/intern-platform/internal/domain/rubric"
	"github.com/googly1030/intern-platform/pkg/errors"
	"github.com/googly1030/intern-platform/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type memStore struct {
	mu      sync.Mutex
	subs    map[string]model.Submission
	reports map[string]model.ScoreReport
	updates []model.StatusUpdate
}

func newMemStore(subs ...model.Submission) *memStore {
	s := &memStore{subs: map[string]model.Submission{}, reports: map[string]model.ScoreReport{}}
	for _, sub := range subs {
		s.subs[sub.ID] = sub
	}
	return s
}

func (s *memStore) LoadSubmission(_ context.Context, id string) (model.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return model.Submission{}, errors.NotFoundError("submission")
	}
	return sub, nil
}

func (s *memStore) UpdateStatus(_ context.Context, id string, u model.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := s.subs[id]
	u.Apply(&sub, time.Now())
	s.subs[id] = sub
	s.updates = append(s.updates, u)
	return nil
}

func (s *memStore) SaveReport(_ context.Context, id string, r model.ScoreReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[id] = r
	sub := s.subs[id]
	now := r.GeneratedAt
	model.StatusUpdate{Status: model.StatusCompleted, Stage: model.StageCompleted, Progress: 100, ProcessedAt: &now}.Apply(&sub, now)
	overall := r.OverallScore
	sub.OverallScore = &overall
	sub.Grade = r.Grade
	s.subs[id] = sub
	return nil
}

func (s *memStore) requestCancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := s.subs[id]
	sub.CancelRequested = true
	s.subs[id] = sub
}

type fakeRetriever struct {
	mu       sync.Mutex
	errs     []error
	snapshot analyzer.Snapshot
	calls    int
}

func (f *fakeRetriever) Fetch(context.Context, string) (analyzer.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		if len(f.errs) > 1 {
			f.errs = f.errs[1:]
		}
		if err != nil {
			return analyzer.Snapshot{}, err
		}
	}
	return f.snapshot, nil
}

type fakeReviewer struct {
	result analyzer.ReviewResult
	err    error
	calls  int
}

func (f *fakeReviewer) Review(context.Context, analyzer.ReviewRequest) (analyzer.ReviewResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeProber struct {
	reachErr error
}

func (f fakeProber) Reachable(context.Context, string) error   { return f.reachErr }
func (f fakeProber) Head(context.Context, string) (bool, error) { return true, nil }

type fakeCapturer struct{ err error }

func (f fakeCapturer) Capture(_ context.Context, id, _ string) ([]model.Screenshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []model.Screenshot{{Page: "login", URL: "https://cdn.example.com/" + id + "/login.png"}}, nil
}

type recorder struct {
	mu     sync.Mutex
	events []model.ProgressEvent
}

func (r *recorder) Publish(_ context.Context, e model.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) progress() []int {
	var out []int
	for _, e := range r.events {
		out = append(out, e.Progress)
	}
	return out
}

func projectFiles() map[string]string {
	return map[string]string{
		"README.md":        "# app",
		"index.html":       `<link href="css/bootstrap.min.css"><div class="container"><div class="row"><a class="btn">x</a></div></div>`,
		"login.html":       "<div></div>",
		"register.html":    "<div></div>",
		"profile.html":     "<div></div>",
		"css/style.css":    "body{}",
		"assets/logo.svg":  "<svg/>",
		"js/login.js":      `$.ajax({}); localStorage.setItem("k", v);`,
		"js/register.js":   `$.post("x", d);`,
		"js/profile.js":    `$.get("y");`,
		"php/login.php":    `<?php $c = new mysqli(); $s = $c->prepare("SELECT 1"); $r = new Redis();`,
		"php/register.php": `<?php $m = new MongoDB\Client("mongodb://db");`,
		"php/profile.php":  `<?php echo 1;`,
	}
}

func fullReview() analyzer.ReviewResult {
	cats := map[rubric.Category]analyzer.CategoryReview{}
	for _, c := range rubric.QualityCategories() {
		cats[c] = analyzer.CategoryReview{Score: 4}
	}
	return analyzer.ReviewResult{Categories: cats, Summary: "solid", Strengths: []string{"clean"}}
}

func submission() model.Submission {
	return model.Submission{
		ID:        "sub-1",
		RepoURL:   "https://github.com/octo/app",
		HostedURL: "https://app.example.com",
		VideoURL:  "https://youtu.be/demo",
		Status:    model.StatusPending,
		Stage:     model.StagePending,
	}
}

func fastRetry() pipeline.Option {
	return pipeline.WithRetryPolicy(pipeline.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond})
}

func flagCodes(r model.ScoreReport) []string {
	var out []string
	for _, f := range r.Flags {
		out = append(out, f.Code)
	}
	return out
}

func TestOrchestratorHappyPath(t *testing.T) {
	Convey("Given every collaborator succeeds", t, func() {
		store := newMemStore(submission())
		retriever := &fakeRetriever{snapshot: analyzer.NewSnapshot(projectFiles(), nil, nil)}
		rec := &recorder{}
		var hooks []model.Stage
		o := pipeline.New(store, retriever,
			pipeline.WithReviewer(&fakeReviewer{result: fullReview()}),
			pipeline.WithProber(fakeProber{}),
			pipeline.WithCapturer(fakeCapturer{}),
			pipeline.WithPublisher(rec),
			pipeline.WithTransitionHook(func(_ context.Context, s model.Submission) { hooks = append(hooks, s.Stage) }),
			fastRetry(),
		)

		sub, err := o.Run(context.Background(), "sub-1")

		Convey("Then the submission completes", func() {
			So(err, ShouldBeNil)
			So(sub.Status, ShouldEqual, model.StatusCompleted)
			So(sub.Progress, ShouldEqual, 100)
			So(store.subs["sub-1"].Status, ShouldEqual, model.StatusCompleted)
			So(store.subs["sub-1"].StartedAt, ShouldNotBeNil)
		})

		Convey("Then progress is published for each stage in order", func() {
			So(rec.progress(), ShouldResemble, []int{14, 28, 42, 57, 71, 85, 100})
			last := rec.events[len(rec.events)-1]
			So(last.Done, ShouldBeTrue)
			So(last.Error, ShouldBeFalse)
		})

		Convey("Then the hook sees every transition", func() {
			So(hooks, ShouldHaveLength, 7)
			So(hooks[len(hooks)-1], ShouldEqual, model.StageCompleted)
		})

		Convey("Then the report is consistent", func() {
			report := store.reports["sub-1"]
			total := 0
			for c, v := range report.Scores {
				So(v, ShouldBeBetweenOrEqual, 0, rubric.MaxFor(c))
				total += v
			}
			So(report.OverallScore, ShouldEqual, total)
			So(report.Scores[rubric.Deployment], ShouldEqual, 3)
			So(report.Scores[rubric.BonusFeatures], ShouldEqual, 2)
			So(report.Scores[rubric.Modularity], ShouldEqual, 4)
			So(report.Screenshots, ShouldHaveLength, 1)
			So(report.Review.Summary, ShouldEqual, "solid")
		})
	})
}

func TestOrchestratorCloning(t *testing.T) {
	Convey("Given a retriever that keeps timing out", t, func() {
		store := newMemStore(submission())
		timeout := errors.Transient(fmt.Errorf("dial github.com: i/o timeout"), errors.NetworkTimeout)
		retriever := &fakeRetriever{errs: []error{timeout}}
		rec := &recorder{}
		o := pipeline.New(store, retriever, pipeline.WithPublisher(rec), fastRetry())

		sub, err := o.Run(context.Background(), "sub-1")

		Convey("Then it fails at cloning after every attempt and never advances", func() {
			So(err, ShouldBeNil)
			So(retriever.calls, ShouldEqual, 3)
			So(sub.Status, ShouldEqual, model.StatusFailed)
			So(sub.Stage, ShouldEqual, model.StageFailed)
			So(sub.FailedStage, ShouldEqual, model.StageCloning)
			So(sub.ErrorMessage, ShouldEqual, "dial github.com: i/o timeout")
			So(sub.Progress, ShouldEqual, 14)
			So(store.reports, ShouldBeEmpty)
			for _, u := range store.updates {
				So(u.Stage, ShouldBeIn, model.StageCloning, model.StageFailed)
			}
		})

		Convey("Then a terminal error event is published", func() {
			last := rec.events[len(rec.events)-1]
			So(last.Done, ShouldBeTrue)
			So(last.Error, ShouldBeTrue)
			So(last.Progress, ShouldEqual, 14)
		})
	})

	Convey("Given a repository that does not exist", t, func() {
		store := newMemStore(submission())
		retriever := &fakeRetriever{errs: []error{errors.Newf(errors.RepoUnreachable, "repository not found")}}
		o := pipeline.New(store, retriever, fastRetry())

		sub, _ := o.Run(context.Background(), "sub-1")

		Convey("Then the fatal error is not retried", func() {
			So(retriever.calls, ShouldEqual, 1)
			So(sub.ErrorMessage, ShouldEqual, "repository not found")
			So(sub.FailedStage, ShouldEqual, model.StageCloning)
		})
	})

	Convey("Given one transient failure before success", t, func() {
		store := newMemStore(submission())
		retriever := &fakeRetriever{
			errs:     []error{errors.Transient(nil, errors.NetworkTimeout), nil},
			snapshot: analyzer.NewSnapshot(projectFiles(), nil, nil),
		}
		o := pipeline.New(store, retriever, fastRetry())

		sub, err := o.Run(context.Background(), "sub-1")

		Convey("Then the run recovers and completes", func() {
			So(err, ShouldBeNil)
			So(retriever.calls, ShouldEqual, 2)
			So(sub.Status, ShouldEqual, model.StatusCompleted)
		})
	})
}

func TestOrchestratorDegradation(t *testing.T) {
	Convey("Given a reviewer that is unavailable", t, func() {
		store := newMemStore(submission())
		retriever := &fakeRetriever{snapshot: analyzer.NewSnapshot(projectFiles(), nil, nil)}
		reviewer := &fakeReviewer{err: errors.Transient(fmt.Errorf("503"), errors.ProviderUnavailable)}
		o := pipeline.New(store, retriever,
			pipeline.WithReviewer(reviewer),
			pipeline.WithDegradedScore(2),
			fastRetry(),
		)

		sub, err := o.Run(context.Background(), "sub-1")

		Convey("Then the run still completes with degraded quality scores", func() {
			So(err, ShouldBeNil)
			So(reviewer.calls, ShouldEqual, 3)
			So(sub.Status, ShouldEqual, model.StatusCompleted)
			report := store.reports["sub-1"]
			for _, c := range rubric.QualityCategories() {
				So(report.Scores[c], ShouldEqual, 2)
				So(report.Details[c].Degraded, ShouldBeTrue)
			}
			So(flagCodes(report), ShouldContain, "AI_REVIEW_UNAVAILABLE")
		})
	})

	Convey("Given no hosted URL", t, func() {
		s := submission()
		s.HostedURL = ""
		store := newMemStore(s)
		retriever := &fakeRetriever{snapshot: analyzer.NewSnapshot(projectFiles(), nil, nil)}
		o := pipeline.New(store, retriever, pipeline.WithProber(fakeProber{}), fastRetry())

		sub, err := o.Run(context.Background(), "sub-1")

		Convey("Then deployment scores zero with a non-critical flag and the run completes", func() {
			So(err, ShouldBeNil)
			So(sub.Status, ShouldEqual, model.StatusCompleted)
			report := store.reports["sub-1"]
			So(report.Scores[rubric.Deployment], ShouldEqual, 0)
			for _, f := range report.Flags {
				if f.Code == "NO_DEPLOYMENT" {
					So(f.Severity, ShouldNotEqual, model.SeverityCritical)
				}
			}
			So(flagCodes(report), ShouldContain, "NO_DEPLOYMENT")
		})
	})

	Convey("Given an unreachable deployment whose screenshots fail", t, func() {
		store := newMemStore(submission())
		retriever := &fakeRetriever{snapshot: analyzer.NewSnapshot(projectFiles(), nil, nil)}
		o := pipeline.New(store, retriever,
			pipeline.WithProber(fakeProber{reachErr: fmt.Errorf("connection refused")}),
			pipeline.WithCapturer(fakeCapturer{err: fmt.Errorf("sidecar down")}),
			fastRetry(),
		)

		sub, _ := o.Run(context.Background(), "sub-1")

		Convey("Then failures become flags", func() {
			So(sub.Status, ShouldEqual, model.StatusCompleted)
			codes := flagCodes(store.reports["sub-1"])
			So(codes, ShouldContain, "DEPLOYMENT_NOT_ACCESSIBLE")
			So(codes, ShouldContain, "SCREENSHOTS_UNAVAILABLE")
		})
	})
}

func TestOrchestratorAuthorship(t *testing.T) {
	Convey("Given 50 commits in two hours with generic messages", t, func() {
		start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
		commits := make([]analyzer.Commit, 50)
		for i := range commits {
			commits[i] = analyzer.Commit{Hash: fmt.Sprint(i), Message: "update", When: start.Add(time.Duration(i) * 144 * time.Second)}
		}

		run := func(c []analyzer.Commit) model.ScoreReport {
			store := newMemStore(submission())
			retriever := &fakeRetriever{snapshot: analyzer.NewSnapshot(projectFiles(), nil, c)}
			_, err := pipeline.New(store, retriever, fastRetry()).Run(context.Background(), "sub-1")
			So(err, ShouldBeNil)
			return store.reports["sub-1"]
		}
		withHistory := run(commits)
		without := run(nil)

		Convey("Then risk is high and the overall score is unaffected", func() {
			So(withHistory.AIRisk, ShouldBeGreaterThan, 0.5)
			So(withHistory.OverallScore, ShouldEqual, without.OverallScore)
			So(flagCodes(withHistory), ShouldContain, "AI_GENERATED_HIGH")
		})
	})
}

func TestOrchestratorInterruption(t *testing.T) {
	Convey("Given a cancellation request before the run starts", t, func() {
		s := submission()
		store := newMemStore(s)
		store.requestCancel(s.ID)
		rec := &recorder{}
		o := pipeline.New(store, &fakeRetriever{}, pipeline.WithPublisher(rec))

		sub, err := o.Run(context.Background(), s.ID)

		Convey("Then it fails at the first boundary with reason cancelled", func() {
			So(err, ShouldBeNil)
			So(sub.Status, ShouldEqual, model.StatusFailed)
			So(sub.FailedStage, ShouldEqual, model.StageCloning)
			So(sub.ErrorMessage, ShouldEqual, "cancelled")
			So(rec.events, ShouldHaveLength, 1)
			So(rec.events[0].Error, ShouldBeTrue)
		})
	})

	Convey("Given a context that is already cancelled", t, func() {
		store := newMemStore(submission())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		sub, err := pipeline.New(store, &fakeRetriever{}).Run(ctx, "sub-1")

		Convey("Then the record is left untouched for redelivery", func() {
			So(err, ShouldEqual, context.Canceled)
			So(sub.Status, ShouldEqual, model.StatusPending)
			So(store.updates, ShouldBeEmpty)
		})
	})

	Convey("Given a submission that already finished", t, func() {
		s := submission()
		s.Status = model.StatusCompleted
		store := newMemStore(s)
		retriever := &fakeRetriever{}

		sub, err := pipeline.New(store, retriever).Run(context.Background(), s.ID)

		Convey("Then nothing runs", func() {
			So(err, ShouldBeNil)
			So(sub.Status, ShouldEqual, model.StatusCompleted)
			So(retriever.calls, ShouldEqual, 0)
		})
	})

	Convey("Given an unknown submission", t, func() {
		_, err := pipeline.New(newMemStore(), &fakeRetriever{}).Run(context.Background(), "nope")
		So(errors.Is(err, errors.NotFound), ShouldBeTrue)
	})
}

// cancellingReviewer requests cancellation of the submission it reviews.
type cancellingReviewer struct{ store *memStore }

func (c cancellingReviewer) Review(_ context.Context, req analyzer.ReviewRequest) (analyzer.ReviewResult, error) {
	c.store.requestCancel(req.SubmissionID)
	return fullReview(), nil
}

type countingProber struct{ calls int }

func (p *countingProber) Reachable(context.Context, string) error {
	p.calls++
	return nil
}

func (p *countingProber) Head(context.Context, string) (bool, error) { return true, nil }

func TestOrchestratorMidRunCancellation(t *testing.T) {
	Convey("Given a cancellation requested while ai_review is running", t, func() {
		store := newMemStore(submission())
		prober := &countingProber{}
		rec := &recorder{}
		var hooked []model.Submission
		o := pipeline.New(store, &fakeRetriever{snapshot: analyzer.NewSnapshot(projectFiles(), nil, nil)},
			fastRetry(),
			pipeline.WithReviewer(cancellingReviewer{store: store}),
			pipeline.WithProber(prober),
			pipeline.WithPublisher(rec),
			pipeline.WithTransitionHook(func(_ context.Context, s model.Submission) { hooked = append(hooked, s) }),
		)

		sub, err := o.Run(context.Background(), "sub-1")

		Convey("Then the review finishes and the run fails at the next boundary", func() {
			So(err, ShouldBeNil)
			So(sub.Status, ShouldEqual, model.StatusFailed)
			So(sub.FailedStage, ShouldEqual, model.StageAIDetection)
			So(sub.ErrorMessage, ShouldEqual, "cancelled")
			So(sub.Progress, ShouldEqual, model.StageAIReview.Progress())
		})

		Convey("Then no later stage runs", func() {
			var entered []model.Stage
			for _, u := range store.updates {
				entered = append(entered, u.Stage)
			}
			So(entered, ShouldResemble, []model.Stage{
				model.StageCloning, model.StageAnalyzing, model.StageAIReview, model.StageFailed,
			})
			So(prober.calls, ShouldEqual, 0)
			So(store.reports, ShouldBeEmpty)
			So(rec.events[len(rec.events)-1].Done, ShouldBeTrue)
			So(hooked[len(hooked)-1].Status, ShouldEqual, model.StatusFailed)
		})
	})
}

func TestOrchestratorFail(t *testing.T) {
	Convey("Given a run that stopped after entering analyzing", t, func() {
		s := submission()
		s.Status = model.StatusProcessing
		s.Stage = model.StageAnalyzing
		s.Progress = model.StageAnalyzing.Progress()
		store := newMemStore(s)
		rec := &recorder{}
		var hooked []model.Submission
		o := pipeline.New(store, &fakeRetriever{},
			pipeline.WithPublisher(rec),
			pipeline.WithTransitionHook(func(_ context.Context, sub model.Submission) { hooked = append(hooked, sub) }),
		)

		sub, err := o.Fail(context.Background(), s.ID, fmt.Errorf("internal error: boom"))

		Convey("Then the failure is persisted, published and handed to the hook", func() {
			So(err, ShouldBeNil)
			So(sub.Status, ShouldEqual, model.StatusFailed)
			So(sub.FailedStage, ShouldEqual, model.StageAnalyzing)
			So(sub.Progress, ShouldEqual, s.Progress)

			stored, _ := store.LoadSubmission(context.Background(), s.ID)
			So(stored.Status, ShouldEqual, model.StatusFailed)
			So(stored.ErrorMessage, ShouldEqual, "internal error: boom")

			So(rec.events, ShouldHaveLength, 1)
			So(rec.events[0].Done, ShouldBeTrue)
			So(rec.events[0].Error, ShouldBeTrue)
			So(hooked, ShouldHaveLength, 1)
		})

		Convey("Then failing it again changes nothing", func() {
			again, err := o.Fail(context.Background(), s.ID, fmt.Errorf("second"))
			So(err, ShouldBeNil)
			So(again.ErrorMessage, ShouldEqual, "internal error: boom")
			So(rec.events, ShouldHaveLength, 1)
		})
	})
}
