package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/googly1030/intern-platform/internal/adapters/mq/worker"
	"github.com/googly1030/intern-platform/internal/domain/dedupe"
	"github.com/googly1030/intern-platform/internal/domain/model"
	logging "github.com/googly1030/intern-platform/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logging.Init()
}

// Mock implementations for testing.
type mockQueue struct {
	jobs   chan model.Job
	mu     sync.Mutex
	acked  []string
	closed atomic.Bool
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan model.Job, 16)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan model.Job { return mq.jobs }

func (mq *mockQueue) Ack(_ context.Context, j model.Job) error {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	mq.acked = append(mq.acked, j.SubmissionID)
	return nil
}

func (mq *mockQueue) Close() error {
	if mq.closed.CompareAndSwap(false, true) {
		close(mq.jobs)
	}
	return nil
}

func (mq *mockQueue) add(id string) { mq.jobs <- model.Job{SubmissionID: id} }

func (mq *mockQueue) ackedIDs() []string {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	return append([]string(nil), mq.acked...)
}

type mockRunner struct {
	mu       sync.Mutex
	runs     map[string]int
	fn       func(ctx context.Context, id string) error
	delay    time.Duration
	store    *mockStore
	failErr  error
	failures map[string]string
}

func newMockRunner() *mockRunner {
	return &mockRunner{runs: make(map[string]int), failures: make(map[string]string)}
}

// Fail mirrors the orchestrator: the failure lands on the last persisted stage.
func (mr *mockRunner) Fail(_ context.Context, id string, cause error) (model.Submission, error) {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	if mr.failErr != nil {
		return model.Submission{}, mr.failErr
	}
	mr.failures[id] = cause.Error()
	if mr.store == nil {
		return model.Submission{ID: id, Status: model.StatusFailed}, nil
	}
	sub := mr.store.get(id)
	_ = mr.store.UpdateStatus(context.Background(), id, model.StatusUpdate{
		Status:       model.StatusFailed,
		Stage:        model.StageFailed,
		Progress:     sub.Progress,
		ErrorMessage: cause.Error(),
		FailedStage:  sub.Stage,
	})
	return mr.store.get(id), nil
}

func (mr *mockRunner) failure(id string) (string, bool) {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	msg, ok := mr.failures[id]
	return msg, ok
}

func (mr *mockRunner) Run(ctx context.Context, id string) (model.Submission, error) {
	mr.mu.Lock()
	mr.runs[id]++
	fn, delay := mr.fn, mr.delay
	mr.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return model.Submission{}, ctx.Err()
		}
	}
	if fn != nil {
		if err := fn(ctx, id); err != nil {
			return model.Submission{}, err
		}
	}
	return model.Submission{ID: id, Status: model.StatusCompleted}, nil
}

func (mr *mockRunner) count(id string) int {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	return mr.runs[id]
}

type mockStore struct {
	mu   sync.Mutex
	subs map[string]model.Submission
}

func newMockStore(subs ...model.Submission) *mockStore {
	s := &mockStore{subs: make(map[string]model.Submission)}
	for _, sub := range subs {
		s.subs[sub.ID] = sub
	}
	return s
}

func (s *mockStore) LoadSubmission(_ context.Context, id string) (model.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return model.Submission{}, errors.New("not found")
	}
	return sub, nil
}

func (s *mockStore) UpdateStatus(_ context.Context, id string, u model.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := s.subs[id]
	u.Apply(&sub, time.Now())
	s.subs[id] = sub
	return nil
}

func (s *mockStore) get(id string) model.Submission {
	sub, _ := s.LoadSubmission(context.Background(), id)
	return sub
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a worker pool over a queue with ack support", t, func() {
		q := newMockQueue()
		runner := newMockRunner()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		convey.Convey("Every job is run once and acknowledged", func() {
			pool := worker.NewPool(3, q, runner, dedupe.NewInMemoryGuard())
			pool.Start(ctx)
			for i := 0; i < 10; i++ {
				q.add(fmt.Sprintf("sub-%d", i))
			}

			convey.So(waitFor(func() bool { return len(q.ackedIDs()) == 10 }), convey.ShouldBeTrue)
			for i := 0; i < 10; i++ {
				convey.So(runner.count(fmt.Sprintf("sub-%d", i)), convey.ShouldEqual, 1)
			}
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
		})

		convey.Convey("A duplicate delivery while the first is running is skipped", func() {
			runner.delay = 100 * time.Millisecond
			pool := worker.NewPool(2, q, runner, dedupe.NewInMemoryGuard())
			pool.Start(ctx)
			q.add("sub-dup")
			q.add("sub-dup")

			convey.So(waitFor(func() bool { return len(q.ackedIDs()) == 2 }), convey.ShouldBeTrue)
			convey.So(runner.count("sub-dup"), convey.ShouldEqual, 1)
			pool.Stop()
		})

		convey.Convey("Terminal submissions are acked without running", func() {
			store := newMockStore(model.Submission{ID: "done", Status: model.StatusCompleted})
			pool := worker.NewPool(1, q, runner, dedupe.NewInMemoryGuard(), worker.WithStore(store))
			pool.Start(ctx)
			q.add("done")

			convey.So(waitFor(func() bool { return len(q.ackedIDs()) == 1 }), convey.ShouldBeTrue)
			convey.So(runner.count("done"), convey.ShouldEqual, 0)
			pool.Stop()
		})

		convey.Convey("A panicking run marks the submission failed and others continue", func() {
			store := newMockStore(
				model.Submission{ID: "boom", Status: model.StatusProcessing, Stage: model.StageAnalyzing, Progress: 28},
				model.Submission{ID: "fine", Status: model.StatusPending},
			)
			runner.fn = func(_ context.Context, id string) error {
				if id == "boom" {
					panic("analyzer exploded")
				}
				return nil
			}
			runner.store = store
			pool := worker.NewPool(1, q, runner, dedupe.NewInMemoryGuard(), worker.WithStore(store))
			pool.Start(ctx)
			q.add("boom")
			q.add("fine")

			convey.So(waitFor(func() bool { return len(q.ackedIDs()) == 2 }), convey.ShouldBeTrue)
			failed := store.get("boom")
			convey.So(failed.Status, convey.ShouldEqual, model.StatusFailed)
			convey.So(failed.FailedStage, convey.ShouldEqual, model.StageAnalyzing)
			convey.So(failed.Progress, convey.ShouldEqual, 28)
			convey.So(failed.ErrorMessage, convey.ShouldContainSubstring, "analyzer exploded")
			convey.So(runner.count("fine"), convey.ShouldEqual, 1)
			_, failedFine := runner.failure("fine")
			convey.So(failedFine, convey.ShouldBeFalse)
			pool.Stop()
		})

		convey.Convey("A run error is recorded as a failure and then acknowledged", func() {
			runner.fn = func(context.Context, string) error { return errors.New("store down") }
			pool := worker.NewPool(1, q, runner, nil)
			pool.Start(ctx)
			q.add("sub-err")

			convey.So(waitFor(func() bool { return len(q.ackedIDs()) == 1 }), convey.ShouldBeTrue)
			msg, ok := runner.failure("sub-err")
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(msg, convey.ShouldEqual, "store down")
			pool.Stop()
		})

		convey.Convey("A failure that cannot be recorded is left for redelivery", func() {
			runner.fn = func(context.Context, string) error { return errors.New("store down") }
			runner.failErr = errors.New("still down")
			pool := worker.NewPool(1, q, runner, nil)
			pool.Start(ctx)
			q.add("sub-stuck")
			q.add("sub-next")

			convey.So(waitFor(func() bool { return runner.count("sub-next") == 1 }), convey.ShouldBeTrue)
			time.Sleep(20 * time.Millisecond)
			convey.So(q.ackedIDs(), convey.ShouldBeEmpty)
			pool.Stop()
		})

		convey.Convey("A run interrupted by cancellation is left for redelivery", func() {
			runner.delay = time.Second
			runCtx, stop := context.WithCancel(ctx)
			pool := worker.NewPool(1, q, runner, dedupe.NewInMemoryGuard())
			pool.Start(runCtx)
			q.add("sub-slow")

			convey.So(waitFor(func() bool { return runner.count("sub-slow") == 1 }), convey.ShouldBeTrue)
			stop()
			pool.Stop()
			convey.So(q.ackedIDs(), convey.ShouldBeEmpty)
		})

		convey.Convey("Shutdown closes the queue and waits for workers", func() {
			pool := worker.NewPool(2, q, runner, nil)
			convey.So(pool.Size(), convey.ShouldEqual, 2)
			pool.Start(ctx)
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
			convey.So(q.closed.Load(), convey.ShouldBeTrue)
		})
	})
}

func TestInMemoryWorkerShutdown(t *testing.T) {
	convey.Convey("A single worker stops on shutdown", t, func() {
		q := newMockQueue()
		w := worker.NewInMemoryWorker(q, newMockRunner(), nil, worker.WithName("solo"))
		go w.Run(context.Background())

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
		convey.So(w.Busy(), convey.ShouldBeFalse)
	})
}
