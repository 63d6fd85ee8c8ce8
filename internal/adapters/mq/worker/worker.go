// Package worker runs queued submissions through the scoring pipeline.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/googly1030/intern-platform/internal/adapters/mq/queue"
	"github.com/googly1030/intern-platform/internal/domain/dedupe"
	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/pkg/logger"
	"github.com/googly1030/intern-platform/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	metricsUpdateInterval   = 5 * time.Second
	workerShutdownTimeout   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
	ackTimeout              = 5 * time.Second
	failTimeout             = 10 * time.Second
)

// Job abstracts what workers read off the queue.
type Job = model.Job

// Runner drives one submission through every stage. Fail records a terminal
// failure for a run that could not finish on its own.
type Runner interface {
	Run(ctx context.Context, submissionID string) (model.Submission, error)
	Fail(ctx context.Context, submissionID string, cause error) (model.Submission, error)
}

// Store lets a worker skip finished submissions.
type Store interface {
	LoadSubmission(ctx context.Context, id string) (model.Submission, error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes jobs one at a time.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current job.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker on top of a Runner.
type InMemoryWorker struct {
	queue  Queue
	runner Runner
	guard  dedupe.Guard
	store  Store
	name   string

	// busy is non-zero while a job is running.
	busy      atomic.Bool
	processed *atomic.Int64

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, runner Runner, guard dedupe.Guard, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		runner:    runner,
		guard:     guard,
		name:      "worker",
		processed: new(atomic.Int64),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			w.busy.Store(true)
			w.process(ctx, j)
			w.busy.Store(false)
		}
	}
}

// Shutdown stops the worker after its current job.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stop()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) stop() {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
}

// Busy reports whether a job is in flight.
func (w *InMemoryWorker) Busy() bool {
	return w.busy.Load()
}

// process runs a single job and acknowledges it once the submission is
// terminal. A run interrupted by shutdown, or one whose failure could not be
// recorded, stays unacknowledged so a durable broker redelivers it.
func (w *InMemoryWorker) process(ctx context.Context, j Job) { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	start := time.Now()
	ctx = logger.WithFields(ctx, logger.String("submission_id", j.SubmissionID), logger.String("worker", w.name))
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	if w.guard != nil {
		if !w.guard.Acquire(ctx, j.SubmissionID) {
			w.logger.Info(ctx, "duplicate delivery skipped")
			metrics.RecordWorkerSkipped("duplicate")
			w.ack(ctx, j)
			return
		}
		defer w.guard.Release(context.WithoutCancel(ctx), j.SubmissionID)
	}

	if w.store != nil {
		sub, err := w.store.LoadSubmission(ctx, j.SubmissionID)
		if err == nil && sub.Status.Terminal() {
			w.logger.Info(ctx, "terminal submission skipped", logger.String("status", string(sub.Status)))
			metrics.RecordWorkerSkipped("terminal")
			w.ack(ctx, j)
			return
		}
	}

	if err := w.run(ctx, j); err != nil {
		if ctx.Err() != nil {
			// Interrupted mid-run: leave the job unacknowledged for redelivery.
			w.logger.Warn(ctx, "run interrupted", logger.Error(err))
			return
		}
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "run")
		w.logger.Error(ctx, "run failed", logger.Error(err))
		if !w.recordFailure(ctx, j.SubmissionID, err) {
			return
		}
	}
	w.processed.Add(1)
	w.ack(ctx, j)
}

// run turns a panic into an error so it is recorded like any other failure.
func (w *InMemoryWorker) run(ctx context.Context, j Job) (err error) { //nolint:gocritic // hugeParam
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordWorkerPanic()
			w.logger.Error(ctx, "run panicked",
				logger.Any("panic", r), logger.String("stack", string(debug.Stack())))
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	_, err = w.runner.Run(ctx, j.SubmissionID)
	return err
}

// recordFailure fails the submission through the runner so subscribers get a
// terminal event and batch counters are refreshed.
func (w *InMemoryWorker) recordFailure(ctx context.Context, id string, cause error) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failTimeout)
	defer cancel()
	if _, err := w.runner.Fail(ctx, id, cause); err != nil {
		w.logger.Error(ctx, "recording failure failed; leaving job for redelivery", logger.Error(err))
		return false
	}
	return true
}

func (w *InMemoryWorker) ack(ctx context.Context, j Job) { //nolint:gocritic // hugeParam
	acker, ok := w.queue.(queue.Acker)
	if !ok {
		return
	}
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer cancel()
	if err := acker.Ack(ackCtx, j); err != nil {
		w.logger.Error(ctx, "ack failed", logger.Error(err))
	}
}

// Pool manages a fixed set of workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	shutdown     chan struct{}
	shutdownOnce sync.Once

	processed         *atomic.Int64
	lastProcessedTime time.Time

	logger logger.Logger
}

// NewPool creates a new worker pool. A non-positive workerCount defaults to
// a multiple of the CPU count.
func NewPool(workerCount int, q Queue, runner Runner, guard dedupe.Guard, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers:           make([]*InMemoryWorker, workerCount),
		queue:             q,
		shutdown:          make(chan struct{}),
		processed:         new(atomic.Int64),
		lastProcessedTime: time.Now(),
		logger:            logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		w := NewInMemoryWorker(q, runner, guard, wopts...)
		w.processed = pool.processed
		pool.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerIdleCount(workerCount)
	metrics.UpdateWorkerJobsPerSecond(0.0)

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.startMetricsUpdater(ctx)
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.updateMetrics()
		}
	}
}

func (p *Pool) updateMetrics() {
	now := time.Now()
	if elapsed := now.Sub(p.lastProcessedTime).Seconds(); elapsed > 0 {
		metrics.UpdateWorkerJobsPerSecond(float64(p.processed.Swap(0)) / elapsed)
	}
	p.lastProcessedTime = now

	active := 0
	for _, w := range p.workers {
		if w.Busy() {
			active++
		}
	}
	metrics.UpdateWorkerActiveCount(active)
	metrics.UpdateWorkerIdleCount(len(p.workers) - active)
}

func (p *Pool) signal() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
		for _, w := range p.workers {
			w.stop()
		}
	})
}

// Stop signals every worker and waits briefly for each.
func (p *Pool) Stop() {
	p.signal()
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-time.After(workerShutdownTimeout):
		}
	}
}

// Shutdown closes the queue, then waits for in-flight jobs to finish or ctx
// to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	p.signal()

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var pending int
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			pending++
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	if pending > 0 {
		return fmt.Errorf("%d workers still running: %w", pending, shutdownCtx.Err())
	}
	return nil
}
