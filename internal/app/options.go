package service

import (
	"time"

	workerpool "github.com/googly1030/intern-platform/internal/adapters/mq/worker"
	"github.com/googly1030/intern-platform/internal/adapters/repository"
	"github.com/googly1030/intern-platform/internal/domain/batch"
	"github.com/googly1030/intern-platform/internal/domain/progress"
	"github.com/googly1030/intern-platform/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerPool attaches the pool started and drained with the service.
func WithWorkerPool(p *workerpool.Pool) Option {
	return func(s *Service) {
		s.pool = p
	}
}

// WithBroadcaster shares a progress broadcaster with the pipeline.
func WithBroadcaster(b *progress.Broadcaster) Option {
	return func(s *Service) {
		if b != nil {
			s.broadcaster = b
		}
	}
}

// WithRanking shares a leaderboard index.
func WithRanking(r *repository.Ranking) Option {
	return func(s *Service) {
		if r != nil {
			s.ranking = r
		}
	}
}

// WithTracker sets the batch tracker.
func WithTracker(t *batch.Tracker) Option {
	return func(s *Service) {
		if t != nil {
			s.tracker = t
		}
	}
}

// WithStatusReader sets the status fast path.
func WithStatusReader(r StatusReader) Option {
	return func(s *Service) {
		s.status = r
	}
}

// WithBatchFanout bounds concurrent writes when adding batch members.
func WithBatchFanout(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchFanout = n
		}
	}
}

// WithMaxLeaderboardSize caps leaderboard requests.
func WithMaxLeaderboardSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLeaderboard = n
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator sets the id source for submissions and batches.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
