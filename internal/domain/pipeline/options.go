package pipeline

import (
	"time"

	"github.com/googly1030/intern-platform/internal/domain/analyzer"
	"github.com/googly1030/intern-platform/internal/domain/scoring"
	"github.com/googly1030/intern-platform/pkg/logger"
)

// RetryPolicy bounds retries of transient collaborator errors. The delay
// starts at BaseDelay and doubles up to MaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns three attempts starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return min(d, p.MaxDelay)
}

// Option applies a configuration option to the Orchestrator.
type Option func(*Orchestrator)

// WithReviewer enables code review. Without one, quality categories degrade.
func WithReviewer(r Reviewer) Option {
	return func(o *Orchestrator) { o.reviewer = r }
}

// WithProber enables deployment and video checks.
func WithProber(p Prober) Option {
	return func(o *Orchestrator) { o.prober = p }
}

// WithCapturer enables screenshot capture.
func WithCapturer(c Capturer) Option {
	return func(o *Orchestrator) { o.capturer = c }
}

// WithPublisher sets where progress events go.
func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.publisher = p
		}
	}
}

// WithTransitionHook sets the callback run after each transition.
func WithTransitionHook(h TransitionHook) Option {
	return func(o *Orchestrator) { o.onTransition = h }
}

// WithRetryPolicy overrides the retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *Orchestrator) {
		if p.MaxAttempts > 0 {
			o.retry = p
		}
	}
}

// WithDegradedScore sets the neutral score for unreviewed quality categories.
func WithDegradedScore(score int) Option {
	return func(o *Orchestrator) {
		if score >= 0 {
			o.degradedScore = score
		}
	}
}

// WithAuthorshipWeights overrides the authorship heuristic weights.
func WithAuthorshipWeights(w analyzer.AuthorshipWeights) Option {
	return func(o *Orchestrator) { o.weights = w }
}

// WithTimeouts bounds each clone, review attempt and deployment check.
func WithTimeouts(clone, review, deploy time.Duration) Option {
	return func(o *Orchestrator) {
		if clone > 0 {
			o.cloneTimeout = clone
		}
		if review > 0 {
			o.reviewTimeout = review
		}
		if deploy > 0 {
			o.deployTimeout = deploy
		}
	}
}

// WithAggregator overrides the score aggregator.
func WithAggregator(a *scoring.Aggregator) Option {
	return func(o *Orchestrator) {
		if a != nil {
			o.aggregator = a
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}
