package llm

import "github.com/googly1030/intern-platform/pkg/logger"

// Option configures a Reviewer.
type Option func(*Reviewer)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Reviewer) {
		if l != nil {
			r.log = l
		}
	}
}

// WithBreakerName names the circuit breaker, which is useful when several
// reviewers share a process.
func WithBreakerName(name string) Option {
	return func(r *Reviewer) {
		if name != "" {
			r.brk = newBreaker(name)
		}
	}
}
