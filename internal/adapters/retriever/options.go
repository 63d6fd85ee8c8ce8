package retriever

import "github.com/googly1030/intern-platform/pkg/logger"

// Option applies a configuration option to the Retriever.
type Option func(*Retriever)

// WithMaxFileBytes skips files larger than n bytes.
func WithMaxFileBytes(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.maxFileBytes = n
		}
	}
}

// WithMaxFiles caps how many files are read.
func WithMaxFiles(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.maxFiles = n
		}
	}
}

// WithMaxCommits caps how much history is read.
func WithMaxCommits(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.maxCommits = n
		}
	}
}

// WithToken authenticates clones with a GitHub token.
func WithToken(token string) Option {
	return func(r *Retriever) { r.token = token }
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Retriever) {
		if l != nil {
			r.log = l
		}
	}
}
