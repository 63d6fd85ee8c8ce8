package worker

import (
	"github.com/googly1030/intern-platform/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithStore enables the terminal-status check before a run.
func WithStore(s Store) Option {
	return func(w *InMemoryWorker) {
		if s != nil {
			w.store = s
		}
	}
}
