package pipeline

import (
	"context"

	"github.com/googly1030/intern-platform/internal/domain/analyzer"
	"github.com/googly1030/intern-platform/internal/domain/model"
)

// Store is the persistence the orchestrator writes through.
type Store interface {
	LoadSubmission(ctx context.Context, id string) (model.Submission, error)
	UpdateStatus(ctx context.Context, id string, u model.StatusUpdate) error
	// SaveReport stores the report and marks the submission completed.
	SaveReport(ctx context.Context, id string, r model.ScoreReport) error
}

// Retriever fetches a repository snapshot with its commit history.
type Retriever interface {
	Fetch(ctx context.Context, repoURL string) (analyzer.Snapshot, error)
}

// Reviewer scores the quality categories from a code sample.
type Reviewer interface {
	Review(ctx context.Context, req analyzer.ReviewRequest) (analyzer.ReviewResult, error)
}

// Prober checks hosted deployments and demo links.
type Prober interface {
	// Reachable returns nil when a GET of url answers 2xx or 3xx.
	Reachable(ctx context.Context, url string) error
	// Head reports whether a HEAD of url answered 2xx or 3xx. A non-nil error
	// means no response was received at all.
	Head(ctx context.Context, url string) (bool, error)
}

// Capturer takes screenshots of a hosted deployment.
type Capturer interface {
	Capture(ctx context.Context, submissionID, url string) ([]model.Screenshot, error)
}

// Publisher receives progress events.
type Publisher interface {
	Publish(ctx context.Context, event model.ProgressEvent)
}

// TransitionHook is called after every persisted transition.
type TransitionHook func(ctx context.Context, sub model.Submission)

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, model.ProgressEvent) {}
