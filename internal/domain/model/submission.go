// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/googly1030/intern-platform/internal/domain/rubric"
)

// Status is the coarse lifecycle state of a submission.
type Status string

// Submission statuses.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// Stage is the fine-grained pipeline position of a submission.
type Stage string

// Pipeline stages in execution order.
const (
	StagePending     Stage = "pending"
	StageCloning     Stage = "cloning"
	StageAnalyzing   Stage = "analyzing"
	StageAIReview    Stage = "ai_review"
	StageAIDetection Stage = "ai_detection"
	StageDeployment  Stage = "deployment"
	StageScoring     Stage = "scoring"
	StageCompleted   Stage = "completed"
	StageFailed      Stage = "failed"
)

var stageOrder = []Stage{
	StagePending,
	StageCloning,
	StageAnalyzing,
	StageAIReview,
	StageAIDetection,
	StageDeployment,
	StageScoring,
}

// RunStages returns the stages executed by a run, cloning through scoring.
func RunStages() []Stage {
	out := make([]Stage, len(stageOrder)-1)
	copy(out, stageOrder[1:])
	return out
}

// Progress returns the percentage reported on entering s. Failed has no
// fixed value; callers keep the last progress instead.
func (s Stage) Progress() int {
	if s == StageCompleted {
		return 100
	}
	for i, st := range stageOrder {
		if st == s {
			return i * 100 / len(stageOrder)
		}
	}
	return 0
}

// Index returns the position of s in the run order; completed sorts last and
// failed or unknown stages return -1.
func (s Stage) Index() int {
	if s == StageCompleted {
		return len(stageOrder)
	}
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Terminal reports whether s ends a run.
func (s Stage) Terminal() bool { return s == StageCompleted || s == StageFailed }

// Submission is one candidate's entry.
type Submission struct {
	ID             string           `json:"id"`
	CandidateName  string           `json:"candidate_name"`
	CandidateEmail string           `json:"candidate_email"`
	RepoURL        string           `json:"repo_url"`
	HostedURL      string           `json:"hosted_url,omitempty"`
	VideoURL       string           `json:"video_url,omitempty"`
	Overrides      rubric.Overrides `json:"overrides"`
	BatchID        string           `json:"batch_id,omitempty"`

	Status          Status `json:"status"`
	Stage           Stage  `json:"stage"`
	Progress        int    `json:"progress"`
	ErrorMessage    string `json:"error_message,omitempty"`
	FailedStage     Stage  `json:"failed_stage,omitempty"`
	CancelRequested bool   `json:"cancel_requested"`

	// OverallScore and Grade are copied from the report on completion for listings.
	OverallScore *int         `json:"overall_score,omitempty"`
	Grade        rubric.Grade `json:"grade,omitempty"`

	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	ProcessedAt *time.Time    `json:"processed_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
}

// StatusUpdate is the orchestrator's write to the status mirror.
type StatusUpdate struct {
	Status       Status
	Stage        Stage
	Progress     int
	ErrorMessage string
	FailedStage  Stage
	StartedAt    *time.Time
	ProcessedAt  *time.Time
}

// Apply writes u onto s. Progress never regresses.
func (u StatusUpdate) Apply(s *Submission, now time.Time) {
	s.Status = u.Status
	s.Stage = u.Stage
	if u.Progress > s.Progress {
		s.Progress = u.Progress
	}
	s.ErrorMessage = u.ErrorMessage
	s.FailedStage = u.FailedStage
	if u.StartedAt != nil {
		s.StartedAt = u.StartedAt
	}
	if u.ProcessedAt != nil {
		s.ProcessedAt = u.ProcessedAt
		if s.StartedAt != nil {
			s.Duration = u.ProcessedAt.Sub(*s.StartedAt)
		}
	}
	s.UpdatedAt = now
}

// StatusView is the polling projection of a submission.
type StatusView struct {
	ID           string `json:"id"`
	Status       Status `json:"status"`
	Stage        Stage  `json:"stage"`
	Progress     int    `json:"progress"`
	ErrorMessage string `json:"error_message,omitempty"`
	FailedStage  Stage  `json:"failed_stage,omitempty"`
}

// View projects s into a StatusView.
func (s Submission) View() StatusView {
	return StatusView{
		ID:           s.ID,
		Status:       s.Status,
		Stage:        s.Stage,
		Progress:     s.Progress,
		ErrorMessage: s.ErrorMessage,
		FailedStage:  s.FailedStage,
	}
}

// SubmissionFilter narrows ListSubmissions.
type SubmissionFilter struct {
	BatchID string
	Status  Status
	Limit   int
	Offset  int
}

// Matches reports whether s passes the filter's predicates (not paging).
func (f SubmissionFilter) Matches(s Submission) bool {
	if f.BatchID != "" && s.BatchID != f.BatchID {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	return true
}
