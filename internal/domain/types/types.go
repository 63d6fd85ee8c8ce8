// Package types contains read-side views shared by the service and the API.
package types

import (
	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/internal/domain/rubric"
)

// Entry represents a leaderboard entry
type Entry struct {
	Rank          int          `json:"rank"`
	SubmissionID  string       `json:"submission_id"`
	CandidateName string       `json:"candidate_name"`
	BatchID       string       `json:"batch_id,omitempty"`
	OverallScore  int          `json:"overall_score"`
	Grade         rubric.Grade `json:"grade"`
}

// Before reports whether e ranks ahead of other: higher score first, then
// lower submission id.
func (e Entry) Before(other Entry) bool {
	if e.OverallScore != other.OverallScore {
		return e.OverallScore > other.OverallScore
	}
	return e.SubmissionID < other.SubmissionID
}

// BatchResults is a batch together with its ranked members.
type BatchResults struct {
	Batch       model.Batch        `json:"batch"`
	Submissions []model.Submission `json:"submissions"`
	Stats       model.BatchStats   `json:"stats"`
}

// Stats summarises the whole system.
type Stats struct {
	Submissions        int                  `json:"submissions"`
	StatusDistribution map[model.Status]int `json:"status_distribution"`
	GradeDistribution  map[rubric.Grade]int `json:"grade_distribution"`
	AverageScore       *float64             `json:"average_score,omitempty"`
	Batches            int                  `json:"batches"`
	QueueDepth         int                  `json:"queue_depth"`
	Subscribers        int                  `json:"subscribers"`
}
