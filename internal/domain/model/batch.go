package model

import (
	"time"

	"github.com/googly1030/intern-platform/internal/domain/rubric"
)

// BatchStatus is the derived state of a batch.
type BatchStatus string

// Batch statuses.
const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
)

// Batch groups submissions processed under shared overrides.
type Batch struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Description  string           `json:"description,omitempty"`
	Overrides    rubric.Overrides `json:"overrides"`
	Status       BatchStatus      `json:"status"`
	Total        int              `json:"total"`
	Completed    int              `json:"completed"`
	Failed       int              `json:"failed"`
	Pending      int              `json:"pending"`
	AverageScore *float64         `json:"average_score,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

// BatchStats is the full aggregate derived from a batch's members.
type BatchStats struct {
	Status             BatchStatus          `json:"status"`
	Total              int                  `json:"total"`
	Completed          int                  `json:"completed"`
	Failed             int                  `json:"failed"`
	Pending            int                  `json:"pending"`
	ProgressPercent    int                  `json:"progress_percent"`
	AverageScore       *float64             `json:"average_score,omitempty"`
	GradeDistribution  map[rubric.Grade]int `json:"grade_distribution"`
	StatusDistribution map[Status]int       `json:"status_distribution"`
}
