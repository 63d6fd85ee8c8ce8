package model

import (
	"time"

	"github.com/googly1030/intern-platform/internal/domain/rubric"
)

// Severity ranks issues and flags.
type Severity string

// Severities from most to least severe.
const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Rank orders severities; lower is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// Issue is a finding produced by an analyzer.
type Issue struct {
	Code     string          `json:"code"`
	Severity Severity        `json:"severity"`
	Category rubric.Category `json:"category,omitempty"`
	Message  string          `json:"message"`
}

// Evidence records where a signal was observed.
type Evidence struct {
	Signal   string `json:"signal"`
	Location string `json:"location,omitempty"`
}

// Flag is a deduplicated issue surfaced on the report.
type Flag struct {
	Code     string          `json:"code"`
	Severity Severity        `json:"severity"`
	Category rubric.Category `json:"category,omitempty"`
	Message  string          `json:"message"`
}

// CategoryDetail explains one category's score.
type CategoryDetail struct {
	Score    int        `json:"score"`
	Max      int        `json:"max"`
	Degraded bool       `json:"degraded,omitempty"`
	Issues   []Issue    `json:"issues,omitempty"`
	Evidence []Evidence `json:"evidence,omitempty"`
}

// Authorship is the commit-history heuristic outcome. It is informational only.
type Authorship struct {
	Risk            float64  `json:"risk"`
	Factors         []string `json:"factors,omitempty"`
	Findings        []string `json:"findings,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
	CommitCount     int      `json:"commit_count"`
}

// Screenshot is a captured page of the hosted deployment.
type Screenshot struct {
	Page string `json:"page"`
	URL  string `json:"url"`
}

// ReviewNotes carries free-form commentary from the code review.
type ReviewNotes struct {
	Summary    string   `json:"summary,omitempty"`
	Strengths  []string `json:"strengths,omitempty"`
	Weaknesses []string `json:"weaknesses,omitempty"`
}

// ScoreReport is the immutable outcome of a completed run.
type ScoreReport struct {
	SubmissionID   string                             `json:"submission_id"`
	RubricVersion  string                             `json:"rubric_version"`
	Scores         map[rubric.Category]int            `json:"scores"`
	OverallScore   int                                `json:"overall_score"`
	Grade          rubric.Grade                       `json:"grade"`
	Recommendation string                             `json:"recommendation"`
	Flags          []Flag                             `json:"flags"`
	Strengths      []string                           `json:"strengths"`
	Weaknesses     []string                           `json:"weaknesses"`
	AIRisk         float64                            `json:"ai_risk"`
	Authorship     Authorship                         `json:"authorship"`
	Details        map[rubric.Category]CategoryDetail `json:"details"`
	Screenshots    []Screenshot                       `json:"screenshots,omitempty"`
	Review         *ReviewNotes                       `json:"review,omitempty"`
	GeneratedAt    time.Time                          `json:"generated_at"`
}

// CriticalFlags returns the flags with critical severity.
func (r ScoreReport) CriticalFlags() []Flag {
	var out []Flag
	for _, f := range r.Flags {
		if f.Severity == SeverityCritical {
			out = append(out, f)
		}
	}
	return out
}
