// Package analyzer turns a repository snapshot and collaborator outputs into
// per-category rubric results. Detectors are pure and deterministic.
package analyzer

import (
	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/internal/domain/rubric"
)

// Result is the sealed union of analyzer outcomes. The variants are
// CategoryResult, DegradedResult and AuthorshipResult.
type Result interface {
	isResult()
}

// CategoryResult is a normal scored outcome for one category.
type CategoryResult struct {
	Category rubric.Category
	Score    int
	Issues   []model.Issue
	Evidence []model.Evidence
}

// DegradedResult stands in for a category whose analyzer could not run.
// It always carries at least one issue explaining why.
type DegradedResult struct {
	Category rubric.Category
	Score    int
	Issues   []model.Issue
	Reason   string
}

// AuthorshipResult is the commit-history heuristic. It never carries a score.
type AuthorshipResult struct {
	Risk            float64
	Factors         []string
	Findings        []string
	Recommendations []string
	CommitCount     int
	Issues          []model.Issue
}

func (CategoryResult) isResult() {}
func (DegradedResult) isResult() {}
func (AuthorshipResult) isResult() {}

func issue(code string, sev model.Severity, cat rubric.Category, msg string) model.Issue {
	return model.Issue{Code: code, Severity: sev, Category: cat, Message: msg}
}
