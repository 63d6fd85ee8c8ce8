package analyzer

import (
	"fmt"

	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/internal/domain/rubric"
)

// ReviewRequest is everything the code reviewer sees.
type ReviewRequest struct {
	SubmissionID string
	Overrides    rubric.Overrides
	Signals      StaticSignals
	// Findings summarises static results, e.g. "fileSeparation: 7/10".
	Findings []string
	Sample   []SampleFile
}

// CategoryReview is the reviewer's verdict for one quality category.
type CategoryReview struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// ReviewResult is the reviewer's structured output.
type ReviewResult struct {
	Categories map[rubric.Category]CategoryReview
	Strengths  []string
	Weaknesses []string
	Summary    string
}

// Notes converts the free-form part of the review for the report.
func (r ReviewResult) Notes() *model.ReviewNotes {
	return &model.ReviewNotes{Summary: r.Summary, Strengths: r.Strengths, Weaknesses: r.Weaknesses}
}

// QualityResults maps a review into one result per quality category. A
// category the reviewer omitted becomes a DegradedResult at degradedScore.
func QualityResults(r ReviewResult, degradedScore int) []Result {
	out := make([]Result, 0, len(rubric.QualityCategories()))
	for _, c := range rubric.QualityCategories() {
		cr, ok := r.Categories[c]
		if !ok {
			out = append(out, degraded(c, degradedScore, "category missing from review"))
			continue
		}
		res := CategoryResult{Category: c, Score: cr.Score}
		if cr.Feedback != "" {
			res.Evidence = []model.Evidence{{Signal: cr.Feedback, Location: "review"}}
		}
		if c == rubric.ErrorHandling && cr.Score <= 1 {
			res.Issues = append(res.Issues, issue("NO_ERROR_HANDLING", model.SeverityWarning, c,
				"Little or no error handling was found"))
		}
		out = append(out, res)
	}
	return out
}

// DegradedQuality returns a degraded result for every quality category.
func DegradedQuality(degradedScore int, reason string) []Result {
	out := make([]Result, 0, len(rubric.QualityCategories()))
	for _, c := range rubric.QualityCategories() {
		out = append(out, degraded(c, degradedScore, reason))
	}
	return out
}

func degraded(c rubric.Category, score int, reason string) DegradedResult {
	return DegradedResult{
		Category: c,
		Score:    score,
		Reason:   reason,
		Issues: []model.Issue{issue("AI_REVIEW_UNAVAILABLE", model.SeverityWarning, c,
			fmt.Sprintf("Code review unavailable (%s); %s scored with the default of %d", reason, rubric.Label(c), score))},
	}
}

// ReviewFindings summarises static results for the reviewer prompt.
func ReviewFindings(results []Result) []string {
	var out []string
	for _, r := range results {
		if cr, ok := r.(CategoryResult); ok {
			out = append(out, fmt.Sprintf("%s: %d/%d", cr.Category, cr.Score, rubric.MaxFor(cr.Category)))
		}
	}
	return out
}
