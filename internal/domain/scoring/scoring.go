// Package scoring combines analyzer results into a ScoreReport.
package scoring

import (
	"fmt"
	"sort"
	"time"

	"github.com/googly1030/intern-platform/internal/domain/analyzer"
	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/internal/domain/rubric"
	"github.com/googly1030/intern-platform/pkg/errors"
)

const (
	defaultHighlights = 5
	strengthRatio     = 0.8
	weaknessRatio     = 0.5
)

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithHighlights sets how many strengths and weaknesses are reported.
func WithHighlights(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.highlights = n
		}
	}
}

// WithClock overrides the report timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// Aggregator is a pure function of its inputs apart from GeneratedAt.
type Aggregator struct {
	highlights int
	now        func() time.Time
}

// NewAggregator creates an Aggregator with configuration options.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{highlights: defaultHighlights, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type scored struct {
	category rubric.Category
	score    int
	max      int
}

func (s scored) ratio() float64 { return float64(s.score) / float64(s.max) }

// Aggregate builds the report for one submission. Duplicate or unknown
// categories are invariant violations and yield a fatal error.
func (a *Aggregator) Aggregate(submissionID string, results []analyzer.Result) (model.ScoreReport, error) {
	if err := rubric.Validate(); err != nil {
		return model.ScoreReport{}, errors.Fatal(err, errors.AggregationInvariant)
	}

	report := model.ScoreReport{
		SubmissionID:  submissionID,
		RubricVersion: rubric.Version,
		Scores:        make(map[rubric.Category]int, len(rubric.Categories())),
		Details:       make(map[rubric.Category]model.CategoryDetail, len(rubric.Categories())),
		GeneratedAt:   a.now().UTC(),
	}

	var issues []model.Issue
	seenAuthorship := false
	for _, r := range results {
		var (
			cat    rubric.Category
			detail model.CategoryDetail
		)
		switch v := r.(type) {
		case analyzer.CategoryResult:
			cat = v.Category
			detail = model.CategoryDetail{Score: v.Score, Issues: v.Issues, Evidence: v.Evidence}
		case analyzer.DegradedResult:
			cat = v.Category
			detail = model.CategoryDetail{Score: v.Score, Degraded: true, Issues: v.Issues}
			if v.Reason != "" {
				detail.Evidence = []model.Evidence{{Signal: "degraded: " + v.Reason}}
			}
		case analyzer.AuthorshipResult:
			if seenAuthorship {
				return model.ScoreReport{}, errors.Newf(errors.AggregationInvariant, "duplicate authorship result")
			}
			seenAuthorship = true
			report.AIRisk = v.Risk
			report.Authorship = model.Authorship{
				Risk:            v.Risk,
				Factors:         v.Factors,
				Findings:        v.Findings,
				Recommendations: v.Recommendations,
				CommitCount:     v.CommitCount,
			}
			issues = append(issues, v.Issues...)
			continue
		default:
			return model.ScoreReport{}, errors.Newf(errors.AggregationInvariant, "unsupported result type %T", r)
		}

		if !rubric.Known(cat) {
			return model.ScoreReport{}, errors.Newf(errors.AggregationInvariant, "result for unknown category %q", cat)
		}
		if _, dup := report.Details[cat]; dup {
			return model.ScoreReport{}, errors.Newf(errors.AggregationInvariant, "duplicate result for category %q", cat)
		}
		detail.Max = rubric.MaxFor(cat)
		detail.Score = clamp(detail.Score, 0, detail.Max)
		report.Details[cat] = detail
		issues = append(issues, detail.Issues...)
	}

	all := make([]scored, 0, len(rubric.Categories()))
	for _, c := range rubric.Categories() {
		d, ok := report.Details[c]
		if !ok {
			d = model.CategoryDetail{Max: rubric.MaxFor(c)}
		}
		report.Scores[c] = d.Score
		report.OverallScore += d.Score
		all = append(all, scored{category: c, score: d.Score, max: d.Max})
	}
	if report.OverallScore > rubric.TotalPoints {
		return model.ScoreReport{}, errors.Newf(errors.AggregationInvariant,
			"overall score %d exceeds %d", report.OverallScore, rubric.TotalPoints)
	}

	report.Grade = rubric.GradeFor(report.OverallScore)
	report.Recommendation = rubric.RecommendationFor(report.Grade)
	report.Flags = flagsFrom(issues)
	report.Strengths = a.strengths(all)
	report.Weaknesses = a.weaknesses(all)
	return report, nil
}

// flagsFrom dedupes issues by code, first occurrence wins, and orders them
// by severity then category declaration order.
func flagsFrom(issues []model.Issue) []model.Flag {
	seen := make(map[string]struct{}, len(issues))
	flags := make([]model.Flag, 0, len(issues))
	for _, is := range issues {
		if _, ok := seen[is.Code]; ok {
			continue
		}
		seen[is.Code] = struct{}{}
		flags = append(flags, model.Flag(is))
	}
	sort.SliceStable(flags, func(i, j int) bool {
		if ri, rj := flags[i].Severity.Rank(), flags[j].Severity.Rank(); ri != rj {
			return ri < rj
		}
		return categoryRank(flags[i].Category) < categoryRank(flags[j].Category)
	})
	return flags
}

// categoryRank puts uncategorised flags after every rubric category.
func categoryRank(c rubric.Category) int {
	if o := rubric.Order(c); o >= 0 {
		return o
	}
	return len(rubric.Categories())
}

func (a *Aggregator) strengths(all []scored) []string {
	var picked []scored
	for _, s := range all {
		if s.ratio() >= strengthRatio {
			picked = append(picked, s)
		}
	}
	sort.SliceStable(picked, func(i, j int) bool { return picked[i].ratio() > picked[j].ratio() })
	return a.describe(picked, "Strong")
}

func (a *Aggregator) weaknesses(all []scored) []string {
	var picked []scored
	for _, s := range all {
		if s.ratio() < weaknessRatio {
			picked = append(picked, s)
		}
	}
	sort.SliceStable(picked, func(i, j int) bool { return picked[i].ratio() < picked[j].ratio() })
	return a.describe(picked, "Weak")
}

func (a *Aggregator) describe(picked []scored, prefix string) []string {
	if len(picked) > a.highlights {
		picked = picked[:a.highlights]
	}
	out := make([]string, 0, len(picked))
	for _, s := range picked {
		out = append(out, fmt.Sprintf("%s %s (%d/%d points)", prefix, rubric.Label(s.category), s.score, s.max))
	}
	return out
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
