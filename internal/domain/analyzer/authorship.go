package analyzer

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/googly1030/intern-platform/internal/domain/model"
)

// AuthorshipWeights tunes the commit-history heuristic. Factors are summed
// and the total is capped at 1.
type AuthorshipWeights struct {
	PatternRatio      float64
	ShortRatio        float64
	HighFrequency     float64 // more than 5 commits per day
	ModerateFrequency float64 // more than 3 commits per day
	BulkSessions      float64
	CompressedSpan    float64 // under a day with more than 5 commits
	ShortSpan         float64 // under three days with more than 10 commits
	Conventional      float64
}

// DefaultAuthorshipWeights returns the stock heuristic weights.
func DefaultAuthorshipWeights() AuthorshipWeights {
	return AuthorshipWeights{
		PatternRatio:      0.25,
		ShortRatio:        0.15,
		HighFrequency:     0.20,
		ModerateFrequency: 0.10,
		BulkSessions:      0.15,
		CompressedSpan:    0.25,
		ShortSpan:         0.15,
		Conventional:      0.10,
	}
}

const (
	shortMessageLen   = 15
	genericMessageLen = 30
	bulkWindow        = time.Hour
	highRisk          = 0.7
	moderateRisk      = 0.4
	flagRisk          = 0.6
)

var (
	aiCommitPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^Update\s+\w+\.py$`),
		regexp.MustCompile(`(?i)^Add\s+\w+`),
		regexp.MustCompile(`(?i)^Fix\s+\w+`),
		regexp.MustCompile(`(?i)^Implement\s+\w+`),
		regexp.MustCompile(`(?i)^Refactor\s+\w+`),
		regexp.MustCompile(`(?i)^Clean up`),
		regexp.MustCompile(`(?i)^Initial commit$`),
		regexp.MustCompile(`(?i)^Update README\.md$`),
		regexp.MustCompile(`(?i)^WIP`),
		regexp.MustCompile(`(?i)^\w+: \w+`),
	}
	conventionalCommit = regexp.MustCompile(`^(feat|fix|docs|style|refactor|test|chore):`)
	genericWords       = []string{"update", "fix", "add", "change", "modify", "clean"}
)

type commitStats struct {
	total         int
	patternHits   int
	short         int
	generic       int
	conventional  int
	avgMsgLen     float64
	spanDays      float64 // raw span between first and last commit
	commitsPerDay float64
	bulkSessions  int
}

func summarizeCommits(commits []Commit) commitStats {
	st := commitStats{total: len(commits)}
	if st.total == 0 {
		return st
	}

	lengths := 0
	dates := make([]time.Time, 0, len(commits))
	for _, c := range commits {
		first := strings.SplitN(c.Message, "\n", 2)[0]
		lengths += len(first)
		for _, re := range aiCommitPatterns {
			if re.MatchString(first) {
				st.patternHits++
				break
			}
		}
		if len(first) < shortMessageLen {
			st.short++
		}
		lower := strings.ToLower(first)
		if len(first) < genericMessageLen {
			for _, w := range genericWords {
				if strings.Contains(lower, w) {
					st.generic++
					break
				}
			}
		}
		if conventionalCommit.MatchString(lower) {
			st.conventional++
		}
		if !c.When.IsZero() {
			dates = append(dates, c.When)
		}
	}
	st.avgMsgLen = float64(lengths) / float64(st.total)

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	if len(dates) >= 2 {
		st.spanDays = dates[len(dates)-1].Sub(dates[0]).Hours() / 24
		st.commitsPerDay = float64(st.total) / math.Max(1, st.spanDays)
	}
	for i := 0; i+2 < len(dates); i++ {
		if dates[i+2].Sub(dates[i]) < bulkWindow {
			st.bulkSessions++
		}
	}
	return st
}

// Authorship estimates the likelihood that a repository was machine generated
// from its commit history. The estimate is informational and never scored.
func Authorship(commits []Commit, w AuthorshipWeights) AuthorshipResult {
	st := summarizeCommits(commits)
	res := AuthorshipResult{CommitCount: st.total}
	if st.total == 0 {
		res.Findings = []string{"No commits found in repository"}
		return res
	}

	n := float64(st.total)
	risk := 0.0
	add := func(v float64, factor string) {
		if v > 0 {
			risk += v
			res.Factors = append(res.Factors, factor)
		}
	}

	add(float64(st.patternHits)/n*w.PatternRatio,
		fmt.Sprintf("%d of %d commit messages match common generated patterns", st.patternHits, st.total))
	add(float64(st.short)/n*w.ShortRatio,
		fmt.Sprintf("%d of %d commit messages are shorter than %d characters", st.short, st.total, shortMessageLen))

	switch {
	case st.commitsPerDay > 5:
		add(w.HighFrequency, fmt.Sprintf("%.1f commits per day", st.commitsPerDay))
	case st.commitsPerDay > 3:
		add(w.ModerateFrequency, fmt.Sprintf("%.1f commits per day", st.commitsPerDay))
	}
	if st.bulkSessions > 2 {
		add(w.BulkSessions, fmt.Sprintf("%d bulk commit sessions within an hour", st.bulkSessions))
	}
	switch {
	case st.spanDays < 1 && st.total > 5:
		add(w.CompressedSpan, fmt.Sprintf("%d commits within a single day", st.total))
	case st.spanDays < 3 && st.total > 10:
		add(w.ShortSpan, fmt.Sprintf("%d commits within %.1f days", st.total, st.spanDays))
	}
	if st.conventional == st.total && st.total > 5 {
		add(w.Conventional, "every commit uses the conventional format")
	}

	res.Risk = math.Min(1, risk)
	res.Findings = authorshipFindings(st, res.Risk)
	res.Recommendations = authorshipRecommendations(st, res.Risk)
	if res.Risk > flagRisk {
		res.Issues = append(res.Issues, model.Issue{
			Code:     "AI_GENERATED_HIGH",
			Severity: model.SeverityWarning,
			Message:  fmt.Sprintf("Commit history suggests %d%% likelihood of AI-assisted generation", int(res.Risk*100)),
		})
	}
	return res
}

func authorshipFindings(st commitStats, risk float64) []string {
	var out []string
	pct := int(risk * 100)
	switch {
	case risk > highRisk:
		out = append(out, fmt.Sprintf("High AI generation risk: commit patterns suggest %d%% likelihood of AI-assisted code", pct))
	case risk > moderateRisk:
		out = append(out, fmt.Sprintf("Moderate AI generation risk: some patterns suggest possible AI assistance (%d%%)", pct))
	default:
		out = append(out, fmt.Sprintf("Low AI generation risk: commit patterns appear natural (%d%%)", pct))
	}
	if float64(st.patternHits) > float64(st.total)*0.5 {
		out = append(out, fmt.Sprintf("Generic commit messages: %d of %d commits", st.patternHits, st.total))
	}
	if float64(st.generic) > float64(st.total)*0.5 {
		out = append(out, fmt.Sprintf("Short generic commit messages: %d of %d commits", st.generic, st.total))
	}
	if st.commitsPerDay > 5 {
		out = append(out, fmt.Sprintf("Unusual commit frequency: %.1f commits per day", st.commitsPerDay))
	}
	if st.spanDays < 1 {
		out = append(out, "Single-day project: all commits made within 24 hours")
	}
	if st.bulkSessions > 2 {
		out = append(out, fmt.Sprintf("Bulk commit sessions: %d sessions with rapid commits", st.bulkSessions))
	}
	if st.avgMsgLen > 40 {
		out = append(out, fmt.Sprintf("Detailed commit messages: average length %.0f characters", st.avgMsgLen))
	}
	if st.spanDays > 7 {
		out = append(out, fmt.Sprintf("Extended development timeline: %.0f days", st.spanDays))
	}
	return out
}

func authorshipRecommendations(st commitStats, risk float64) []string {
	var out []string
	if risk > 0.5 {
		out = append(out, "Can you walk me through your development process for this project?")
	}
	if float64(st.patternHits) > float64(st.total)*0.5 {
		out = append(out, "Why did you choose this architecture? What alternatives did you consider?")
	}
	if st.spanDays < 1 {
		out = append(out, "How long did you actually spend on this project? Walk me through your process.")
	}
	if st.commitsPerDay > 5 {
		out = append(out, "I notice many commits in a short time. Can you explain your workflow?")
	}
	if risk < 0.3 {
		out = append(out, "Your commit history shows good practices. Tell me about the biggest challenge you faced.")
	}
	return out
}
