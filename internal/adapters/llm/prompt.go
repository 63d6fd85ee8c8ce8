package llm

import (
	"fmt"
	"strings"

	"github.com/googly1030/intern-platform/internal/domain/analyzer"
	"github.com/googly1030/intern-platform/internal/domain/rubric"
)

const systemPrompt = "You are an expert code reviewer evaluating an internship candidate's PHP and JavaScript project. " +
	"You score code quality strictly against the rubric you are given and you answer with a single JSON object."

const responseShape = `Respond with exactly this JSON object and nothing else:
{
  "namingConventions": {"score": <int>, "feedback": "<one sentence>"},
  "modularity": {"score": <int>, "feedback": "<one sentence>"},
  "errorHandling": {"score": <int>, "feedback": "<one sentence>"},
  "security": {"score": <int>, "feedback": "<one sentence>"},
  "strengths": ["<short phrase>"],
  "weaknesses": ["<short phrase>"],
  "summary": "<two sentences at most>"
}`

// buildPrompt renders the user turn for one review.
func buildPrompt(req analyzer.ReviewRequest) string {
	var b strings.Builder

	b.WriteString("Score the following categories. Each score is an integer between 0 and the maximum shown.\n")
	for _, c := range rubric.QualityCategories() {
		fmt.Fprintf(&b, "- %s (%s): 0-%d\n", c, rubric.Label(c), rubric.MaxFor(c))
	}

	if rules := strings.TrimSpace(req.Overrides.RulesText); rules != "" {
		fmt.Fprintf(&b, "\nAdditional rules from the reviewer:\n%s\n", rules)
	}
	if structure := strings.TrimSpace(req.Overrides.StructureText); structure != "" {
		fmt.Fprintf(&b, "\nExpected project structure:\n%s\n", structure)
	}

	b.WriteString("\nStatic analysis results:\n")
	for _, f := range req.Findings {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	fmt.Fprintf(&b, "- password hashing detected: %t\n", req.Signals.PasswordHashing)
	fmt.Fprintf(&b, "- input sanitisation detected: %t\n", req.Signals.InputSanitization)

	b.WriteString("\nCode sample:\n")
	if len(req.Sample) == 0 {
		b.WriteString("(no source files were found)\n")
	}
	for _, f := range req.Sample {
		fmt.Fprintf(&b, "### %s\n```\n%s\n", f.Path, f.Content)
		if f.Truncated {
			b.WriteString("... (truncated)\n")
		}
		b.WriteString("```\n")
	}

	b.WriteString("\n")
	b.WriteString(responseShape)
	return b.String()
}
