package analyzer

import (
	"fmt"
	"regexp"

	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/internal/domain/rubric"
)

type namedPattern struct {
	name string
	re   *regexp.Regexp
}

var (
	ajaxPatterns = []namedPattern{
		{"$.ajax", regexp.MustCompile(`\$\s*\.\s*ajax\s*\(`)},
		{"$.post", regexp.MustCompile(`\$\s*\.\s*post\s*\(`)},
		{"$.get", regexp.MustCompile(`\$\s*\.\s*get\s*\(`)},
		{"$(...).load", regexp.MustCompile(`\$\s*\(\s*[^)]+\s*\)\s*\.\s*load\s*\(`)},
	}
	formPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<form[^>]*action\s*=\s*["'][^"']+["'][^>]*>`),
		regexp.MustCompile(`(?i)<form[^>]*method\s*=\s*["'](?:post|get)["'][^>]*>`),
	}

	bootstrapLinks = []*regexp.Regexp{
		regexp.MustCompile(`(?i)bootstrap\.min\.css`),
		regexp.MustCompile(`(?i)bootstrap\.css`),
		regexp.MustCompile(`(?i)cdn.*bootstrap`),
	}
	bootstrapClasses = func() []namedPattern {
		classes := []string{"container", "container-fluid", "row", "col-", "form-group", "form-control", "btn", "btn-primary", "navbar"}
		out := make([]namedPattern, len(classes))
		for i, c := range classes {
			out[i] = namedPattern{c, regexp.MustCompile(`class\s*=\s*["'][^"']*` + regexp.QuoteMeta(c) + `[^"']*["']`)}
		}
		return out
	}()

	preparedPatterns = []namedPattern{
		{"->prepare", regexp.MustCompile(`->prepare\s*\(`)},
		{"->bind_param", regexp.MustCompile(`->bind_param\s*\(`)},
		{"->bindParam", regexp.MustCompile(`->bindParam\s*\(`)},
		{"mysqli_stmt_prepare", regexp.MustCompile(`mysqli_stmt_prepare\s*\(`)},
		{"mysqli_prepare", regexp.MustCompile(`mysqli_prepare\s*\(`)},
		{"mysqli_stmt_bind_param", regexp.MustCompile(`mysqli_stmt_bind_param\s*\(`)},
		{"mysqli_bind_param", regexp.MustCompile(`mysqli_bind_param\s*\(`)},
		{"named parameter", regexp.MustCompile(`:\w+\s*\)`)},
	}
	rawSQLPatterns = []namedPattern{
		{"superglobal in query", regexp.MustCompile(`(?i)\$_(GET|POST|REQUEST)\s*\[['"]?\w+['"]?\s*\]`)},
		{"concatenated query", regexp.MustCompile(`(?i)\$[a-zA-Z_]\w*\s*\.\s*["'].*?(?:SELECT|INSERT|UPDATE|DELETE)`)},
		{"interpolated query", regexp.MustCompile(`(?i)"[^"]*?(?:SELECT|INSERT|UPDATE|DELETE)[^"]*?\$[a-zA-Z_]\w*`)},
	}
)

func countAll(patterns []namedPattern, content string) (int, []model.Evidence) {
	total := 0
	var ev []model.Evidence
	for _, p := range patterns {
		if n := len(p.re.FindAllStringIndex(content, -1)); n > 0 {
			total += n
			ev = append(ev, model.Evidence{Signal: fmt.Sprintf("%s x%d", p.name, n)})
		}
	}
	return total, ev
}

// JQueryAjax rewards AJAX calls and penalises plain form submission.
func JQueryAjax(s Snapshot) CategoryResult {
	content := s.Joined(".js", ".html", ".htm")
	res := CategoryResult{Category: rubric.JQueryAjax, Score: 10}

	ajax, ev := countAll(ajaxPatterns, content)
	res.Evidence = ev
	forms := 0
	for _, re := range formPatterns {
		forms += len(re.FindAllStringIndex(content, -1))
	}
	if forms > 0 {
		res.Evidence = append(res.Evidence, model.Evidence{Signal: fmt.Sprintf("form submission x%d", forms)})
	}

	switch {
	case forms > 0 && ajax == 0:
		res.Score = 0
		res.Issues = append(res.Issues, issue("FORM_SUBMISSION_USED", model.SeverityCritical, rubric.JQueryAjax,
			"Forms submit directly to the server instead of using jQuery AJAX"))
	case forms > 0:
		res.Score = 4
		res.Issues = append(res.Issues, issue("MIXED_AJAX_FORM", model.SeverityWarning, rubric.JQueryAjax,
			"Both AJAX calls and direct form submissions are used"))
	case ajax == 0:
		res.Score = 5
		res.Issues = append(res.Issues, issue("NO_AJAX_DETECTED", model.SeverityWarning, rubric.JQueryAjax,
			"No jQuery AJAX calls were found"))
	}
	return res
}

// Bootstrap checks for a linked stylesheet and Bootstrap classes in markup.
func Bootstrap(s Snapshot) CategoryResult {
	content := s.Joined(".html", ".htm")
	res := CategoryResult{Category: rubric.Bootstrap}

	linked := false
	for _, re := range bootstrapLinks {
		if re.MatchString(content) {
			linked = true
			res.Evidence = append(res.Evidence, model.Evidence{Signal: "bootstrap stylesheet"})
			break
		}
	}
	classes := 0
	for _, c := range bootstrapClasses {
		if c.re.MatchString(content) {
			classes++
			res.Evidence = append(res.Evidence, model.Evidence{Signal: "class " + c.name})
		}
	}

	switch {
	case linked && classes >= 3:
		res.Score = 10
	case linked:
		res.Score = 7
	case classes > 0:
		res.Score = 4
	default:
		res.Score = 0
		res.Issues = append(res.Issues, issue("NO_BOOTSTRAP", model.SeverityCritical, rubric.Bootstrap,
			"Bootstrap is not used for styling"))
	}
	return res
}

// PreparedStatements checks PHP sources for parameterised queries.
func PreparedStatements(s Snapshot) CategoryResult {
	content := s.Joined(".php")
	res := CategoryResult{Category: rubric.PreparedStatements, Score: 10}

	prepared, pev := countAll(preparedPatterns, content)
	raw, rev := countAll(rawSQLPatterns, content)
	res.Evidence = append(pev, rev...)

	switch {
	case raw > 0 && prepared == 0:
		res.Score = 0
		res.Issues = append(res.Issues, issue("SQL_INJECTION_RISK", model.SeverityCritical, rubric.PreparedStatements,
			"SQL queries interpolate request data without prepared statements"))
	case raw > 0:
		res.Score = 5
		res.Issues = append(res.Issues, issue("MIXED_SQL_PREPARED", model.SeverityWarning, rubric.PreparedStatements,
			"Prepared statements are used alongside raw interpolated SQL"))
	case prepared == 0:
		res.Score = 5
	}
	return res
}
