package analyzer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/internal/domain/rubric"
)

var (
	expectedFolders = []string{"assets", "css", "js", "php"}
	expectedFiles   = []string{
		"index.html", "login.html", "profile.html", "register.html",
		"js/login.js", "js/profile.js", "js/register.js",
		"php/login.php", "php/profile.php", "php/register.php",
	}

	styleBlock  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	scriptBlock = regexp.MustCompile(`(?is)<script([^>]*)>(.*?)</script>`)
	srcAttr     = regexp.MustCompile(`(?i)\bsrc\s*=`)
	phpOpen     = regexp.MustCompile(`<\?php`)
)

// FolderStructure scores the expected project layout: found*10/total.
func FolderStructure(s Snapshot) CategoryResult {
	res := CategoryResult{Category: rubric.FolderStructure}
	found := 0
	var missing []string
	for _, d := range expectedFolders {
		if s.HasDir(d) {
			found++
			res.Evidence = append(res.Evidence, model.Evidence{Signal: "folder", Location: d + "/"})
		} else {
			missing = append(missing, d+"/")
		}
	}
	for _, f := range expectedFiles {
		if s.HasFile(f) {
			found++
			res.Evidence = append(res.Evidence, model.Evidence{Signal: "file", Location: f})
		} else {
			missing = append(missing, f)
		}
	}
	total := len(expectedFolders) + len(expectedFiles)
	res.Score = found * 10 / total
	if res.Score < 7 {
		res.Issues = append(res.Issues, issue("POOR_FOLDER_STRUCTURE", model.SeverityWarning, rubric.FolderStructure,
			fmt.Sprintf("Project layout is missing %d of %d expected entries: %s", len(missing), total, strings.Join(missing, ", "))))
	}
	return res
}

// FileSeparation checks that HTML files do not embed CSS, JS or PHP.
func FileSeparation(s Snapshot) CategoryResult {
	res := CategoryResult{Category: rubric.FileSeparation, Score: 10}
	for _, p := range s.WithExt(".html", ".htm") {
		content := s.Files[p]

		if n := len(styleBlock.FindAllStringIndex(content, -1)); n > 0 {
			res.Evidence = append(res.Evidence, model.Evidence{Signal: fmt.Sprintf("inline_css x%d", n), Location: p})
			res.Score = min(res.Score, 7)
		}

		inline := 0
		for _, m := range scriptBlock.FindAllStringSubmatch(content, -1) {
			if srcAttr.MatchString(m[1]) {
				continue
			}
			if strings.TrimSpace(m[2]) != "" {
				inline++
			}
		}
		if inline > 0 {
			res.Evidence = append(res.Evidence, model.Evidence{Signal: fmt.Sprintf("inline_js x%d", inline), Location: p})
			res.Score = min(res.Score, 7)
		}

		if n := len(phpOpen.FindAllStringIndex(content, -1)); n > 0 {
			res.Evidence = append(res.Evidence, model.Evidence{Signal: fmt.Sprintf("php_in_html x%d", n), Location: p})
			res.Score = min(res.Score, 4)
		}
	}
	if res.Score < 7 {
		res.Issues = append(res.Issues, issue("CODE_MIXING", model.SeverityWarning, rubric.FileSeparation,
			"HTML files mix markup with server-side code"))
	} else if res.Score < 10 {
		res.Issues = append(res.Issues, issue("INLINE_ASSETS", model.SeverityInfo, rubric.FileSeparation,
			"HTML files contain inline CSS or JavaScript"))
	}
	return res
}
