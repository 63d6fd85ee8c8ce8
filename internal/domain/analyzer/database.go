package analyzer

import (
	"regexp"

	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/internal/domain/rubric"
)

type engine struct {
	category rubric.Category
	score    int
	code     string
	message  string
	patterns []namedPattern
}

var (
	engines = []engine{
		{rubric.MySQL, 8, "NO_MYSQL", "MySQL is not used for profile storage", []namedPattern{
			{"mysqli_connect", regexp.MustCompile(`mysqli_connect\s*\(`)},
			{"new mysqli", regexp.MustCompile(`new\s+mysqli\s*\(`)},
			{"PDO MySQL", regexp.MustCompile(`new\s+PDO\s*\([^)]*mysql`)},
		}},
		{rubric.MongoDB, 8, "NO_MONGODB", "MongoDB is not used for registration data", []namedPattern{
			{"MongoClient", regexp.MustCompile(`new\s+MongoClient\s*\(`)},
			{"MongoDB Client", regexp.MustCompile(`new\s+MongoDB\\Client\s*\(`)},
			{"MongoDB Driver", regexp.MustCompile(`MongoDB\\Driver`)},
			{"mongo variable", regexp.MustCompile(`\$mongo\s*=`)},
		}},
		{rubric.Redis, 5, "NO_REDIS", "Redis is not used for session storage", []namedPattern{
			{"Redis class", regexp.MustCompile(`new\s+Redis\s*\(`)},
			{"Predis", regexp.MustCompile(`Predis\\Client`)},
			{"redis connect", regexp.MustCompile(`redis\.connect\s*\(`)},
		}},
	}

	localStoragePatterns = []namedPattern{
		{"setItem", regexp.MustCompile(`localStorage\.setItem\s*\(`)},
		{"getItem", regexp.MustCompile(`localStorage\.getItem\s*\(`)},
		{"removeItem", regexp.MustCompile(`localStorage\.removeItem\s*\(`)},
	}
	phpSession = regexp.MustCompile(`session_start\s*\(`)
)

// Databases detects MySQL, MongoDB and Redis usage in PHP sources.
func Databases(s Snapshot) []CategoryResult {
	content := s.Joined(".php")
	out := make([]CategoryResult, 0, len(engines))
	for _, e := range engines {
		res := CategoryResult{Category: e.category}
		for _, p := range e.patterns {
			if p.re.MatchString(content) {
				res.Evidence = append(res.Evidence, model.Evidence{Signal: p.name})
			}
		}
		if len(res.Evidence) > 0 {
			res.Score = e.score
		} else {
			res.Issues = append(res.Issues, issue(e.code, model.SeverityCritical, e.category, e.message))
		}
		out = append(out, res)
	}
	return out
}

// LocalStorage checks client-side session handling. Server-side PHP sessions
// are flagged because sessions must live in localStorage backed by Redis.
func LocalStorage(s Snapshot) CategoryResult {
	res := CategoryResult{Category: rubric.LocalStorage}
	js := s.Joined(".js")
	for _, p := range localStoragePatterns {
		if p.re.MatchString(js) {
			res.Evidence = append(res.Evidence, model.Evidence{Signal: p.name})
		}
	}
	if len(res.Evidence) > 0 {
		res.Score = rubric.MaxFor(rubric.LocalStorage)
	}
	for _, p := range s.WithExt(".php") {
		if phpSession.MatchString(s.Files[p]) {
			res.Evidence = append(res.Evidence, model.Evidence{Signal: "session_start", Location: p})
			res.Issues = append(res.Issues, issue("PHP_SESSION_USED", model.SeverityCritical, rubric.LocalStorage,
				"PHP sessions are used instead of localStorage with Redis"))
			break
		}
	}
	return res
}
