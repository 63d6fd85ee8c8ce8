package analyzer

import (
	"regexp"

	"github.com/googly1030/intern-platform/internal/domain/model"
)

var (
	hashingPattern      = regexp.MustCompile(`password_hash\s*\(|password_verify\s*\(|bcrypt|PASSWORD_DEFAULT`)
	sanitizationPattern = regexp.MustCompile(`htmlspecialchars|strip_tags|mysqli_real_escape|filter_input`)
)

// StaticSignals are security hints forwarded to code review. They are not scored.
type StaticSignals struct {
	PasswordHashing   bool
	InputSanitization bool
	Evidence          []model.Evidence
}

// Security scans PHP sources for hashing and sanitisation calls.
func Security(s Snapshot) StaticSignals {
	var sig StaticSignals
	for _, p := range s.WithExt(".php") {
		content := s.Files[p]
		if m := hashingPattern.FindString(content); m != "" {
			sig.PasswordHashing = true
			sig.Evidence = append(sig.Evidence, model.Evidence{Signal: m, Location: p})
		}
		if m := sanitizationPattern.FindString(content); m != "" {
			sig.InputSanitization = true
			sig.Evidence = append(sig.Evidence, model.Evidence{Signal: m, Location: p})
		}
	}
	return sig
}
