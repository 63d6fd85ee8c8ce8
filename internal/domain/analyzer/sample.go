package analyzer

const (
	maxSampleFiles = 20
	maxSampleChars = 3000
)

// SampleFile is one source file excerpt sent for code review.
type SampleFile struct {
	Path      string
	Content   string
	Truncated bool
}

// CodeSample selects up to 20 source files in path order, each truncated to
// 3000 characters.
func CodeSample(s Snapshot) []SampleFile {
	var out []SampleFile
	for _, p := range s.WithExt(".php", ".js", ".html", ".css") {
		content := s.Files[p]
		if content == "" {
			continue
		}
		f := SampleFile{Path: p, Content: content}
		if r := []rune(content); len(r) > maxSampleChars {
			f.Content = string(r[:maxSampleChars])
			f.Truncated = true
		}
		out = append(out, f)
		if len(out) == maxSampleFiles {
			break
		}
	}
	return out
}
