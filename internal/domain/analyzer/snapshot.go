package analyzer

import (
	"path"
	"sort"
	"strings"
	"time"
)

// Commit is one entry of the repository history.
type Commit struct {
	Hash    string
	Author  string
	Message string
	When    time.Time
}

// Snapshot is the read-only view of a cloned repository that detectors consume.
// Paths are slash separated and relative to the repository root.
type Snapshot struct {
	Files   map[string]string
	Paths   []string
	Dirs    []string
	Commits []Commit

	dirSet map[string]struct{}
}

// NewSnapshot indexes files and dirs. Paths are sorted for deterministic scans.
func NewSnapshot(files map[string]string, dirs []string, commits []Commit) Snapshot {
	s := Snapshot{
		Files:   files,
		Commits: commits,
		dirSet:  make(map[string]struct{}, len(dirs)),
	}
	if s.Files == nil {
		s.Files = map[string]string{}
	}
	for p := range s.Files {
		s.Paths = append(s.Paths, p)
		// parent dirs are implied by file paths
		for d := path.Dir(p); d != "." && d != "/"; d = path.Dir(d) {
			s.dirSet[d] = struct{}{}
		}
	}
	for _, d := range dirs {
		s.dirSet[strings.Trim(d, "/")] = struct{}{}
	}
	for d := range s.dirSet {
		s.Dirs = append(s.Dirs, d)
	}
	sort.Strings(s.Paths)
	sort.Strings(s.Dirs)
	return s
}

// HasDir reports whether dir exists.
func (s Snapshot) HasDir(dir string) bool {
	_, ok := s.dirSet[dir]
	return ok
}

// HasFile reports whether p exists.
func (s Snapshot) HasFile(p string) bool {
	_, ok := s.Files[p]
	return ok
}

// WithExt returns sorted paths ending in any of exts.
func (s Snapshot) WithExt(exts ...string) []string {
	var out []string
	for _, p := range s.Paths {
		lower := strings.ToLower(p)
		for _, e := range exts {
			if strings.HasSuffix(lower, e) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// Joined concatenates the contents of files with the given extensions.
func (s Snapshot) Joined(exts ...string) string {
	var b strings.Builder
	for _, p := range s.WithExt(exts...) {
		b.WriteString(s.Files[p])
		b.WriteByte('\n')
	}
	return b.String()
}

// HasReadme reports whether a README exists at the repository root.
func (s Snapshot) HasReadme() bool {
	for _, p := range s.Paths {
		if !strings.Contains(p, "/") && strings.HasPrefix(strings.ToLower(p), "readme") {
			return true
		}
	}
	return false
}
