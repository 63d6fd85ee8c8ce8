package retriever

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/googly1030/intern-platform/pkg/errors"
)

var (
	sshPattern  = regexp.MustCompile(`^git@github\.com:([\w.-]+)/([\w.-]+?)(?:\.git)?/?$`)
	namePattern = regexp.MustCompile(`^[\w.-]+$`)
)

// Normalize validates a GitHub repository reference and returns its https
// clone URL. Accepted forms are https://github.com/owner/repo (optionally
// ending in .git) and git@github.com:owner/repo.git.
func Normalize(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if m := sshPattern.FindStringSubmatch(ref); m != nil {
		return cloneURL(m[1], m[2]), nil
	}

	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "https" && u.Scheme != "http" {
		return "", invalid(ref)
	}
	if !strings.EqualFold(u.Host, "github.com") && !strings.EqualFold(u.Host, "www.github.com") {
		return "", invalid(ref)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 {
		return "", invalid(ref)
	}
	owner, repo := parts[0], strings.TrimSuffix(parts[1], ".git")
	if !namePattern.MatchString(owner) || !namePattern.MatchString(repo) || repo == "" {
		return "", invalid(ref)
	}
	return cloneURL(owner, repo), nil
}

func cloneURL(owner, repo string) string {
	return fmt.Sprintf("https://github.com/%s/%s.git", owner, repo)
}

func invalid(ref string) error {
	return errors.Newf(errors.InvalidRepoReference, "invalid GitHub repository URL: %q", ref)
}
