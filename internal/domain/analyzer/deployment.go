package analyzer

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/internal/domain/rubric"
)

// Video platforms recognised for demo links.
const (
	PlatformYouTube      = "YouTube"
	PlatformGoogleDrive  = "Google Drive"
	PlatformVimeo        = "Vimeo"
	PlatformLoom         = "Loom"
	PlatformGooglePhotos = "Google Photos"
	PlatformUnknown      = "Unknown"
)

var videoPlatforms = []struct {
	name     string
	patterns []*regexp.Regexp
}{
	{PlatformYouTube, []*regexp.Regexp{regexp.MustCompile(`(?i)youtube\.com`), regexp.MustCompile(`(?i)youtu\.be`)}},
	{PlatformGoogleDrive, []*regexp.Regexp{regexp.MustCompile(`(?i)drive\.google\.com`)}},
	{PlatformVimeo, []*regexp.Regexp{regexp.MustCompile(`(?i)vimeo\.com`)}},
	{PlatformLoom, []*regexp.Regexp{regexp.MustCompile(`(?i)loom\.com`)}},
	{PlatformGooglePhotos, []*regexp.Regexp{regexp.MustCompile(`(?i)photos\.google\.com`), regexp.MustCompile(`(?i)photos\.app\.goo\.gl`)}},
}

// VideoPlatform names the hosting platform of a demo link.
func VideoPlatform(raw string) string {
	for _, p := range videoPlatforms {
		for _, re := range p.patterns {
			if re.MatchString(raw) {
				return p.name
			}
		}
	}
	return PlatformUnknown
}

// WellFormedURL reports whether raw has a scheme and a host.
func WellFormedURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// DeploymentFacts are the observations gathered by the deployment stage.
type DeploymentFacts struct {
	HostedURL  string
	Reachable  bool
	ReachError string

	CaptureAttempted bool
	CaptureError     string
	Screenshots      []model.Screenshot

	VideoURL      string
	VideoValid    bool
	VideoPlatform string

	HasReadme bool
}

// Deployment scores availability of the hosted app and the bonus extras.
func Deployment(f DeploymentFacts) []Result {
	dep := CategoryResult{Category: rubric.Deployment}
	switch {
	case f.HostedURL == "":
		dep.Issues = append(dep.Issues, issue("NO_DEPLOYMENT", model.SeverityWarning, rubric.Deployment,
			"No hosted deployment URL was provided"))
	case f.Reachable:
		dep.Score = rubric.MaxFor(rubric.Deployment)
		dep.Evidence = append(dep.Evidence, model.Evidence{Signal: "reachable", Location: f.HostedURL})
	default:
		msg := "Hosted deployment is not accessible"
		if f.ReachError != "" {
			msg = fmt.Sprintf("%s: %s", msg, f.ReachError)
		}
		dep.Issues = append(dep.Issues, issue("DEPLOYMENT_NOT_ACCESSIBLE", model.SeverityWarning, rubric.Deployment, msg))
	}
	if f.CaptureAttempted && f.CaptureError != "" {
		dep.Issues = append(dep.Issues, issue("SCREENSHOTS_UNAVAILABLE", model.SeverityInfo, rubric.Deployment,
			"Screenshots could not be captured: "+f.CaptureError))
	}
	for _, s := range f.Screenshots {
		dep.Evidence = append(dep.Evidence, model.Evidence{Signal: "screenshot " + s.Page, Location: s.URL})
	}

	bonus := CategoryResult{Category: rubric.BonusFeatures}
	if f.HasReadme {
		bonus.Score++
		bonus.Evidence = append(bonus.Evidence, model.Evidence{Signal: "README present"})
	}
	if f.VideoURL != "" {
		if f.VideoValid {
			bonus.Score++
			bonus.Evidence = append(bonus.Evidence, model.Evidence{Signal: "video demo", Location: f.VideoURL})
			bonus.Issues = append(bonus.Issues, issue("VIDEO_DEMO_PROVIDED", model.SeverityInfo, rubric.BonusFeatures,
				fmt.Sprintf("Video demonstration provided on %s", f.VideoPlatform)))
		} else {
			bonus.Issues = append(bonus.Issues, issue("VIDEO_URL_INVALID", model.SeverityWarning, rubric.BonusFeatures,
				"Video demo URL is not accessible"))
		}
	}
	return []Result{dep, bonus}
}
