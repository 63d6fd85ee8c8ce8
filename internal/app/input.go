package service

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"

	"github.com/googly1030/intern-platform/internal/adapters/retriever"
	"github.com/googly1030/intern-platform/internal/domain/rubric"
	"github.com/googly1030/intern-platform/pkg/errors"
)

const (
	maxNameLength = 255
	maxURLLength  = 500
)

// SubmissionInput is the caller-provided part of a submission.
type SubmissionInput struct {
	CandidateName  string           `json:"candidate_name"`
	CandidateEmail string           `json:"candidate_email"`
	RepoURL        string           `json:"repo_url"`
	HostedURL      string           `json:"hosted_url,omitempty"`
	VideoURL       string           `json:"video_url,omitempty"`
	Overrides      rubric.Overrides `json:"overrides"`
}

// Normalize trims every field.
func (in SubmissionInput) Normalize() SubmissionInput {
	in.CandidateName = strings.TrimSpace(in.CandidateName)
	in.CandidateEmail = strings.TrimSpace(in.CandidateEmail)
	in.RepoURL = strings.TrimSpace(in.RepoURL)
	in.HostedURL = strings.TrimSpace(in.HostedURL)
	in.VideoURL = strings.TrimSpace(in.VideoURL)
	return in
}

// Validate checks the fields of a normalized input.
func (in SubmissionInput) Validate() error {
	if in.CandidateName == "" {
		return errors.BadRequest("candidate_name is required")
	}
	if len(in.CandidateName) > maxNameLength {
		return errors.BadRequest("candidate_name is too long")
	}
	if in.CandidateEmail == "" {
		return errors.BadRequest("candidate_email is required")
	}
	if _, err := mail.ParseAddress(in.CandidateEmail); err != nil {
		return errors.BadRequest(fmt.Sprintf("candidate_email is invalid: %v", err))
	}
	if in.RepoURL == "" {
		return errors.BadRequest("repo_url is required")
	}
	if _, err := retriever.Normalize(in.RepoURL); err != nil {
		return errors.BadRequest(err.Error())
	}
	if err := optionalURL("hosted_url", in.HostedURL); err != nil {
		return err
	}
	return optionalURL("video_url", in.VideoURL)
}

func optionalURL(field, raw string) error {
	if raw == "" {
		return nil
	}
	if len(raw) > maxURLLength {
		return errors.BadRequest(field + " is too long")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.BadRequest(field + " must be an http(s) URL")
	}
	return nil
}

// BatchInput describes a new batch.
type BatchInput struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Overrides   rubric.Overrides `json:"overrides"`
}

// Validate checks the batch fields.
func (in BatchInput) Validate() error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return errors.BadRequest("name is required")
	}
	if len(name) > maxNameLength {
		return errors.BadRequest("name is too long")
	}
	return nil
}
