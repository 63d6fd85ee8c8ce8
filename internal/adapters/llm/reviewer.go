// Package llm scores the quality categories through a Vertex AI generative model.
package llm

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/zeromicro/go-zero/core/breaker"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/googly1030/intern-platform/internal/domain/analyzer"
	"github.com/googly1030/intern-platform/internal/domain/rubric"
	"github.com/googly1030/intern-platform/pkg/errors"
	"github.com/googly1030/intern-platform/pkg/logger"
)

const (
	defaultModel  = "gemini-1.5-pro"
	breakerName   = "llm-review"
	maxListLength = 10
)

// Config selects the Vertex AI project and model.
type Config struct {
	ProjectID string
	Region    string
	Model     string
}

// Generator is the part of *genai.GenerativeModel the reviewer needs.
type Generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// guard runs a call through a circuit breaker.
type guard interface {
	DoWithAcceptable(req func() error, acceptable breaker.Acceptable) error
}

// Reviewer implements the code-review collaborator of the pipeline.
type Reviewer struct {
	model  Generator
	client *genai.Client
	brk    guard
	log    logger.Logger
}

// New dials Vertex AI and configures a JSON-mode model with temperature 0.
func New(ctx context.Context, cfg Config, opts ...Option) (*Reviewer, error) {
	if cfg.ProjectID == "" || cfg.Region == "" {
		return nil, ErrNoProject
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	client, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	r := NewWithModel(model, opts...)
	r.client = client
	return r, nil
}

// NewWithModel builds a reviewer around an existing generator.
func NewWithModel(model Generator, opts ...Option) *Reviewer {
	r := &Reviewer{
		model: model,
		brk:   newBreaker(breakerName),
		log:   logger.Get().Named("llm"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func newBreaker(name string) guard {
	return breaker.NewBreaker(breaker.WithName(name))
}

// Close releases the underlying client, if any.
func (r *Reviewer) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Review asks the model to score the quality categories.
func (r *Reviewer) Review(ctx context.Context, req analyzer.ReviewRequest) (analyzer.ReviewResult, error) {
	ctx = logger.WithFields(ctx, logger.String("submission_id", req.SubmissionID))
	prompt := buildPrompt(req)

	var text string
	err := r.brk.DoWithAcceptable(func() error {
		resp, err := r.model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return err
		}
		text = responseText(resp)
		return nil
	}, acceptable)
	if err != nil {
		r.log.Warn(ctx, "code review call failed", logger.Error(err))
		return analyzer.ReviewResult{}, classify(ctx, err)
	}

	res, err := parseReview(text)
	if err != nil {
		r.log.Warn(ctx, "code review response rejected", logger.Error(err), logger.Int("length", len(text)))
		return analyzer.ReviewResult{}, errors.Transient(err, errors.ProviderUnavailable)
	}
	r.log.Debug(ctx, "code review received", logger.Int("categories", len(res.Categories)))
	return res, nil
}

// acceptable keeps caller cancellation from tripping the breaker.
func acceptable(err error) bool {
	return err == nil || stderrors.Is(err, context.Canceled)
}

// classify maps provider failures onto the pipeline error kinds.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil && stderrors.Is(err, ctx.Err()) {
		return ctx.Err()
	}
	if stderrors.Is(err, breaker.ErrServiceUnavailable) {
		return errors.Transient(err, errors.ProviderUnavailable)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Transient(err, errors.NetworkTimeout)
	}
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.ResourceExhausted:
			return errors.Transient(err, errors.ProviderRateLimited)
		case codes.DeadlineExceeded:
			return errors.Transient(err, errors.NetworkTimeout)
		case codes.Unavailable, codes.Aborted:
			return errors.Transient(err, errors.ProviderUnavailable)
		}
	}
	return errors.Wrapf(err, errors.InternalServerError, "code review failed: %v", err)
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		break
	}
	return b.String()
}

type wireReview struct {
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
	Summary    string   `json:"summary"`
}

// parseReview decodes the model's JSON object. Scores are clamped to the
// category maximum and unknown keys are ignored.
func parseReview(text string) (analyzer.ReviewResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return analyzer.ReviewResult{}, ErrEmptyResponse
	}
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return analyzer.ReviewResult{}, fmt.Errorf("%w: no JSON object", ErrMalformedResponse)
	}
	body := []byte(text[start : end+1])

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return analyzer.ReviewResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	var wire wireReview
	if err := json.Unmarshal(body, &wire); err != nil {
		return analyzer.ReviewResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	res := analyzer.ReviewResult{
		Categories: make(map[rubric.Category]analyzer.CategoryReview),
		Strengths:  trimList(wire.Strengths),
		Weaknesses: trimList(wire.Weaknesses),
		Summary:    strings.TrimSpace(wire.Summary),
	}
	for _, c := range rubric.QualityCategories() {
		msg, ok := raw[string(c)]
		if !ok {
			continue
		}
		var cr struct {
			Score    float64 `json:"score"`
			Feedback string  `json:"feedback"`
		}
		if err := json.Unmarshal(msg, &cr); err != nil {
			continue
		}
		res.Categories[c] = analyzer.CategoryReview{
			Score:    clamp(int(cr.Score+0.5), rubric.MaxFor(c)),
			Feedback: strings.TrimSpace(cr.Feedback),
		}
	}
	if len(res.Categories) == 0 {
		return analyzer.ReviewResult{}, fmt.Errorf("%w: no category scores", ErrMalformedResponse)
	}
	return res, nil
}

func clamp(v, hi int) int {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}

func trimList(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
		if len(out) == maxListLength {
			break
		}
	}
	return out
}
