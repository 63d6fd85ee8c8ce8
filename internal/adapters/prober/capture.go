package prober

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/googly1030/intern-platform/internal/adapters/artifacts"
	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/pkg/errors"
	"github.com/googly1030/intern-platform/pkg/logger"
)

const (
	defaultCaptureTimeout = 45 * time.Second
	maxImageBytes         = 8 << 20
)

// DefaultPages are the pages captured for every deployment.
var DefaultPages = []string{"login", "register", "profile"}

type captureRequest struct {
	URL      string `json:"url"`
	Page     string `json:"page"`
	FullPage bool   `json:"full_page"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

type captureResponse struct {
	Image []byte `json:"image"`
	Error string `json:"error,omitempty"`
}

// Capturer asks a headless-browser sidecar for page screenshots and stores
// them through an uploader.
type Capturer struct {
	endpoint string
	client   *http.Client
	uploader artifacts.Uploader
	pages    []string
	log      logger.Logger
}

// NewCapturer returns a capturer posting to endpoint.
func NewCapturer(endpoint string, uploader artifacts.Uploader, opts ...CaptureOption) *Capturer {
	c := &Capturer{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: defaultCaptureTimeout},
		uploader: uploader,
		pages:    DefaultPages,
		log:      logger.Get().Named("capture"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Capture screenshots each page of the deployment at url. Pages that fail
// are skipped; an error is returned only when nothing was captured.
func (c *Capturer) Capture(ctx context.Context, submissionID, url string) ([]model.Screenshot, error) {
	if c.endpoint == "" {
		return nil, ErrNoSidecar
	}
	if c.uploader == nil {
		return nil, ErrNoUploader
	}
	base, err := withScheme(url)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithFields(ctx, logger.String("submission_id", submissionID))

	var (
		shots   []model.Screenshot
		lastErr error
	)
	for _, page := range c.pages {
		if ctx.Err() != nil {
			return shots, ctx.Err()
		}
		img, err := c.shoot(ctx, pageURL(base, page), page)
		if err != nil {
			lastErr = err
			c.log.Warn(ctx, "screenshot failed", logger.String("page", page), logger.Error(err))
			continue
		}
		link, err := c.uploader.Put(ctx, artifacts.ScreenshotKey(submissionID, page), img, "image/png")
		if err != nil {
			lastErr = errors.Transient(err, errors.ServiceUnavailable)
			c.log.Warn(ctx, "screenshot upload failed", logger.String("page", page), logger.Error(err))
			continue
		}
		shots = append(shots, model.Screenshot{Page: page, URL: link})
	}
	if len(shots) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return shots, nil
}

func (c *Capturer) shoot(ctx context.Context, target, page string) ([]byte, error) {
	body, err := json.Marshal(captureRequest{URL: target, Page: page, FullPage: true, Width: 1280, Height: 800})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/capture", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidParams)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer resp.Body.Close()

	var out captureResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxImageBytes*2)).Decode(&out); err != nil {
		return nil, errors.Wrapf(err, errors.ServiceUnavailable, "decode sidecar response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.ServiceUnavailable, "sidecar answered %d: %s", resp.StatusCode, out.Error)
	}
	if len(out.Image) == 0 {
		return nil, errors.Newf(errors.ServiceUnavailable, "sidecar returned no image for %s", page)
	}
	if len(out.Image) > maxImageBytes {
		return nil, fmt.Errorf("screenshot of %s exceeds %d bytes", page, maxImageBytes)
	}
	return out.Image, nil
}

func pageURL(base, page string) string {
	return strings.TrimRight(base, "/") + "/" + page + ".html"
}
