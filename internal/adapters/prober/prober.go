// Package prober checks hosted deployments and captures screenshots of them.
package prober

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/googly1030/intern-platform/pkg/errors"
	"github.com/googly1030/intern-platform/pkg/logger"
)

const (
	defaultTimeout = 10 * time.Second
	maxRedirects   = 10
	userAgent      = "intern-platform-prober/1.0"
	drainLimit     = 64 << 10
)

// Prober issues plain HTTP checks against deployments.
type Prober struct {
	client *http.Client
	log    logger.Logger
}

// New returns a prober that follows redirects.
func New(opts ...Option) *Prober {
	p := &Prober{
		client: &http.Client{
			Timeout: defaultTimeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		log: logger.Get().Named("prober"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Reachable returns nil when a GET of url answers 2xx or 3xx. A URL without a
// scheme is tried over https.
func (p *Prober) Reachable(ctx context.Context, url string) error {
	code, err := p.do(ctx, http.MethodGet, url)
	if err != nil {
		return err
	}
	if !okStatus(code) {
		return errors.Wrapf(ErrBadStatus, errors.ServiceUnavailable, "%s answered %d", url, code)
	}
	return nil
}

// Head reports whether a HEAD of url answered 2xx or 3xx. The error is set
// only when no response arrived.
func (p *Prober) Head(ctx context.Context, url string) (bool, error) {
	code, err := p.do(ctx, http.MethodHead, url)
	if err != nil {
		return false, err
	}
	return okStatus(code), nil
}

func (p *Prober) do(ctx context.Context, method, raw string) (int, error) {
	target, err := withScheme(raw)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return 0, errors.Wrapf(err, errors.InvalidParams, "invalid url %q", raw)
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Debug(ctx, "reachability check failed",
			logger.String("method", method),
			logger.String("url", target),
			logger.Error(err))
		return 0, classify(ctx, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))

	p.log.Debug(ctx, "reachability check answered",
		logger.String("method", method),
		logger.String("url", target),
		logger.Int("status", resp.StatusCode),
		logger.Duration("elapsed", time.Since(start)))
	return resp.StatusCode, nil
}

func withScheme(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.Wrap(ErrNoURL, errors.InvalidParams)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	return raw, nil
}

func okStatus(code int) bool {
	return code >= 200 && code < 400
}

// classify splits transport failures into timeouts and unavailability.
func classify(ctx context.Context, err error) error {
	if ctx.Err() == context.Canceled {
		return ctx.Err()
	}
	var ne net.Error
	if stderrors.Is(err, context.DeadlineExceeded) || (stderrors.As(err, &ne) && ne.Timeout()) {
		return errors.Transient(err, errors.NetworkTimeout)
	}
	return errors.Transient(err, errors.ServiceUnavailable)
}
