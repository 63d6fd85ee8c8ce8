package prober

import (
	"net/http"
	"time"

	"github.com/googly1030/intern-platform/pkg/logger"
)

// Option configures a Prober.
type Option func(*Prober)

// WithTimeout bounds every reachability request.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.client.Timeout = d
		}
	}
}

// WithTransport swaps the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(p *Prober) {
		if rt != nil {
			p.client.Transport = rt
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Prober) {
		if l != nil {
			p.log = l
		}
	}
}

// CaptureOption configures a Capturer.
type CaptureOption func(*Capturer)

// WithPages overrides the captured pages.
func WithPages(pages ...string) CaptureOption {
	return func(c *Capturer) {
		if len(pages) > 0 {
			c.pages = pages
		}
	}
}

// WithCaptureTimeout bounds each sidecar call.
func WithCaptureTimeout(d time.Duration) CaptureOption {
	return func(c *Capturer) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithCaptureLogger sets the logger.
func WithCaptureLogger(l logger.Logger) CaptureOption {
	return func(c *Capturer) {
		if l != nil {
			c.log = l
		}
	}
}
