package api

import (
	"net/http"
	"time"

	"github.com/googly1030/intern-platform/pkg/logger"
)

type serverConfig struct {
	maxBodyBytes int64
	pingInterval time.Duration
	checkOrigin  func(r *http.Request) bool
	log          logger.Logger
}

// Option applies a configuration option to the Server.
type Option func(*serverConfig)

// WithLogger sets the logger used by every handler.
func WithLogger(l logger.Logger) Option {
	return func(c *serverConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMaxBodyBytes caps single-submission request bodies. Batch bodies get a
// proportionally larger cap.
func WithMaxBodyBytes(n int64) Option {
	return func(c *serverConfig) {
		if n > 0 {
			c.maxBodyBytes = n
		}
	}
}

// WithPingInterval sets how often idle progress streams are pinged.
func WithPingInterval(d time.Duration) Option {
	return func(c *serverConfig) {
		if d > 0 {
			c.pingInterval = d
		}
	}
}

// WithCheckOrigin overrides the WebSocket origin check. The default accepts
// same-origin requests only.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(c *serverConfig) {
		c.checkOrigin = fn
	}
}
