// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/googly1030/intern-platform/pkg/errors"
	"github.com/googly1030/intern-platform/pkg/logger"
)

const (
	defaultMaxBodyBytes = 1 << 20
	batchBodyFactor     = 16
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	SubmissionDependencies
	ProgressDependencies
	BatchDependencies
	LeaderboardDependencies
	RankDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	submissionHandler  *SubmissionHandler
	progressHandler    *ProgressHandler
	batchHandler       *BatchHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	log                logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	cfg := serverConfig{
		maxBodyBytes: defaultMaxBodyBytes,
		pingInterval: defaultPingInterval,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logger.Get().Named("api")
	}
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps, cfg.log),
		submissionHandler:  NewSubmissionHandler(deps, cfg.maxBodyBytes, cfg.log),
		progressHandler:    NewProgressHandler(deps, cfg.pingInterval, cfg.checkOrigin, cfg.log),
		batchHandler:       NewBatchHandler(deps, cfg.maxBodyBytes*batchBodyFactor, cfg.log),
		leaderboardHandler: NewLeaderboardHandler(deps, cfg.log),
		rankHandler:        NewRankHandler(deps, cfg.log),
		log:                cfg.log,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, MetricsMiddleware(h, endpoint))
	}

	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	route("GET /stats", "stats", s.statsHandler.HandleStats)

	route("POST /submissions", "submissions", s.submissionHandler.HandleCreate)
	route("GET /submissions", "submissions", s.submissionHandler.HandleList)
	route("GET /submissions/{id}", "submission", s.submissionHandler.HandleGet)
	route("GET /submissions/{id}/status", "submission_status", s.submissionHandler.HandleStatus)
	route("GET /submissions/{id}/report", "submission_report", s.submissionHandler.HandleReport)
	route("POST /submissions/{id}/cancel", "submission_cancel", s.submissionHandler.HandleCancel)
	route("POST /submissions/{id}/trigger", "submission_trigger", s.submissionHandler.HandleRetrigger)
	route("GET /submissions/{id}/rank", "rank", s.rankHandler.HandleGetRank)
	// The upgrade hijacks the connection, so the progress stream is not wrapped.
	mux.HandleFunc("GET /submissions/{id}/progress", s.progressHandler.HandleProgress)

	route("POST /batches", "batches", s.batchHandler.HandleCreate)
	route("GET /batches", "batches", s.batchHandler.HandleList)
	route("GET /batches/{id}", "batch", s.batchHandler.HandleGet)
	route("POST /batches/{id}/submissions", "batch_submissions", s.batchHandler.HandleAddSubmissions)
	route("POST /batches/{id}/csv", "batch_csv", s.batchHandler.HandleImportCSV)
	route("POST /batches/{id}/start", "batch_start", s.batchHandler.HandleStart)
	route("POST /batches/{id}/cancel", "batch_cancel", s.batchHandler.HandleCancel)
	route("GET /batches/{id}/results", "batch_results", s.batchHandler.HandleResults)
	route("GET /batches/{id}/export", "batch_export", s.batchHandler.HandleExport)

	route("GET /leaderboard", "leaderboard", s.leaderboardHandler.HandleGetLeaderboard)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as {code, message}. Server-side failures are logged
// and reported without their cause.
func writeError(w http.ResponseWriter, r *http.Request, log logger.Logger, err error) {
	status, body := responseFor(err)
	if status >= http.StatusInternalServerError {
		log.Error(r.Context(), "request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Error(err))
	}
	writeJSON(w, status, body)
}

// decodeJSON reads a single JSON document of at most limit bytes into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrapf(err, errors.InvalidParams, "invalid request body: %v", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return ErrInvalidBody
	}
	return nil
}

// queryInt parses an optional integer query parameter; absent yields def.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidQuery(name)
	}
	return n, nil
}
