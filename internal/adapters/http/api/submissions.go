package api

import (
	"context"
	"net/http"

	service "github.com/googly1030/intern-platform/internal/app"
	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/pkg/errors"
	"github.com/googly1030/intern-platform/pkg/logger"
)

// SubmissionDependencies defines the interface for submission operations.
type SubmissionDependencies interface {
	CreateSubmission(ctx context.Context, in service.SubmissionInput) (string, error)
	ListSubmissions(ctx context.Context, filter model.SubmissionFilter) ([]model.Submission, error)
	GetSubmission(ctx context.Context, id string) (model.Submission, error)
	GetStatus(ctx context.Context, id string) (model.StatusView, error)
	GetReport(ctx context.Context, id string) (model.ScoreReport, error)
	CancelSubmission(ctx context.Context, id string) (model.Submission, error)
	RetriggerSubmission(ctx context.Context, id string) (model.Submission, error)
}

// SubmissionHandler handles submission requests.
type SubmissionHandler struct {
	deps     SubmissionDependencies
	maxBytes int64
	log      logger.Logger
}

// NewSubmissionHandler creates a new submission handler.
func NewSubmissionHandler(deps SubmissionDependencies, maxBytes int64, log logger.Logger) *SubmissionHandler {
	return &SubmissionHandler{deps: deps, maxBytes: maxBytes, log: log}
}

type createdResponse struct {
	ID string `json:"id"`
}

// HandleCreate handles POST /submissions requests.
func (h *SubmissionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.SubmissionInput
	if err := decodeJSON(w, r, h.maxBytes, &in); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	id, err := h.deps.CreateSubmission(r.Context(), in)
	if err != nil {
		status, body := responseFor(err)
		if errors.Is(err, errors.Backpressure) {
			// The submission exists as failed; return its id so it can be inspected.
			body.ID = id
			writeJSON(w, status, body)
			return
		}
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}

// HandleList handles GET /submissions?batch_id=&status=&limit=&offset= requests.
func (h *SubmissionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.SubmissionFilter{BatchID: q.Get("batch_id")}
	if raw := q.Get("status"); raw != "" {
		status := model.Status(raw)
		switch status {
		case model.StatusPending, model.StatusProcessing, model.StatusCompleted, model.StatusFailed:
			filter.Status = status
		default:
			writeError(w, r, h.log, invalidQuery("status"))
			return
		}
	}
	var err error
	if filter.Limit, err = queryInt(r, "limit", 0); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if filter.Offset, err = queryInt(r, "offset", 0); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	subs, err := h.deps.ListSubmissions(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if subs == nil {
		subs = []model.Submission{}
	}
	writeJSON(w, http.StatusOK, subs)
}

// HandleGet handles GET /submissions/{id} requests.
func (h *SubmissionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sub, err := h.deps.GetSubmission(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// HandleStatus handles GET /submissions/{id}/status requests.
func (h *SubmissionHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.deps.GetStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleReport handles GET /submissions/{id}/report requests.
func (h *SubmissionHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.GetReport(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleCancel handles POST /submissions/{id}/cancel requests.
func (h *SubmissionHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	sub, err := h.deps.CancelSubmission(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sub.View())
}

// HandleRetrigger handles POST /submissions/{id}/trigger requests.
func (h *SubmissionHandler) HandleRetrigger(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sub, err := h.deps.RetriggerSubmission(r.Context(), id)
	if err != nil {
		if errors.Is(err, errors.Backpressure) {
			status, body := responseFor(err)
			body.ID = id
			writeJSON(w, status, body)
			return
		}
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sub)
}
