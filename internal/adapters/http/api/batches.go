package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"

	service "github.com/googly1030/intern-platform/internal/app"
	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/internal/domain/types"
	"github.com/googly1030/intern-platform/pkg/errors"
	"github.com/googly1030/intern-platform/pkg/logger"
)

// BatchDependencies defines the interface for batch operations.
type BatchDependencies interface {
	CreateBatch(ctx context.Context, in service.BatchInput) (model.Batch, error)
	GetBatch(ctx context.Context, id string) (model.Batch, error)
	ListBatches(ctx context.Context) ([]model.Batch, error)
	AddSubmissions(ctx context.Context, batchID string, inputs []service.SubmissionInput) (service.AddResult, error)
	StartBatch(ctx context.Context, batchID string) (service.StartResult, error)
	CancelBatch(ctx context.Context, batchID string) (int, error)
	GetBatchResults(ctx context.Context, batchID string) (types.BatchResults, error)
	ExportBatch(ctx context.Context, batchID string, w io.Writer) (model.Batch, error)
	ImportBatchCSV(ctx context.Context, batchID string, r io.Reader) (service.ImportResult, error)
}

// BatchHandler handles batch requests.
type BatchHandler struct {
	deps     BatchDependencies
	maxBytes int64
	log      logger.Logger
}

// NewBatchHandler creates a new batch handler.
func NewBatchHandler(deps BatchDependencies, maxBytes int64, log logger.Logger) *BatchHandler {
	return &BatchHandler{deps: deps, maxBytes: maxBytes, log: log}
}

type addSubmissionsRequest struct {
	Submissions []service.SubmissionInput `json:"submissions"`
}

type cancelBatchResponse struct {
	BatchID   string `json:"batch_id"`
	Cancelled int    `json:"cancelled"`
}

// HandleCreate handles POST /batches requests.
func (h *BatchHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.BatchInput
	if err := decodeJSON(w, r, h.maxBytes, &in); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	b, err := h.deps.CreateBatch(r.Context(), in)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// HandleList handles GET /batches requests.
func (h *BatchHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	batches, err := h.deps.ListBatches(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if batches == nil {
		batches = []model.Batch{}
	}
	writeJSON(w, http.StatusOK, batches)
}

// HandleGet handles GET /batches/{id} requests.
func (h *BatchHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	b, err := h.deps.GetBatch(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// HandleAddSubmissions handles POST /batches/{id}/submissions requests.
func (h *BatchHandler) HandleAddSubmissions(w http.ResponseWriter, r *http.Request) {
	var req addSubmissionsRequest
	if err := decodeJSON(w, r, h.maxBytes, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	res, err := h.deps.AddSubmissions(r.Context(), r.PathValue("id"), req.Submissions)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// HandleImportCSV handles POST /batches/{id}/csv requests. The body is either
// the CSV itself or a multipart form carrying it in a "file" part.
func (h *BatchHandler) HandleImportCSV(w http.ResponseWriter, r *http.Request) {
	body, err := csvBody(w, r, h.maxBytes)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	res, err := h.deps.ImportBatchCSV(r.Context(), r.PathValue("id"), body)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func csvBody(w http.ResponseWriter, r *http.Request, limit int64) (io.Reader, error) {
	body := http.MaxBytesReader(w, r.Body, limit)
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		return body, nil
	}
	r.Body = body
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, errors.Wrapf(err, errors.InvalidParams, "invalid multipart body: %v", err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, errors.BadRequest(`multipart body has no "file" part`)
		}
		if err != nil {
			return nil, errors.Wrapf(err, errors.InvalidParams, "invalid multipart body: %v", err)
		}
		if part.FormName() == "file" {
			return part, nil
		}
	}
}

// HandleStart handles POST /batches/{id}/start requests.
func (h *BatchHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.StartBatch(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

// HandleCancel handles POST /batches/{id}/cancel requests.
func (h *BatchHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	n, err := h.deps.CancelBatch(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusAccepted, cancelBatchResponse{BatchID: id, Cancelled: n})
}

// HandleResults handles GET /batches/{id}/results requests.
func (h *BatchHandler) HandleResults(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.GetBatchResults(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleExport handles GET /batches/{id}/export requests. The CSV is built in
// memory so a failure can still be reported as JSON.
func (h *BatchHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	b, err := h.deps.ExportBatch(r.Context(), r.PathValue("id"), &buf)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename(b)))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func exportFilename(b model.Batch) string {
	return fmt.Sprintf("batch-%s-results.csv", b.ID)
}
