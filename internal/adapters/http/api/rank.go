package api

import (
	"context"
	"net/http"

	"github.com/googly1030/intern-platform/internal/domain/types"
	"github.com/googly1030/intern-platform/pkg/logger"
)

// RankDependencies defines the interface for rank operations.
type RankDependencies interface {
	Rank(ctx context.Context, id string, inBatch bool) (types.Entry, error)
}

// RankHandler handles rank requests.
type RankHandler struct {
	deps RankDependencies
	log  logger.Logger
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps RankDependencies, log logger.Logger) *RankHandler {
	return &RankHandler{deps: deps, log: log}
}

// HandleGetRank handles GET /submissions/{id}/rank?scope=batch requests.
func (h *RankHandler) HandleGetRank(w http.ResponseWriter, r *http.Request) {
	var inBatch bool
	switch r.URL.Query().Get("scope") {
	case "", "global":
	case "batch":
		inBatch = true
	default:
		writeError(w, r, h.log, invalidQuery("scope"))
		return
	}
	entry, err := h.deps.Rank(r.Context(), r.PathValue("id"), inBatch)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
