package api

import (
	"context"
	"net/http"

	"github.com/googly1030/intern-platform/internal/domain/types"
	"github.com/googly1030/intern-platform/pkg/logger"
)

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, batchID string, limit int) ([]types.Entry, error)
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps LeaderboardDependencies
	log  logger.Logger
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, log logger.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps, log: log}
}

// HandleGetLeaderboard handles GET /leaderboard?batch_id=&limit=N requests.
// An absent limit takes the service default; oversize limits are capped.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	n, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if r.URL.Query().Has("limit") && n < 1 {
		writeError(w, r, h.log, invalidQuery("limit"))
		return
	}
	entries, err := h.deps.Leaderboard(r.Context(), r.URL.Query().Get("batch_id"), n)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if entries == nil {
		entries = []types.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
