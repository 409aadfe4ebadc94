package api

import (
	"context"
	"net/http"

	"github.com/okian/paddle/internal/domain/types"
)

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, limit int) (types.Leaderboard, error)
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps     LeaderboardDependencies
	maxLimit int
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, maxLimit int) *LeaderboardHandler {
	return &LeaderboardHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetLeaderboard handles GET /leaderboard?limit=N requests. Without a
// limit every entry is returned.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	n, err := parseLimit(r, 0, h.maxLimit)
	if err != nil {
		writeError(r.Context(), w, op, err)
		return
	}
	lb, err := h.deps.Leaderboard(r.Context(), n)
	if err != nil {
		writeError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}
