package api

import (
	"context"
	"net/http"

	"github.com/okian/paddle/internal/domain/types"
)

// SnapshotDependencies defines the interface for the rating table.
type SnapshotDependencies interface {
	Snapshot(ctx context.Context) (types.Snapshot, error)
}

// SnapshotHandler handles snapshot requests.
type SnapshotHandler struct {
	deps SnapshotDependencies
}

// NewSnapshotHandler creates a new snapshot handler.
func NewSnapshotHandler(deps SnapshotDependencies) *SnapshotHandler {
	return &SnapshotHandler{deps: deps}
}

// HandleGetSnapshot handles GET /snapshot requests.
func (h *SnapshotHandler) HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_snapshot"
	snap, err := h.deps.Snapshot(r.Context())
	if err != nil {
		writeError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
