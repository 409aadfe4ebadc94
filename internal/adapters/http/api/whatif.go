package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/paddle/internal/domain/types"
)

// WhatIfDependencies defines the interface for what-if projections.
type WhatIfDependencies interface {
	Simulate(ctx context.Context, a, b string) (types.WhatIf, error)
}

// WhatIfHandler handles what-if requests.
type WhatIfHandler struct {
	deps WhatIfDependencies
}

// NewWhatIfHandler creates a new what-if handler.
func NewWhatIfHandler(deps WhatIfDependencies) *WhatIfHandler {
	return &WhatIfHandler{deps: deps}
}

type whatIfRequest struct {
	PlayerA string `json:"player_a"`
	PlayerB string `json:"player_b"`
}

// HandleWhatIf handles GET /whatif?player_a=&player_b= and POST /whatif.
func (h *WhatIfHandler) HandleWhatIf(w http.ResponseWriter, r *http.Request) {
	const op = "api.what_if"
	var req whatIfRequest
	if r.Method == http.MethodPost {
		if err := decode(r, &req); err != nil {
			writeError(r.Context(), w, op, err)
			return
		}
	} else {
		q := r.URL.Query()
		req = whatIfRequest{PlayerA: q.Get("player_a"), PlayerB: q.Get("player_b")}
	}
	if strings.TrimSpace(req.PlayerA) == "" || strings.TrimSpace(req.PlayerB) == "" {
		writeError(r.Context(), w, op, fmt.Errorf("%w: player_a and player_b are required", ErrBadRequest))
		return
	}
	res, err := h.deps.Simulate(r.Context(), req.PlayerA, req.PlayerB)
	if err != nil {
		writeError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
