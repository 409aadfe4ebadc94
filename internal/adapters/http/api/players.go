package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/paddle/internal/domain/ledger"
	"github.com/okian/paddle/internal/domain/types"
)

// PlayerDependencies defines the interface for player operations.
type PlayerDependencies interface {
	RegisterPlayer(ctx context.Context, name string) error
	Players(ctx context.Context) ([]string, error)
	Player(ctx context.Context, name string) (types.Player, error)
}

// PlayersHandler handles player requests.
type PlayersHandler struct {
	deps PlayerDependencies
}

// NewPlayersHandler creates a new players handler.
func NewPlayersHandler(deps PlayerDependencies) *PlayersHandler {
	return &PlayersHandler{deps: deps}
}

type playerRequest struct {
	Name string `json:"name"`
}

type playersResponse struct {
	Players []string `json:"players"`
}

// HandleList handles GET /players requests.
func (h *PlayersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_players"
	names, err := h.deps.Players(r.Context())
	if err != nil {
		writeError(r.Context(), w, op, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, playersResponse{Players: names})
}

// HandleCreate handles POST /players requests.
func (h *PlayersHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.register_player"
	var req playerRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, op, err)
		return
	}
	if err := h.deps.RegisterPlayer(r.Context(), req.Name); err != nil {
		writeError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, playerRequest{Name: ledger.CleanName(req.Name)})
}

// HandleGet handles GET /players/{name} requests.
func (h *PlayersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_player"
	p, err := h.deps.Player(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
