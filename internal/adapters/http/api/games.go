package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/okian/paddle/internal/domain/ledger"
	"github.com/okian/paddle/internal/domain/types"
)

// GameDependencies defines the interface for game operations.
type GameDependencies interface {
	SubmitGame(ctx context.Context, g ledger.GameRecord) (types.Game, bool, error)
	RecentGames(ctx context.Context, n int) ([]types.Game, error)
}

// GamesHandler handles game requests.
type GamesHandler struct {
	deps     GameDependencies
	recent   int
	maxLimit int
}

// NewGamesHandler creates a new games handler.
func NewGamesHandler(deps GameDependencies, recent, maxLimit int) *GamesHandler {
	return &GamesHandler{deps: deps, recent: recent, maxLimit: maxLimit}
}

// gameRequest mirrors the OpenAPI schema for POST /games.
type gameRequest struct {
	SubmissionID string `json:"submission_id"`
	Player1      string `json:"player1"`
	Score1       *int   `json:"score1"`
	Player2      string `json:"player2"`
	Score2       *int   `json:"score2"`
	Timestamp    string `json:"timestamp"`
}

func (g gameRequest) record() (ledger.GameRecord, error) {
	switch {
	case strings.TrimSpace(g.Player1) == "":
		return ledger.GameRecord{}, fmt.Errorf("%w: missing player1", ErrBadRequest)
	case strings.TrimSpace(g.Player2) == "":
		return ledger.GameRecord{}, fmt.Errorf("%w: missing player2", ErrBadRequest)
	case g.Score1 == nil:
		return ledger.GameRecord{}, fmt.Errorf("%w: missing score1", ErrBadRequest)
	case g.Score2 == nil:
		return ledger.GameRecord{}, fmt.Errorf("%w: missing score2", ErrBadRequest)
	}
	rec := ledger.GameRecord{
		ID:      strings.TrimSpace(g.SubmissionID),
		Player1: ledger.CleanName(g.Player1),
		Score1:  *g.Score1,
		Player2: ledger.CleanName(g.Player2),
		Score2:  *g.Score2,
	}
	if g.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, g.Timestamp)
		if err != nil {
			return ledger.GameRecord{}, fmt.Errorf("%w: invalid timestamp; must be RFC3339", ErrBadRequest)
		}
		rec.Timestamp = ts.UTC()
	}
	return rec, nil
}

type submitResponse struct {
	Status    string     `json:"status"`
	Duplicate bool       `json:"duplicate"`
	Game      types.Game `json:"game"`
}

type gamesResponse struct {
	Games []types.Game `json:"games"`
}

// HandleSubmit handles POST /games requests.
func (h *GamesHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_game"
	var req gameRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, op, err)
		return
	}
	rec, err := req.record()
	if err != nil {
		writeError(r.Context(), w, op, err)
		return
	}
	game, duplicate, err := h.deps.SubmitGame(r.Context(), rec)
	if err != nil {
		writeError(r.Context(), w, op, err)
		return
	}
	if duplicate {
		writeJSON(w, http.StatusOK, submitResponse{Status: "duplicate", Duplicate: true, Game: game})
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{Status: "accepted", Game: game})
}

// HandleList handles GET /games?limit=N requests.
func (h *GamesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_games"
	n, err := parseLimit(r, h.recent, h.maxLimit)
	if err != nil {
		writeError(r.Context(), w, op, err)
		return
	}
	games, err := h.deps.RecentGames(r.Context(), n)
	if err != nil {
		writeError(r.Context(), w, op, err)
		return
	}
	if games == nil {
		games = []types.Game{}
	}
	writeJSON(w, http.StatusOK, gamesResponse{Games: games})
}
