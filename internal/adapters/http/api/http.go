// Package api serves the JSON HTTP API over chi.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/okian/paddle/internal/adapters/repository"
	service "github.com/okian/paddle/internal/app"
	"github.com/okian/paddle/internal/domain/ledger"
	"github.com/okian/paddle/internal/domain/types"
	"github.com/okian/paddle/pkg/logger"
)

const (
	defaultMaxLimit    = 500
	defaultRecentGames = 10
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	PlayerDependencies
	GameDependencies
	LeaderboardDependencies
	RankDependencies
	SnapshotDependencies
	WhatIfDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	playersHandler     *PlayersHandler
	gamesHandler       *GamesHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	snapshotHandler    *SnapshotHandler
	whatIfHandler      *WhatIfHandler
}

// Option applies a configuration option to the Server.
type Option func(*options)

type options struct {
	maxLimit    int
	recentGames int
	health      HealthChecker
}

// WithMaxLimit caps the limit query parameter.
func WithMaxLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxLimit = n
		}
	}
}

// WithRecentGames sets the default number of games listed by GET /games.
func WithRecentGames(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.recentGames = n
		}
	}
}

// WithHealthChecker makes /healthz report the checker's status.
func WithHealthChecker(h HealthChecker) Option {
	return func(o *options) {
		if h != nil {
			o.health = h
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	o := options{maxLimit: defaultMaxLimit, recentGames: defaultRecentGames}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		healthHandler:      NewHealthHandler(o.health),
		statsHandler:       NewStatsHandler(statsProvider),
		playersHandler:     NewPlayersHandler(deps),
		gamesHandler:       NewGamesHandler(deps, o.recentGames, o.maxLimit),
		leaderboardHandler: NewLeaderboardHandler(deps, o.maxLimit),
		rankHandler:        NewRankHandler(deps),
		snapshotHandler:    NewSnapshotHandler(deps),
		whatIfHandler:      NewWhatIfHandler(deps),
	}
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r chi.Router) {
	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/metrics", s.healthHandler.HandleMetrics)
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	r.Get("/players", MetricsMiddleware(s.playersHandler.HandleList, "players"))
	r.Post("/players", MetricsMiddleware(s.playersHandler.HandleCreate, "players"))
	r.Get("/players/{name}", MetricsMiddleware(s.playersHandler.HandleGet, "player"))

	r.Get("/games", MetricsMiddleware(s.gamesHandler.HandleList, "games"))
	r.Post("/games", MetricsMiddleware(s.gamesHandler.HandleSubmit, "games"))

	r.Get("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	r.Get("/rank/{name}", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
	r.Get("/snapshot", MetricsMiddleware(s.snapshotHandler.HandleGetSnapshot, "snapshot"))

	r.Get("/whatif", MetricsMiddleware(s.whatIfHandler.HandleWhatIf, "whatif"))
	r.Post("/whatif", MetricsMiddleware(s.whatIfHandler.HandleWhatIf, "whatif"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code and writes the JSON error body.
func writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	status, code := Classify(err)
	if status >= http.StatusInternalServerError {
		logger.Get().Named("api").Error(ctx, "request failed", logger.String("op", op), logger.Error(err))
	}
	writeJSON(w, status, types.Error{Code: code, Message: err.Error()})
}

// Classify returns the HTTP status and error code for err.
func Classify(err error) (status int, code string) {
	switch {
	case errors.Is(err, ledger.ErrUnknownPlayer):
		return http.StatusNotFound, "unknown_player"
	case errors.Is(err, ledger.ErrDuplicatePlayer):
		return http.StatusConflict, "duplicate_player"
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, ledger.ErrSelfPlay):
		return http.StatusBadRequest, "self_play"
	case errors.Is(err, ErrLimitExceeded):
		return http.StatusBadRequest, "limit_exceeded"
	case errors.Is(err, ledger.ErrInvalidPlayer),
		errors.Is(err, ledger.ErrInvalidScore),
		errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// parseLimit reads the limit query parameter. A missing value yields def.
func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", ErrBadRequest)
	}
	if n > maxLimit {
		return 0, fmt.Errorf("%w: %d > %d", ErrLimitExceeded, n, maxLimit)
	}
	return n, nil
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}
