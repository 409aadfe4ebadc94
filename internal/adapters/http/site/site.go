// Package site serves the server-rendered league pages.
package site

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/okian/paddle/internal/adapters/http/api"
	"github.com/okian/paddle/internal/domain/ledger"
	"github.com/okian/paddle/internal/domain/types"
	"github.com/okian/paddle/pkg/logger"
)

const defaultRecentGames = 10

//go:embed templates/*.html
var templatesFS embed.FS

var funcs = template.FuncMap{
	"pct": func(v float64) string { return types.Fixed2(v * 100) },
	"signed": func(v int) string {
		if v > 0 {
			return "+" + strconv.Itoa(v)
		}
		return strconv.Itoa(v)
	},
	"branches": func(r *types.WhatIf) []types.Branch { return []types.Branch{r.IfAWins, r.IfBWins} },
	"deltas":   func(b types.Branch) []types.Delta { return []types.Delta{b.A, b.B} },
}

var pages = map[string]*template.Template{}

func init() {
	for _, name := range []string{"index", "register", "submit_score", "calculator", "player", "not_found"} {
		pages[name] = template.Must(template.New(name).Funcs(funcs).
			ParseFS(templatesFS, "templates/layout.html", "templates/"+name+".html"))
	}
}

// Dependencies is what the pages read and write through.
type Dependencies interface {
	Leaderboard(ctx context.Context, limit int) (types.Leaderboard, error)
	RecentGames(ctx context.Context, n int) ([]types.Game, error)
	Players(ctx context.Context) ([]string, error)
	Player(ctx context.Context, name string) (types.Player, error)
	RegisterPlayer(ctx context.Context, name string) error
	SubmitGame(ctx context.Context, g ledger.GameRecord) (types.Game, bool, error)
	Simulate(ctx context.Context, a, b string) (types.WhatIf, error)
}

// Option applies a configuration option to the Site.
type Option func(*Site)

// WithRecentGames sets how many games the home page lists.
func WithRecentGames(n int) Option {
	return func(s *Site) {
		if n > 0 {
			s.recent = n
		}
	}
}

// Site renders HTML pages.
type Site struct {
	deps   Dependencies
	recent int
	log    logger.Logger
}

// page is the data handed to every template.
type page struct {
	Error        string
	Leaderboard  types.Leaderboard
	Games        []types.Game
	Players      []string
	Name         string
	SubmissionID string
	PlayerA      string
	PlayerB      string
	Result       *types.WhatIf
	Player       *types.Player
}

// New creates a Site.
func New(deps Dependencies, opts ...Option) *Site {
	s := &Site{deps: deps, recent: defaultRecentGames, log: logger.Named("site")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register mounts the pages on r.
func (s *Site) Register(r chi.Router) {
	r.Get("/", api.MetricsMiddleware(s.index, "site_index"))
	r.Post("/", s.jump)
	r.Get("/register", api.MetricsMiddleware(s.registerForm, "site_register"))
	r.Post("/register", api.MetricsMiddleware(s.register, "site_register"))
	r.Get("/submit_score", api.MetricsMiddleware(s.submitForm, "site_submit_score"))
	r.Post("/submit_score", api.MetricsMiddleware(s.submit, "site_submit_score"))
	r.Get("/calculator", api.MetricsMiddleware(s.calculator, "site_calculator"))
	r.Post("/calculator", api.MetricsMiddleware(s.calculator, "site_calculator"))
	r.Get("/player/{name}", api.MetricsMiddleware(s.player, "site_player"))
}

func (s *Site) index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var p page
	var err error
	if p.Leaderboard, err = s.deps.Leaderboard(ctx, 0); err != nil {
		s.fail(w, r, "index", err)
		return
	}
	if p.Games, err = s.deps.RecentGames(ctx, s.recent); err != nil {
		s.fail(w, r, "index", err)
		return
	}
	if p.Players, err = s.deps.Players(ctx); err != nil {
		s.fail(w, r, "index", err)
		return
	}
	s.render(w, r, http.StatusOK, "index", p)
}

// jump redirects the player picker on the home page.
func (s *Site) jump(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PostFormValue("player"))
	if name == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/player/"+url.PathEscape(name), http.StatusSeeOther)
}

func (s *Site) registerForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "register", page{})
}

func (s *Site) register(w http.ResponseWriter, r *http.Request) {
	name := r.PostFormValue("new_player")
	if err := s.deps.RegisterPlayer(r.Context(), name); err != nil {
		status, _ := api.Classify(err)
		if status >= http.StatusInternalServerError {
			s.fail(w, r, "register", err)
			return
		}
		s.render(w, r, status, "register", page{Name: name, Error: err.Error()})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Site) submitForm(w http.ResponseWriter, r *http.Request) {
	s.renderSubmit(w, r, http.StatusOK, "")
}

func (s *Site) renderSubmit(w http.ResponseWriter, r *http.Request, status int, msg string) {
	players, err := s.deps.Players(r.Context())
	if err != nil {
		s.fail(w, r, "submit_score", err)
		return
	}
	s.render(w, r, status, "submit_score", page{Players: players, SubmissionID: uuid.NewString(), Error: msg})
}

func (s *Site) submit(w http.ResponseWriter, r *http.Request) {
	p1, p2 := ledger.CleanName(r.PostFormValue("p1_name")), ledger.CleanName(r.PostFormValue("p2_name"))
	// Picking the same player twice is treated as a misclick.
	if p1 == p2 {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s1, err1 := strconv.Atoi(strings.TrimSpace(r.PostFormValue("p1_score")))
	s2, err2 := strconv.Atoi(strings.TrimSpace(r.PostFormValue("p2_score")))
	if err := errors.Join(err1, err2); err != nil {
		s.renderSubmit(w, r, http.StatusBadRequest, "scores must be whole numbers")
		return
	}
	g := ledger.GameRecord{
		ID:      strings.TrimSpace(r.PostFormValue("submission_id")),
		Player1: p1,
		Score1:  s1,
		Player2: p2,
		Score2:  s2,
	}
	if _, _, err := s.deps.SubmitGame(r.Context(), g); err != nil {
		status, _ := api.Classify(err)
		if status >= http.StatusInternalServerError {
			s.fail(w, r, "submit_score", err)
			return
		}
		s.renderSubmit(w, r, status, err.Error())
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Site) calculator(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	players, err := s.deps.Players(ctx)
	if err != nil {
		s.fail(w, r, "calculator", err)
		return
	}
	p := page{Players: players, PlayerA: r.FormValue("p1_name"), PlayerB: r.FormValue("p2_name")}
	if p.PlayerA == "" || p.PlayerB == "" {
		s.render(w, r, http.StatusOK, "calculator", p)
		return
	}
	res, err := s.deps.Simulate(ctx, p.PlayerA, p.PlayerB)
	if err != nil {
		status, _ := api.Classify(err)
		if status >= http.StatusInternalServerError {
			s.fail(w, r, "calculator", err)
			return
		}
		p.Error = err.Error()
		s.render(w, r, status, "calculator", p)
		return
	}
	p.Result = &res
	s.render(w, r, http.StatusOK, "calculator", p)
}

func (s *Site) player(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	pl, err := s.deps.Player(r.Context(), name)
	switch {
	case errors.Is(err, ledger.ErrUnknownPlayer):
		s.render(w, r, http.StatusNotFound, "not_found", page{Name: name})
	case err != nil:
		s.fail(w, r, "player", err)
	default:
		s.render(w, r, http.StatusOK, "player", page{Player: &pl})
	}
}

func (s *Site) render(w http.ResponseWriter, r *http.Request, status int, name string, p page) { //nolint:gocritic // hugeParam: page is template data
	var buf bytes.Buffer
	if err := pages[name].ExecuteTemplate(&buf, "layout", p); err != nil {
		s.fail(w, r, name, fmt.Errorf("render %s: %w", name, err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Site) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, _ := api.Classify(err)
	if status >= http.StatusInternalServerError {
		s.log.Error(r.Context(), "page failed", logger.String("page", op), logger.Error(err))
	}
	http.Error(w, http.StatusText(status), status)
}
