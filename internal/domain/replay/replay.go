// Package replay rebuilds the full rating history from a ledger.
//
// Ratings are path dependent, so there is no incremental path: every call
// starts from the baseline row and walks the whole ledger.
package replay

import (
	"slices"

	"github.com/okian/paddle/internal/domain/ledger"
	"github.com/okian/paddle/internal/domain/rating"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithModel sets the rating update law.
func WithModel(m rating.Model) Option {
	return func(e *Engine) {
		if m != nil {
			e.model = m
		}
	}
}

// WithBaseline sets the rating every player starts from.
func WithBaseline(r int) Option {
	return func(e *Engine) {
		e.baseline = r
	}
}

// Engine replays ledgers. It holds configuration only and is safe for
// concurrent use.
type Engine struct {
	model    rating.Model
	baseline int
}

// New creates an Engine with the standard Elo model and a 1500 baseline.
func New(opts ...Option) *Engine {
	e := &Engine{
		model:    rating.Standard,
		baseline: ledger.BaselineRating,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Baseline returns the starting rating.
func (e *Engine) Baseline() int { return e.baseline }

// Replay validates l and computes its snapshot. Row 0 holds the baseline for
// every registered player; row i holds ratings after game i.
func (e *Engine) Replay(l *ledger.Ledger) (*Snapshot, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}

	rows := len(l.Games) + 1
	s := &Snapshot{
		players: l.PlayerNames(),
		games:   slices.Clone(l.Games),
		ratings: make(map[string][]int, len(l.Players)),
		played:  make(map[string][]int, len(l.Players)),
	}
	for _, p := range s.players {
		col := make([]int, rows)
		col[0] = e.baseline
		s.ratings[p] = col
	}

	for i, g := range l.Games {
		row := i + 1
		for _, col := range s.ratings {
			col[row] = col[row-1]
		}
		s.played[g.Player1] = append(s.played[g.Player1], row)
		s.played[g.Player2] = append(s.played[g.Player2], row)

		if !g.Decisive() {
			continue
		}
		c1, c2 := s.ratings[g.Player1], s.ratings[g.Player2]
		outcome := rating.Loss
		if g.Score1 > g.Score2 {
			outcome = rating.Win
		}
		c1[row], c2[row] = e.model.Update(c1[row-1], c2[row-1], outcome)
	}
	return s, nil
}

// Replay runs the default engine.
func Replay(l *ledger.Ledger) (*Snapshot, error) {
	return New().Replay(l)
}

// Model returns the rating update law.
func (e *Engine) Model() rating.Model { return e.model }
