// Package whatif projects how one more game between two players would move
// the leaderboard. It works on clones and never writes back.
package whatif

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/okian/paddle/internal/domain/ledger"
	"github.com/okian/paddle/internal/domain/ranking"
)

// Synthetic scores for the hypothetical game. Only the winner matters.
const (
	WinningScore = 21
	LosingScore  = 0
)

// Delta is one player's movement in a branch, measured against the real board.
type Delta struct {
	Player         string  `json:"player"`
	Composite      float64 `json:"composite_score"`
	CompositeDelta float64 `json:"composite_delta"`
	Rank           int     `json:"rank"`
	PreviousRank   int     `json:"previous_rank"`
	Rating         int     `json:"rating"`
	RatingDelta    int     `json:"rating_delta"`
}

// Branch is the outcome of one hypothetical game.
type Branch struct {
	Winner string `json:"winner"`
	A      Delta  `json:"player_a"`
	B      Delta  `json:"player_b"`
}

// Result holds both branches.
type Result struct {
	PlayerA string `json:"player_a"`
	PlayerB string `json:"player_b"`
	// Expected is the model's probability that A wins, when the model
	// exposes one.
	Expected float64 `json:"expected_a"`
	IfAWins  Branch  `json:"if_a_wins"`
	IfBWins  Branch  `json:"if_b_wins"`
}

// Option applies a configuration option to the Simulator.
type Option func(*Simulator)

// WithProjector sets the projector used for both branches.
func WithProjector(p *ranking.Projector) Option {
	return func(s *Simulator) {
		if p != nil {
			s.projector = p
		}
	}
}

// Simulator runs what-if projections. It is safe for concurrent use.
type Simulator struct {
	projector *ranking.Projector
}

// New creates a Simulator with the default projector.
func New(opts ...Option) *Simulator {
	s := &Simulator{projector: ranking.New()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type expecter interface {
	Expected(a, b int) float64
}

// Simulate projects "A beats B" and "B beats A" against l. board must be
// the real leaderboard of l. Neither input is modified.
func (s *Simulator) Simulate(ctx context.Context, l *ledger.Ledger, board ranking.Board, a, b string) (Result, error) {
	a, b = ledger.CleanName(a), ledger.CleanName(b)
	if a == b {
		return Result{}, fmt.Errorf("%w: %q", ledger.ErrSelfPlay, a)
	}
	before := make(map[string]ranking.Entry, 2)
	for _, p := range []string{a, b} {
		if !l.HasPlayer(p) {
			return Result{}, fmt.Errorf("%w: %q", ledger.ErrUnknownPlayer, p)
		}
		e, ok := board.Find(p)
		if !ok {
			return Result{}, fmt.Errorf("%w: %q is not on the leaderboard", ledger.ErrUnknownPlayer, p)
		}
		before[p] = e
	}

	res := Result{PlayerA: a, PlayerB: b}
	if ex, ok := s.projector.Engine().Model().(expecter); ok {
		res.Expected = ex.Expected(before[a].Rating, before[b].Rating)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		br, err := s.branch(ctx, l, before, a, b, a)
		res.IfAWins = br
		return err
	})
	g.Go(func() error {
		br, err := s.branch(ctx, l, before, a, b, b)
		res.IfBWins = br
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (s *Simulator) branch(ctx context.Context, l *ledger.Ledger, before map[string]ranking.Entry, a, b, winner string) (Branch, error) {
	if err := ctx.Err(); err != nil {
		return Branch{}, err
	}

	g := ledger.GameRecord{ID: "whatif", Player1: a, Player2: b, Score1: LosingScore, Score2: WinningScore}
	if winner == a {
		g.Score1, g.Score2 = WinningScore, LosingScore
	}
	if len(l.Games) > 0 {
		g.Timestamp = l.Games[len(l.Games)-1].Timestamp
	}

	hyp, err := l.SubmitGame(g)
	if err != nil {
		return Branch{}, err
	}
	_, after, err := s.projector.Compute(hyp)
	if err != nil {
		return Branch{}, err
	}

	delta := func(p string) Delta {
		prev := before[p]
		cur, _ := after.Find(p)
		return Delta{
			Player:         p,
			Composite:      cur.Composite,
			CompositeDelta: cur.Composite - prev.Composite,
			Rank:           cur.Rank,
			PreviousRank:   prev.Rank,
			Rating:         cur.Rating,
			RatingDelta:    cur.Rating - prev.Rating,
		}
	}
	return Branch{Winner: winner, A: delta(a), B: delta(b)}, nil
}

// Simulate runs the default simulator.
func Simulate(ctx context.Context, l *ledger.Ledger, board ranking.Board, a, b string) (Result, error) {
	return New().Simulate(ctx, l, board, a, b)
}
