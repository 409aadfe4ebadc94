// Package ranking projects a replayed ledger onto a standardized, tie-aware
// leaderboard.
//
// Every projection is computed from scratch: z-scores depend on the whole
// population, so no entry can be patched on its own.
package ranking

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/okian/paddle/internal/domain/ledger"
	"github.com/okian/paddle/internal/domain/replay"
)

// Entry is one leaderboard row.
type Entry struct {
	Player             string  `json:"player"`
	Rank               int     `json:"rank"`
	Composite          float64 `json:"composite_score"`
	Rating             int     `json:"rating"`
	ZRating            float64 `json:"z_rating"`
	AvgOpponentRating  float64 `json:"avg_opponent_rating"`
	ZAvgOpponentRating float64 `json:"z_avg_opponent_rating"`
	WinPct             float64 `json:"win_pct"`
	ZWinPct            float64 `json:"z_win_pct"`
	Wins               int     `json:"wins"`
	Losses             int     `json:"losses"`
	Games              int     `json:"games"`
}

// Board is an ordered leaderboard.
type Board struct {
	Entries []Entry `json:"entries"`
	// Metrics is the enabled set the composite was built from.
	Metrics []Metric `json:"metrics"`
	// Degenerate lists enabled metrics whose z-scores were zeroed.
	Degenerate []Metric `json:"degenerate,omitempty"`
}

// Find returns the entry for player.
func (b Board) Find(player string) (Entry, bool) {
	for _, e := range b.Entries {
		if e.Player == player {
			return e, true
		}
	}
	return Entry{}, false
}

// Top returns up to n leading entries. n <= 0 returns all of them.
func (b Board) Top(n int) []Entry {
	if n <= 0 || n > len(b.Entries) {
		n = len(b.Entries)
	}
	return slices.Clone(b.Entries[:n])
}

// Clone returns a deep copy.
func (b Board) Clone() Board {
	return Board{
		Entries:    slices.Clone(b.Entries),
		Metrics:    slices.Clone(b.Metrics),
		Degenerate: slices.Clone(b.Degenerate),
	}
}

// Option applies a configuration option to the Projector.
type Option func(*Projector)

// WithMetrics sets the enabled metric set. An empty set keeps the default.
func WithMetrics(metrics ...Metric) Option {
	return func(p *Projector) {
		if len(metrics) > 0 {
			p.metrics = slices.Clone(metrics)
		}
	}
}

// WithEngine sets the replay engine used by Compute.
func WithEngine(e *replay.Engine) Option {
	return func(p *Projector) {
		if e != nil {
			p.engine = e
		}
	}
}

// Projector builds leaderboards. It holds configuration only and is safe
// for concurrent use.
type Projector struct {
	metrics []Metric
	engine  *replay.Engine
}

// New creates a Projector with every metric enabled.
func New(opts ...Option) *Projector {
	p := &Projector{
		metrics: slices.Clone(AllMetrics),
		engine:  replay.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Metrics returns the enabled metric set.
func (p *Projector) Metrics() []Metric { return slices.Clone(p.metrics) }

// Engine returns the replay engine used by Compute.
func (p *Projector) Engine() *replay.Engine { return p.engine }

// Compute replays l and projects the result.
func (p *Projector) Compute(l *ledger.Ledger) (*replay.Snapshot, Board, error) {
	s, err := p.engine.Replay(l)
	if err != nil {
		return nil, Board{}, err
	}
	b, err := p.Project(l, s)
	if err != nil {
		return nil, Board{}, err
	}
	return s, b, nil
}

// Project derives the leaderboard from l and its snapshot s.
func (p *Projector) Project(l *ledger.Ledger, s *replay.Snapshot) (Board, error) {
	players := l.PlayerNames()
	n := len(players)
	entries := make([]Entry, n)

	for i, name := range players {
		final, ok := s.Final(name)
		if !ok {
			return Board{}, fmt.Errorf("%w: %q has no rating column", ledger.ErrUnknownPlayer, name)
		}
		e := Entry{Player: name, Rating: final}

		for _, row := range s.Participation(name) {
			prev, _ := s.Rating(name, row-1)
			cur, _ := s.Rating(name, row)
			switch {
			case cur > prev:
				e.Wins++
			case cur < prev:
				e.Losses++
			}
		}
		if d := e.Wins + e.Losses; d > 0 {
			e.WinPct = float64(e.Wins) / float64(d)
		}
		entries[i] = e
	}

	// Opponents are judged by their final rating, not their rating at the
	// time of the game.
	sum := make([]float64, n)
	idx := make(map[string]int, n)
	for i, name := range players {
		idx[name] = i
	}
	for _, g := range s.Games() {
		i1, i2 := idx[g.Player1], idx[g.Player2]
		entries[i1].Games++
		entries[i2].Games++
		sum[i1] += float64(entries[i2].Rating)
		sum[i2] += float64(entries[i1].Rating)
	}
	for i := range entries {
		if entries[i].Games > 0 {
			entries[i].AvgOpponentRating = sum[i] / float64(entries[i].Games)
		}
	}

	board := Board{Metrics: slices.Clone(p.metrics)}
	all := make([]bool, n)
	for i := range all {
		all[i] = true
	}
	for _, m := range p.metrics {
		values := make([]float64, n)
		present := all
		switch m {
		case MetricRating:
			for i, e := range entries {
				values[i] = float64(e.Rating)
			}
		case MetricAvgOpponent:
			present = make([]bool, n)
			for i, e := range entries {
				values[i] = e.AvgOpponentRating
				present[i] = e.Games > 0
			}
		case MetricWinPct:
			for i, e := range entries {
				values[i] = e.WinPct
			}
		}

		z, ok := standardize(values, present)
		if !ok {
			board.Degenerate = append(board.Degenerate, m)
		}
		for i := range entries {
			switch m {
			case MetricRating:
				entries[i].ZRating = z[i]
			case MetricAvgOpponent:
				entries[i].ZAvgOpponentRating = z[i]
			case MetricWinPct:
				entries[i].ZWinPct = z[i]
			}
			entries[i].Composite += z[i]
		}
	}
	if k := float64(len(p.metrics)); k > 0 {
		for i := range entries {
			entries[i].Composite /= k
		}
	}

	slices.SortStableFunc(entries, func(a, b Entry) int {
		if c := cmp.Compare(b.Composite, a.Composite); c != 0 {
			return c
		}
		return cmp.Compare(a.Player, b.Player)
	})
	AssignRanks(entries)

	board.Entries = entries
	return board, nil
}

// AssignRanks ranks entries already sorted by composite, descending.
//
// Tied entries share a rank. The next distinct entry takes its 1-based
// position, so a block of three tied at rank 1 is followed by rank 4.
func AssignRanks(entries []Entry) {
	for i := range entries {
		if i == 0 || entries[i].Composite < entries[i-1].Composite {
			entries[i].Rank = i + 1
			continue
		}
		entries[i].Rank = entries[i-1].Rank
	}
}

// Compute replays and projects l with the default configuration.
func Compute(l *ledger.Ledger) (*replay.Snapshot, Board, error) {
	return New().Compute(l)
}
