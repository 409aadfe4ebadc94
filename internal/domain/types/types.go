// Package types contains the JSON shapes returned by the HTTP and MCP
// surfaces. Core values stay unrounded; Display fields carry the two
// decimal presentation.
package types

import (
	"math"
	"strconv"
	"time"

	"github.com/okian/paddle/internal/domain/ledger"
	"github.com/okian/paddle/internal/domain/ranking"
	"github.com/okian/paddle/internal/domain/replay"
	"github.com/okian/paddle/internal/domain/whatif"
)

// Round2 rounds v to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Fixed2 formats v with two decimals. Negative zero prints as 0.00.
func Fixed2(v float64) string {
	r := Round2(v)
	if r == 0 {
		r = 0
	}
	return strconv.FormatFloat(r, 'f', 2, 64)
}

// Display is the presentation form of an entry's derived numbers.
type Display struct {
	Composite         string `json:"composite_score"`
	AvgOpponentRating string `json:"avg_opponent_rating"`
	WinPct            string `json:"win_pct"`
}

// Entry is a leaderboard row.
type Entry struct {
	ranking.Entry
	Display Display `json:"display"`
}

// NewEntry wraps a ranking entry.
func NewEntry(e ranking.Entry) Entry {
	return Entry{
		Entry: e,
		Display: Display{
			Composite:         Fixed2(e.Composite),
			AvgOpponentRating: Fixed2(e.AvgOpponentRating),
			WinPct:            Fixed2(e.WinPct * 100),
		},
	}
}

// Leaderboard is the /leaderboard response.
type Leaderboard struct {
	Entries    []Entry          `json:"entries"`
	Total      int              `json:"total"`
	Metrics    []ranking.Metric `json:"metrics"`
	Degenerate []ranking.Metric `json:"degenerate,omitempty"`
}

// NewLeaderboard renders up to limit entries of b. limit <= 0 renders all.
func NewLeaderboard(b ranking.Board, limit int) Leaderboard {
	top := b.Top(limit)
	out := Leaderboard{
		Entries:    make([]Entry, len(top)),
		Total:      len(b.Entries),
		Metrics:    b.Metrics,
		Degenerate: b.Degenerate,
	}
	for i, e := range top {
		out.Entries[i] = NewEntry(e)
	}
	return out
}

// Game is a ledger record with its outcome spelled out.
type Game struct {
	ledger.GameRecord
	Winner string `json:"winner,omitempty"`
	Tie    bool   `json:"tie"`
}

// NewGame wraps a record.
func NewGame(g ledger.GameRecord) Game {
	w, ok := g.Winner()
	return Game{GameRecord: g, Winner: w, Tie: !ok}
}

// NewGames wraps records, keeping order.
func NewGames(gs []ledger.GameRecord) []Game {
	out := make([]Game, len(gs))
	for i, g := range gs {
		out[i] = NewGame(g)
	}
	return out
}

// PlayerGame is one game seen from a player's side.
type PlayerGame struct {
	Game
	Opponent      string `json:"opponent"`
	Score         int    `json:"score"`
	OpponentScore int    `json:"opponent_score"`
	Result        string `json:"result"` // win, loss or tie
	RatingAfter   int    `json:"rating_after"`
}

// Player is the /players/{name} response.
type Player struct {
	Entry        Entry        `json:"entry"`
	RegisteredAt time.Time    `json:"registered_at"`
	Games        []PlayerGame `json:"games"`
	History      []int        `json:"history"`
}

// NewPlayer builds the player view from the ledger, its snapshot and board.
// ok is false when name is not on the board.
func NewPlayer(l *ledger.Ledger, s *replay.Snapshot, b ranking.Board, name string) (Player, bool) {
	e, ok := b.Find(name)
	if !ok {
		return Player{}, false
	}
	p := Player{Entry: NewEntry(e), History: s.History(name), Games: []PlayerGame{}}
	for _, reg := range l.Players {
		if reg.Name == name {
			p.RegisteredAt = reg.RegisteredAt
			break
		}
	}
	for i, g := range l.Games {
		opp, ok := g.Opponent(name)
		if !ok {
			continue
		}
		pg := PlayerGame{Game: NewGame(g), Opponent: opp, Score: g.Score1, OpponentScore: g.Score2}
		if g.Player2 == name {
			pg.Score, pg.OpponentScore = g.Score2, g.Score1
		}
		switch {
		case pg.Score > pg.OpponentScore:
			pg.Result = "win"
		case pg.Score < pg.OpponentScore:
			pg.Result = "loss"
		default:
			pg.Result = "tie"
		}
		pg.RatingAfter, _ = s.Rating(name, i+1)
		p.Games = append(p.Games, pg)
	}
	return p, true
}

// SnapshotRow is one row of the rating table.
type SnapshotRow struct {
	Row     int                `json:"row"`
	Game    *ledger.GameRecord `json:"game,omitempty"`
	Ratings map[string]int     `json:"ratings"`
}

// Snapshot is the /snapshot response.
type Snapshot struct {
	Players []string      `json:"players"`
	Rows    []SnapshotRow `json:"rows"`
}

// NewSnapshot renders s. Row 0 has no game.
func NewSnapshot(s *replay.Snapshot) Snapshot {
	games := s.Games()
	out := Snapshot{Players: s.Players(), Rows: make([]SnapshotRow, s.Rows())}
	for r := range out.Rows {
		out.Rows[r] = SnapshotRow{Row: r, Ratings: s.Row(r)}
		if r > 0 {
			out.Rows[r].Game = &games[r-1]
		}
	}
	return out
}

// Delta is a what-if delta with its presentation values.
type Delta struct {
	whatif.Delta
	CompositeDeltaDisplay string `json:"composite_delta_display"`
}

// Branch is one what-if branch.
type Branch struct {
	Winner string `json:"winner"`
	A      Delta  `json:"player_a"`
	B      Delta  `json:"player_b"`
}

// WhatIf is the /whatif response.
type WhatIf struct {
	PlayerA  string  `json:"player_a"`
	PlayerB  string  `json:"player_b"`
	Expected float64 `json:"expected_a"`
	IfAWins  Branch  `json:"if_a_wins"`
	IfBWins  Branch  `json:"if_b_wins"`
}

// NewWhatIf renders a simulation result.
func NewWhatIf(r whatif.Result) WhatIf {
	delta := func(d whatif.Delta) Delta {
		return Delta{Delta: d, CompositeDeltaDisplay: signed2(d.CompositeDelta)}
	}
	branch := func(b whatif.Branch) Branch {
		return Branch{Winner: b.Winner, A: delta(b.A), B: delta(b.B)}
	}
	return WhatIf{
		PlayerA:  r.PlayerA,
		PlayerB:  r.PlayerB,
		Expected: r.Expected,
		IfAWins:  branch(r.IfAWins),
		IfBWins:  branch(r.IfBWins),
	}
}

func signed2(v float64) string {
	if Round2(v) > 0 {
		return "+" + Fixed2(v)
	}
	return Fixed2(v)
}

// Stats is the /stats response.
type Stats struct {
	Started       bool    `json:"started"`
	Players       int     `json:"players"`
	Games         int     `json:"games"`
	Revision      uint64  `json:"revision"`
	QueueSize     int     `json:"queue_size"`
	QueueCapacity int     `json:"queue_capacity"`
	Workers       int     `json:"workers"`
	Processed     int64   `json:"processed"`
	Conflicts     int64   `json:"conflicts"`
	Duplicates    int64   `json:"duplicates"`
	Dedupe        int     `json:"dedupe_size"`
	StoreDriver   string  `json:"store_driver"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Error is the JSON error body.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
