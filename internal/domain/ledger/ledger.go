// Package ledger holds the append-only record of registrations and game
// outcomes. It is the single source of truth: ratings and leaderboards are
// projections recomputed from it.
//
// Every mutating operation returns a new Ledger and leaves the receiver
// untouched, so a Ledger value can be shared between concurrent readers.
package ledger

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// BaselineRating is the rating every player holds before their first game.
const BaselineRating = 1500

// GameRecord is one head-to-head result. Equal scores are a tie: no decision.
type GameRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Player1   string    `json:"player1"`
	Score1    int       `json:"score1"`
	Player2   string    `json:"player2"`
	Score2    int       `json:"score2"`
}

// Decisive reports whether the game has a winner.
func (g GameRecord) Decisive() bool { return g.Score1 != g.Score2 }

// Involves reports whether player took part in the game.
func (g GameRecord) Involves(player string) bool {
	return g.Player1 == player || g.Player2 == player
}

// Opponent returns the other participant. ok is false when player did not play.
func (g GameRecord) Opponent(player string) (string, bool) {
	switch player {
	case g.Player1:
		return g.Player2, true
	case g.Player2:
		return g.Player1, true
	}
	return "", false
}

// Winner returns the winning player, or false for a tie.
func (g GameRecord) Winner() (string, bool) {
	switch {
	case g.Score1 > g.Score2:
		return g.Player1, true
	case g.Score2 > g.Score1:
		return g.Player2, true
	}
	return "", false
}

// Player is a registration event. Registration order is column order in
// every rating table derived from the ledger.
type Player struct {
	Name         string    `json:"name"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Ledger is the ordered set of registrations and games.
type Ledger struct {
	Players []Player     `json:"players"`
	Games   []GameRecord `json:"games"`

	// Revision is the storage revision this ledger was loaded at. Stores use
	// it to reject saves based on a stale read.
	Revision uint64 `json:"revision"`
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Clone returns a deep copy.
func (l *Ledger) Clone() *Ledger {
	if l == nil {
		return New()
	}
	return &Ledger{
		Players:  slices.Clone(l.Players),
		Games:    slices.Clone(l.Games),
		Revision: l.Revision,
	}
}

// CleanName is the form a player name is stored and looked up in.
func CleanName(name string) string { return strings.TrimSpace(name) }

// HasPlayer reports whether name is registered.
func (l *Ledger) HasPlayer(name string) bool {
	name = CleanName(name)
	return slices.ContainsFunc(l.Players, func(p Player) bool { return p.Name == name })
}

// PlayerNames returns registered names in registration order.
func (l *Ledger) PlayerNames() []string {
	names := make([]string, len(l.Players))
	for i, p := range l.Players {
		names[i] = p.Name
	}
	return names
}

// GamesFor returns every game involving player, in ledger order.
func (l *Ledger) GamesFor(player string) []GameRecord {
	var out []GameRecord
	for _, g := range l.Games {
		if g.Involves(player) {
			out = append(out, g)
		}
	}
	return out
}

// Recent returns up to n games, most recent first.
func (l *Ledger) Recent(n int) []GameRecord {
	if n <= 0 {
		return nil
	}
	n = min(n, len(l.Games))
	out := make([]GameRecord, 0, n)
	for i := len(l.Games) - 1; i >= len(l.Games)-n; i-- {
		out = append(out, l.Games[i])
	}
	return out
}

// RegisterPlayer returns a copy of the ledger with name registered.
func (l *Ledger) RegisterPlayer(name string, at time.Time) (*Ledger, error) {
	name = CleanName(name)
	if name == "" {
		return nil, ErrInvalidPlayer
	}
	if l.HasPlayer(name) {
		return nil, fmt.Errorf("%w: %q", ErrDuplicatePlayer, name)
	}
	next := l.Clone()
	next.Players = append(next.Players, Player{Name: name, RegisteredAt: at})
	return next, nil
}

// SubmitGame returns a copy of the ledger with g appended. Ties are legal.
func (l *Ledger) SubmitGame(g GameRecord) (*Ledger, error) {
	g.Player1, g.Player2 = CleanName(g.Player1), CleanName(g.Player2)
	if err := check(g, l.index()); err != nil {
		return nil, err
	}
	next := l.Clone()
	next.Games = append(next.Games, g)
	return next, nil
}

// Validate checks every game against the registered players. Replay calls
// it before computing anything, so a bad ledger fails without partial work.
func (l *Ledger) Validate() error {
	seen := make(map[string]struct{}, len(l.Players))
	for _, p := range l.Players {
		if strings.TrimSpace(p.Name) == "" {
			return ErrInvalidPlayer
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicatePlayer, p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	for i, g := range l.Games {
		if err := check(g, seen); err != nil {
			return fmt.Errorf("game %d: %w", i+1, err)
		}
	}
	return nil
}

func (l *Ledger) index() map[string]struct{} {
	known := make(map[string]struct{}, len(l.Players))
	for _, p := range l.Players {
		known[p.Name] = struct{}{}
	}
	return known
}

func check(g GameRecord, known map[string]struct{}) error {
	if g.Player1 == g.Player2 {
		return fmt.Errorf("%w: %q", ErrSelfPlay, g.Player1)
	}
	for _, p := range []string{g.Player1, g.Player2} {
		if _, ok := known[p]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownPlayer, p)
		}
	}
	if g.Score1 < 0 || g.Score2 < 0 {
		return fmt.Errorf("%w: scores must not be negative", ErrInvalidScore)
	}
	return nil
}
