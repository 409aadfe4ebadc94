package replay

import (
	"slices"

	"github.com/okian/paddle/internal/domain/ledger"
)

// Snapshot is the per-game rating table produced by a replay, keyed by
// player rather than by column position.
type Snapshot struct {
	players []string
	games   []ledger.GameRecord
	ratings map[string][]int
	played  map[string][]int
}

// Players returns player names in registration order.
func (s *Snapshot) Players() []string { return slices.Clone(s.players) }

// Games returns the replayed games in ledger order.
func (s *Snapshot) Games() []ledger.GameRecord { return slices.Clone(s.games) }

// Rows returns the number of rows including the initial one.
func (s *Snapshot) Rows() int { return len(s.games) + 1 }

// Has reports whether player has a column.
func (s *Snapshot) Has(player string) bool {
	_, ok := s.ratings[player]
	return ok
}

// Rating returns player's rating after row. ok is false for an unknown
// player or an out of range row.
func (s *Snapshot) Rating(player string, row int) (int, bool) {
	col, ok := s.ratings[player]
	if !ok || row < 0 || row >= len(col) {
		return 0, false
	}
	return col[row], true
}

// Final returns player's rating in the last row.
func (s *Snapshot) Final(player string) (int, bool) {
	return s.Rating(player, s.Rows()-1)
}

// History returns a copy of player's column.
func (s *Snapshot) History(player string) []int {
	return slices.Clone(s.ratings[player])
}

// Participation returns the rows in which player took part, ascending.
func (s *Snapshot) Participation(player string) []int {
	return slices.Clone(s.played[player])
}

// Row returns every player's rating after row, or nil when out of range.
func (s *Snapshot) Row(row int) map[string]int {
	if row < 0 || row >= s.Rows() {
		return nil
	}
	out := make(map[string]int, len(s.players))
	for p, col := range s.ratings {
		out[p] = col[row]
	}
	return out
}
