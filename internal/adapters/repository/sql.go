package repository

import (
	"time"

	"github.com/okian/paddle/internal/domain/ledger"
	"github.com/okian/paddle/internal/domain/ranking"
)

// Row shapes shared by the SQL backends.

type playerRow struct {
	Seq          int       `db:"seq"`
	Name         string    `db:"name"`
	RegisteredAt time.Time `db:"registered_at"`
}

type gameRow struct {
	Seq     int       `db:"seq"`
	ID      string    `db:"id"`
	Ts      time.Time `db:"ts"`
	Player1 string    `db:"player1"`
	Score1  int       `db:"score1"`
	Player2 string    `db:"player2"`
	Score2  int       `db:"score2"`
}

type entryRow struct {
	Position           int     `db:"position"`
	Player             string  `db:"player"`
	Rank               int     `db:"rank"`
	Composite          float64 `db:"composite"`
	Rating             int     `db:"rating"`
	ZRating            float64 `db:"z_rating"`
	AvgOpponentRating  float64 `db:"avg_opponent_rating"`
	ZAvgOpponentRating float64 `db:"z_avg_opponent_rating"`
	WinPct             float64 `db:"win_pct"`
	ZWinPct            float64 `db:"z_win_pct"`
	Wins               int     `db:"wins"`
	Losses             int     `db:"losses"`
	Games              int     `db:"games"`
}

func playerRows(l *ledger.Ledger) []playerRow {
	out := make([]playerRow, len(l.Players))
	for i, p := range l.Players {
		out[i] = playerRow{Seq: i + 1, Name: p.Name, RegisteredAt: p.RegisteredAt.UTC()}
	}
	return out
}

func gameRows(l *ledger.Ledger) []gameRow {
	out := make([]gameRow, len(l.Games))
	for i, g := range l.Games {
		out[i] = gameRow{Seq: i + 1, ID: g.ID, Ts: g.Timestamp.UTC(), Player1: g.Player1, Score1: g.Score1, Player2: g.Player2, Score2: g.Score2}
	}
	return out
}

func entryRows(b ranking.Board) []entryRow {
	out := make([]entryRow, len(b.Entries))
	for i, e := range b.Entries {
		out[i] = entryRow{
			Position: i + 1, Player: e.Player, Rank: e.Rank, Composite: e.Composite,
			Rating: e.Rating, ZRating: e.ZRating,
			AvgOpponentRating: e.AvgOpponentRating, ZAvgOpponentRating: e.ZAvgOpponentRating,
			WinPct: e.WinPct, ZWinPct: e.ZWinPct,
			Wins: e.Wins, Losses: e.Losses, Games: e.Games,
		}
	}
	return out
}

func (r playerRow) player() ledger.Player {
	return ledger.Player{Name: r.Name, RegisteredAt: r.RegisteredAt.UTC()}
}

func (r gameRow) game() ledger.GameRecord {
	return ledger.GameRecord{ID: r.ID, Timestamp: r.Ts.UTC(), Player1: r.Player1, Score1: r.Score1, Player2: r.Player2, Score2: r.Score2}
}
