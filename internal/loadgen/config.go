package loadgen

import (
	"time"

	"github.com/okian/paddle/internal/domain/types"
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL      string        // API base URL, including any mount prefix
	Players      int           // Players to register
	Games        int           // Distinct games to submit
	Workers      int           // Concurrent submitters
	TieRate      float64       // Fraction of games that end level
	ResubmitRate float64       // Fraction of games sent a second time with the same id
	Timeout      time.Duration // HTTP request timeout
	Seed         uint64        // 0 picks a random seed
	Verbose      bool          // Log every failed request
}

// Game is the submission body sent to POST /games.
type Game struct {
	SubmissionID string `json:"submission_id"`
	Player1      string `json:"player1"`
	Score1       int    `json:"score1"`
	Player2      string `json:"player2"`
	Score2       int    `json:"score2"`
}

// Tie reports whether the game has no winner.
func (g Game) Tie() bool { return g.Score1 == g.Score2 }

// AckResponse is the POST /games response.
type AckResponse struct {
	Status    string     `json:"status"`
	Duplicate bool       `json:"duplicate"`
	Game      types.Game `json:"game"`
}

// Stats holds run statistics.
type Stats struct {
	Seed               uint64
	PlayersRegistered  int
	GamesGenerated     int
	Resubmissions      int
	Ties               int
	Submitted          int
	Accepted           int
	Duplicates         int
	Backpressured      int
	Failed             int
	RanksRetrieved     int
	LeaderboardEntries int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
