package loadgen

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
)

// Normalize fills zero fields with defaults and validates the rest.
func (c *Config) Normalize() error {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Players == 0 {
		c.Players = DefaultPlayers
	}
	if c.Games == 0 {
		c.Games = DefaultGames
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Seed == 0 {
		c.Seed = rand.Uint64()
	}
	switch {
	case c.Players < 2:
		return fmt.Errorf("%w: need at least 2 players, got %d", ErrInvalidConfig, c.Players)
	case c.Games < 0:
		return fmt.Errorf("%w: negative game count %d", ErrInvalidConfig, c.Games)
	case c.TieRate < 0 || c.TieRate > 1:
		return fmt.Errorf("%w: tie rate %v outside [0,1]", ErrInvalidConfig, c.TieRate)
	case c.ResubmitRate < 0 || c.ResubmitRate > 1:
		return fmt.Errorf("%w: resubmit rate %v outside [0,1]", ErrInvalidConfig, c.ResubmitRate)
	}
	return nil
}

// generator produces a reproducible league from a seed.
type generator struct {
	rng *rand.Rand
}

func newGenerator(seed uint64) *generator {
	return &generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// players names n players unique to runID so runs against a shared server
// never collide.
func (g *generator) players(runID string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("p%03d-%s", i, runID)
	}
	return out
}

// games draws n distinct games between random pairs, then appends resubmitted
// copies and shuffles. It returns the full submission list, the number of
// copies and the number of ties among the distinct games.
func (g *generator) games(players []string, n int, tieRate, resubmitRate float64) (out []Game, resubmits, ties int) {
	out = make([]Game, 0, n+int(float64(n)*resubmitRate)+1)
	for range n {
		game := g.game(players, tieRate)
		if game.Tie() {
			ties++
		}
		out = append(out, game)
	}
	for i := range n {
		if g.rng.Float64() < resubmitRate {
			out = append(out, out[i])
			resubmits++
		}
	}
	g.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out, resubmits, ties
}

func (g *generator) game(players []string, tieRate float64) Game {
	a := g.rng.IntN(len(players))
	b := g.rng.IntN(len(players) - 1)
	if b >= a {
		b++
	}
	game := Game{SubmissionID: uuid.NewString(), Player1: players[a], Player2: players[b]}
	switch {
	case g.rng.Float64() < tieRate:
		s := minTieScore + g.rng.IntN(tieSpread)
		game.Score1, game.Score2 = s, s
	case g.rng.IntN(2) == 0:
		game.Score1, game.Score2 = winningScore, g.rng.IntN(maxLoserGap+1)
	default:
		game.Score1, game.Score2 = g.rng.IntN(maxLoserGap+1), winningScore
	}
	return game
}
