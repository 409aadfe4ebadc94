// Package rating implements the pairwise Elo update law used to replay the
// ledger. It is pure: no state, no errors.
package rating

import "math"

// Default model parameters.
const (
	DefaultK     = 32
	DefaultScale = 400
)

// Outcome is the result of a game from the first player's point of view.
type Outcome int

// Outcomes of a decisive game. Ties never reach the model.
const (
	Loss Outcome = 0
	Win  Outcome = 1
)

// Model updates two ratings after a decisive game.
type Model interface {
	// Update returns the new ratings of a and b given a's outcome.
	Update(a, b int, outcomeA Outcome) (int, int)
}

// Option applies a configuration option to an Elo model.
type Option func(*Elo)

// WithKFactor sets the maximum adjustment per game.
func WithKFactor(k float64) Option {
	return func(e *Elo) {
		if k > 0 {
			e.K = k
		}
	}
}

// WithScale sets the rating difference giving 10-to-1 odds.
func WithScale(scale float64) Option {
	return func(e *Elo) {
		if scale > 0 {
			e.Scale = scale
		}
	}
}

// Elo is the classic logistic model with a fixed K factor.
type Elo struct {
	K     float64
	Scale float64
}

// Standard is K=32, scale 400.
var Standard = New()

// New creates an Elo model with defaults and options applied.
func New(opts ...Option) Elo {
	e := Elo{K: DefaultK, Scale: DefaultScale}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// Expected returns the probability that a player rated a beats one rated b.
func (e Elo) Expected(a, b int) float64 {
	return 1 / (1 + math.Pow(10, float64(b-a)/e.Scale))
}

// Update applies rating + round(K * (outcome - expected)) to both players.
//
// Each side is rounded on its own (half to even), so the two adjustments
// need not cancel: total rating can drift by one point per decisive game.
func (e Elo) Update(a, b int, outcomeA Outcome) (int, int) {
	sa := float64(outcomeA)
	sb := 1 - sa
	na := a + int(math.RoundToEven(e.K*(sa-e.Expected(a, b))))
	nb := b + int(math.RoundToEven(e.K*(sb-e.Expected(b, a))))
	return na, nb
}

// Expected evaluates the Standard model.
func Expected(a, b int) float64 { return Standard.Expected(a, b) }

// Update evaluates the Standard model.
func Update(a, b int, outcomeA Outcome) (int, int) { return Standard.Update(a, b, outcomeA) }
