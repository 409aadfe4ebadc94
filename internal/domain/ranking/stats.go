package ranking

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// standardize returns z-scores for values. present marks members of the
// population; absent members and every member of a degenerate population
// get 0. ok is false when the population is degenerate.
func standardize(values []float64, present []bool) (z []float64, ok bool) {
	z = make([]float64, len(values))

	// Absent members carry weight 0 and a 0 value, so they move neither the
	// mean nor the sample stddev.
	xs := make([]float64, len(values))
	weights := make([]float64, len(values))
	var n int
	for i, v := range values {
		if present[i] {
			xs[i], weights[i] = v, 1
			n++
		}
	}
	if n < 2 {
		return z, false
	}

	mean, sd := stat.MeanStdDev(xs, weights)
	if sd == 0 || math.IsNaN(sd) || math.IsInf(sd, 0) {
		return z, false
	}

	for i, v := range values {
		if present[i] {
			z[i] = stat.StdScore(v, mean, sd)
		}
	}
	return z, true
}
