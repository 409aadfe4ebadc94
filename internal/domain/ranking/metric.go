package ranking

import (
	"fmt"
	"slices"
	"strings"
)

// Metric names one standardized column of the leaderboard.
type Metric string

// Supported metrics.
const (
	MetricRating      Metric = "rating"
	MetricAvgOpponent Metric = "avg_opponent_rating"
	MetricWinPct      Metric = "win_pct"
)

// AllMetrics is the default enabled set, in composite order.
var AllMetrics = []Metric{MetricRating, MetricAvgOpponent, MetricWinPct}

// ParseMetrics turns names into a deduplicated metric set kept in
// AllMetrics order.
func ParseMetrics(names []string) ([]Metric, error) {
	want := make(map[Metric]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		m := Metric(n)
		if !slices.Contains(AllMetrics, m) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, n)
		}
		want[m] = true
	}
	if len(want) == 0 {
		return nil, ErrNoMetrics
	}
	out := make([]Metric, 0, len(want))
	for _, m := range AllMetrics {
		if want[m] {
			out = append(out, m)
		}
	}
	return out, nil
}
