package ranking

import "errors"

var (
	// ErrDegenerateStatistics marks a metric whose population has no spread.
	// Projection recovers by zeroing that metric's z-scores; the error is
	// never returned and exists so callers can log the condition.
	ErrDegenerateStatistics = errors.New("degenerate statistics")

	// ErrUnknownMetric is returned by ParseMetrics for an unsupported name.
	ErrUnknownMetric = errors.New("unknown metric")

	// ErrNoMetrics is returned when the enabled metric set is empty.
	ErrNoMetrics = errors.New("no metrics enabled")
)
