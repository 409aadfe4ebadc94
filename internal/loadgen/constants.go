package loadgen

import "time"

// Defaults applied by Normalize.
const (
	DefaultBaseURL      = "http://localhost:8080/api"
	DefaultPlayers      = 20
	DefaultGames        = 1000
	DefaultWorkers      = 8
	DefaultTieRate      = 0.05
	DefaultResubmitRate = 0.05
	DefaultTimeout      = 30 * time.Second
)

// Scoring of generated games.
const (
	winningScore = 21
	maxLoserGap  = 19 // loser scores 0..19
	minTieScore  = 10
	tieSpread    = 11 // ties land on 10..20
)

// Submission retry policy when the server reports backpressure.
const (
	maxBackpressureRetries = 8
	backpressureBackoff    = 25 * time.Millisecond
)

const (
	workerChannelMultiplier = 2
	percentageMultiplier    = 100
	topToLog                = 10
)
