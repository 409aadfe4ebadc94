package loadgen

import "errors"

var (
	// ErrInvalidConfig reports an unusable Config.
	ErrInvalidConfig = errors.New("invalid loadgen config")
	// ErrUnexpectedStatus reports a response the run cannot continue from.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrVerification reports a leaderboard that breaks an ordering rule.
	ErrVerification = errors.New("leaderboard verification failed")
)
