package ledger

import "errors"

// Sentinel kinds for ledger validation. Callers match them with errors.Is.
var (
	ErrUnknownPlayer   = errors.New("unknown player")
	ErrDuplicatePlayer = errors.New("duplicate player")
	ErrSelfPlay        = errors.New("player cannot play themselves")
	ErrInvalidPlayer   = errors.New("invalid player name")
	ErrInvalidScore    = errors.New("invalid score")
)
