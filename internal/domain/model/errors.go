package model

import "errors"

var (
	// ErrUnknownKind is returned when applying a command of no known kind.
	ErrUnknownKind = errors.New("unknown command kind")
	// ErrNoReply is returned when waiting on a command built without a reply channel.
	ErrNoReply = errors.New("command has no reply channel")
)
