package service

import "errors"

var (
	// ErrBackpressure is returned when the command queue is full.
	ErrBackpressure = errors.New("too many pending writes")
	// ErrNotStarted is returned by calls made before Start or after Stop.
	ErrNotStarted = errors.New("service not started")
)
