package worker

import "errors"

// ErrPanic wraps a panic recovered while applying a command.
var ErrPanic = errors.New("command panicked")
