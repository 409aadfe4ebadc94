package repository

import "errors"

// Sentinel kinds for store errors.
var (
	// ErrConflict is returned by Save when the stored revision moved since
	// the ledger was loaded. Reload and retry.
	ErrConflict = errors.New("concurrent write conflict")
	// ErrUnknownDriver is returned by Open for an unsupported driver.
	ErrUnknownDriver = errors.New("unknown store driver")
	// ErrCorrupt is returned when persisted state cannot be decoded.
	ErrCorrupt = errors.New("corrupt ledger store")
)
