package store

import "errors"

var (
	// ErrNotFound is returned when a record or aggregate does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by a version-checked aggregate write that lost a race
	ErrConflict = errors.New("aggregate was modified concurrently")
)
