package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrLocked indicates another worker holds the lock.
	ErrLocked = errors.New("lock held elsewhere")
)
