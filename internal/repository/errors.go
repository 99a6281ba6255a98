package repository

import "errors"

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("record already exists")
	// ErrStaleStatus is returned when a conditional write found the row in another state.
	ErrStaleStatus = errors.New("record status changed")
)
