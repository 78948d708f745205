package repository

import "errors"

var (
	// ErrNotFound indicates an entity was not located.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a uniqueness constraint was violated.
	ErrConflict = errors.New("repository: conflict")
	// ErrUnavailable indicates the backing store could not serve the request.
	ErrUnavailable = errors.New("repository: storage unavailable")
)
