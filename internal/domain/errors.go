package domain

import "errors"

var (
	// ErrValidation marks input that can never be accepted as-is.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a lookup that matched no row or remote entity.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks an operation rejected by the current record state.
	ErrConflict = errors.New("conflict")
)
