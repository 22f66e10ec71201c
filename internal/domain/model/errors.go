package model

import "errors"

// Root error classes. Package-specific sentinels wrap one of these so the
// transport layer can map them without knowing every package.
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrPersistence = errors.New("persistence failed")
	ErrUnavailable = errors.New("external service unavailable")
)
