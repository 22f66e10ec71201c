package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrUnsupportedDriver = errors.New("unsupported storage driver")
	ErrNotConfigured     = errors.New("storage is not configured")
	ErrCorruptRow        = errors.New("corrupt stored row")
)
