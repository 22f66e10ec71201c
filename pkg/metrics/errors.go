package metrics

import (
	"errors"
)

// Sentinel kinds for metrics errors.
var (
	ErrAlreadyConfigured = errors.New("metrics already configured")
)
