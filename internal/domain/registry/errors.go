package registry

import (
	"fmt"

	"github.com/okian/guildboard/internal/domain/model"
)

// Sentinel errors for registry operations.
var (
	ErrEventNotFound   = fmt.Errorf("event not found: %w", model.ErrNotFound)
	ErrInvalidDuration = fmt.Errorf("event duration out of range: %w", model.ErrValidation)
	ErrNotConfigured   = fmt.Errorf("registry dependency missing: %w", model.ErrValidation)
)
