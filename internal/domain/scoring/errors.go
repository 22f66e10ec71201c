package scoring

import (
	"fmt"

	"github.com/okian/guildboard/internal/domain/model"
)

// Sentinel kinds for scoring errors.
var (
	ErrUnknownKind = fmt.Errorf("unknown event kind: %w", model.ErrValidation)
	ErrUnknownKey  = fmt.Errorf("snapshot key outside rule-set: %w", model.ErrValidation)
	ErrInvalidRule = fmt.Errorf("invalid rule-set: %w", model.ErrValidation)
)
