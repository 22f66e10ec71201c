package event

import (
	"errors"
	"fmt"

	"github.com/okian/guildboard/internal/domain/model"
)

// Sentinel kinds for event errors.
var (
	ErrInvalidState        = fmt.Errorf("transition not allowed in current state: %w", model.ErrConflict)
	ErrNotActive           = fmt.Errorf("event is not active: %w", model.ErrConflict)
	ErrEventClosed         = fmt.Errorf("event already ended: %w", model.ErrConflict)
	ErrNotFinished         = fmt.Errorf("event has not ended: %w", model.ErrConflict)
	ErrAlreadyEnrolled     = fmt.Errorf("participant already enrolled: %w", model.ErrConflict)
	ErrParticipantNotFound = fmt.Errorf("participant not enrolled: %w", model.ErrNotFound)
	ErrNoBaseline          = fmt.Errorf("participant has no baseline: %w", model.ErrNotFound)
	ErrDiscarded           = fmt.Errorf("event discarded: %w", model.ErrNotFound)
	ErrInvalidParticipant  = fmt.Errorf("invalid participant: %w", model.ErrValidation)
	ErrPersistence         = fmt.Errorf("event store: %w", model.ErrPersistence)
)

// Unscored reason codes.
const (
	ReasonNotFound    = "not_found"
	ReasonInvalid     = "invalid_snapshot"
	ReasonUnavailable = "unavailable"
	ReasonNoBaseline  = "no_baseline"
)

// reasonCode classifies a fetch failure for reporting and metrics.
func reasonCode(err error) string {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, model.ErrValidation):
		return ReasonInvalid
	default:
		return ReasonUnavailable
	}
}
