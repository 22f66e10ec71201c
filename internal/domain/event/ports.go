package event

import (
	"context"

	"github.com/okian/guildboard/internal/domain/model"
)

// StatsProvider reads a player's current counters for an event kind.
// Implementations wrap model.ErrNotFound for unknown players and
// model.ErrUnavailable for rate limits, auth and transport failures.
type StatsProvider interface {
	Fetch(ctx context.Context, kind model.Kind, playerID string) (*model.Snapshot, error)
}

// Store persists events. SaveEvent upserts the event row and the given
// participants in one transaction; participants not passed are left alone.
type Store interface {
	SaveEvent(ctx context.Context, rec model.EventRecord, participants ...model.ParticipantRecord) error
	DeleteEvent(ctx context.Context, id string) error
	LoadEvents(ctx context.Context) ([]model.StoredEvent, error)
}
