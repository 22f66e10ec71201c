package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/guildboard/internal/domain/model"
)

// MemoryStore keeps events in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu           sync.RWMutex
	events       map[string]model.EventRecord
	participants map[string]map[string]model.ParticipantRecord
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:       make(map[string]model.EventRecord),
		participants: make(map[string]map[string]model.ParticipantRecord),
	}
}

// SaveEvent upserts the event and the given participants.
func (s *MemoryStore) SaveEvent(ctx context.Context, rec model.EventRecord, participants ...model.ParticipantRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.ID == "" {
		return fmt.Errorf("event id is required: %w", model.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.events[rec.ID]; ok {
		// kind, duration and creation time are fixed at insert
		rec.Kind, rec.Duration, rec.CreatedAt = prev.Kind, prev.Duration, prev.CreatedAt
	}
	s.events[rec.ID] = rec
	roster, ok := s.participants[rec.ID]
	if !ok {
		roster = make(map[string]model.ParticipantRecord)
		s.participants[rec.ID] = roster
	}
	for _, p := range participants {
		p = p.Clone()
		p.EventID = rec.ID
		if prev, ok := roster[p.PlayerID]; ok {
			p.Position, p.EnrolledAt = prev.Position, prev.EnrolledAt
		}
		roster[p.PlayerID] = p
	}
	return nil
}

// DeleteEvent removes an event and its roster.
func (s *MemoryStore) DeleteEvent(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, id)
	delete(s.participants, id)
	return nil
}

// LoadEvents returns copies of every event, oldest first.
func (s *MemoryStore) LoadEvents(ctx context.Context) ([]model.StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.StoredEvent, 0, len(s.events))
	for id, rec := range s.events {
		st := model.StoredEvent{Event: rec}
		for _, p := range s.participants[id] {
			st.Participants = append(st.Participants, p.Clone())
		}
		sort.Slice(st.Participants, func(i, j int) bool { return st.Participants[i].Position < st.Participants[j].Position })
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Event.CreatedAt.Equal(out[j].Event.CreatedAt) {
			return out[i].Event.CreatedAt.Before(out[j].Event.CreatedAt)
		}
		return out[i].Event.ID < out[j].Event.ID
	})
	return out, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
