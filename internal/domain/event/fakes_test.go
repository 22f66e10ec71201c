package event_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/guildboard/internal/domain/model"
)

var errStatsNotFound = fmt.Errorf("no such player: %w", model.ErrNotFound)

// fakeStats serves queued responses per player; the last response repeats.
type fakeStats struct {
	mu        sync.Mutex
	responses map[string][]response
	calls     map[string]int
}

type response struct {
	snap *model.Snapshot
	err  error
}

func newFakeStats() *fakeStats {
	return &fakeStats{responses: map[string][]response{}, calls: map[string]int{}}
}

func (f *fakeStats) queue(player string, snap *model.Snapshot, err error) *fakeStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[player] = append(f.responses[player], response{snap: snap, err: err})
	return f
}

func (f *fakeStats) Fetch(ctx context.Context, kind model.Kind, playerID string) (*model.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[playerID]++
	rs := f.responses[playerID]
	if len(rs) == 0 {
		return nil, errStatsNotFound
	}
	r := rs[0]
	if len(rs) > 1 {
		f.responses[playerID] = rs[1:]
	}
	return r.snap.Clone(), r.err
}

func (f *fakeStats) callCount(player string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[player]
}

// fakeStore keeps the latest write per event and can be told to fail.
type fakeStore struct {
	mu           sync.Mutex
	events       map[string]model.EventRecord
	participants map[string]map[string]model.ParticipantRecord
	failSaves    int
	failWhen     func(model.EventRecord) bool
	saves        int
}

var errDisk = errors.New("disk full")

func newFakeStore() *fakeStore {
	return &fakeStore{events: map[string]model.EventRecord{}, participants: map[string]map[string]model.ParticipantRecord{}}
}

func (s *fakeStore) SaveEvent(ctx context.Context, rec model.EventRecord, ps ...model.ParticipantRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSaves > 0 || (s.failWhen != nil && s.failWhen(rec)) {
		if s.failSaves > 0 {
			s.failSaves--
		}
		return errDisk
	}
	s.saves++
	s.events[rec.ID] = rec
	if s.participants[rec.ID] == nil {
		s.participants[rec.ID] = map[string]model.ParticipantRecord{}
	}
	for _, p := range ps {
		s.participants[rec.ID][p.PlayerID] = p.Clone()
	}
	return nil
}

func (s *fakeStore) DeleteEvent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, id)
	delete(s.participants, id)
	return nil
}

func (s *fakeStore) LoadEvents(ctx context.Context) ([]model.StoredEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.StoredEvent
	for id, rec := range s.events {
		st := model.StoredEvent{Event: rec}
		for _, p := range s.participants[id] {
			st.Participants = append(st.Participants, p.Clone())
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *fakeStore) stored(id string) (model.EventRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.events[id]
	return rec, ok
}

func (s *fakeStore) storedParticipant(id, player string) model.ParticipantRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participants[id][player]
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func zombie(profile string, tier0, tier1 int64) *model.Snapshot {
	s := model.NewSnapshot(profile, time.Time{})
	s.Set("zombie", 0, model.Counters{Attempts: tier0})
	s.Set("zombie", 1, model.Counters{Attempts: tier1})
	return s
}
