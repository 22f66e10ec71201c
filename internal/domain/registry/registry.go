// Package registry owns every event of the process: it creates them, routes
// commands to them, arms their end timers and rebuilds them after a restart.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/guildboard/internal/domain/event"
	"github.com/okian/guildboard/internal/domain/model"
	"github.com/okian/guildboard/internal/domain/scoring"
	"github.com/okian/guildboard/pkg/logger"
	"github.com/okian/guildboard/pkg/metrics"
)

const (
	defaultMinDuration = time.Minute
	defaultMaxDuration = 30 * 24 * time.Hour
)

// Timers arms and disarms the end-of-event timer of an event.
type Timers interface {
	Schedule(eventID string, fireAt time.Time)
	Unschedule(eventID string)
}

// Registry maps event ids to live events. The map lock is never held while
// an event runs a transition.
type Registry struct {
	mu     sync.RWMutex
	events map[string]*event.Event
	order  []string
	active int

	catalog     *scoring.Catalog
	timers      Timers
	deps        event.Deps
	minDuration time.Duration
	maxDuration time.Duration
	newID       func() string
	logger      logger.Logger
}

// New returns an empty registry. deps.Store and deps.Stats are required.
func New(catalog *scoring.Catalog, timers Timers, deps event.Deps, opts ...Option) (*Registry, error) {
	if catalog == nil || timers == nil || deps.Store == nil || deps.Stats == nil {
		return nil, ErrNotConfigured
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	r := &Registry{
		events:      make(map[string]*event.Event),
		catalog:     catalog,
		timers:      timers,
		deps:        deps,
		minDuration: defaultMinDuration,
		maxDuration: defaultMaxDuration,
		newID:       uuid.NewString,
		logger:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.minDuration > r.maxDuration {
		return nil, fmt.Errorf("min %s above max %s: %w", r.minDuration, r.maxDuration, ErrInvalidDuration)
	}
	return r, nil
}

// Create registers a new Created event of the given kind.
func (r *Registry) Create(ctx context.Context, kind model.Kind, duration time.Duration) (model.EventRecord, error) {
	rules, err := r.catalog.Lookup(kind)
	if err != nil {
		return model.EventRecord{}, fmt.Errorf("create: %w", err)
	}
	if duration < r.minDuration || duration > r.maxDuration {
		return model.EventRecord{}, fmt.Errorf("create %s for %s (allowed %s..%s): %w",
			kind, duration, r.minDuration, r.maxDuration, ErrInvalidDuration)
	}

	ev := event.New(r.newID(), rules, duration, r.deps)
	if err := ev.Save(ctx); err != nil {
		return model.EventRecord{}, fmt.Errorf("create: %w", err)
	}
	rec := ev.Record()

	r.mu.Lock()
	r.events[rec.ID] = ev
	r.order = append(r.order, rec.ID)
	r.updateGaugesLocked()
	r.mu.Unlock()

	metrics.RecordEventCreated(string(kind))
	r.logger.Info(ctx, "event created",
		logger.String("event_id", rec.ID),
		logger.String("kind", string(kind)),
		logger.Duration("duration", duration),
	)
	return rec, nil
}

// Enroll adds a participant to an event that has not ended.
func (r *Registry) Enroll(ctx context.Context, id, playerID, displayName string) (model.ParticipantRecord, error) {
	ev, err := r.lookup(id)
	if err != nil {
		return model.ParticipantRecord{}, err
	}
	return ev.AddParticipant(ctx, playerID, displayName)
}

// Get returns a copy of an event and its roster.
func (r *Registry) Get(id string) (event.View, error) {
	ev, err := r.lookup(id)
	if err != nil {
		return event.View{}, err
	}
	return ev.View(), nil
}

// List returns every event in creation order.
func (r *Registry) List() []model.EventRecord {
	r.mu.RLock()
	evs := make([]*event.Event, 0, len(r.order))
	for _, id := range r.order {
		evs = append(evs, r.events[id])
	}
	r.mu.RUnlock()

	out := make([]model.EventRecord, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Record())
	}
	return out
}

// Activate starts an event and arms its timer at the persisted end.
func (r *Registry) Activate(ctx context.Context, id string) (model.EventRecord, error) {
	ev, err := r.lookup(id)
	if err != nil {
		return model.EventRecord{}, err
	}
	rec, err := ev.Activate(ctx)
	if err != nil {
		return model.EventRecord{}, err
	}
	r.timers.Schedule(rec.ID, rec.EndsAt)
	r.adjustActive(1)
	return rec, nil
}

// Finish runs the finish pass. It is what a fired timer ends up calling;
// an event that already left Active yields event.ErrNotActive.
func (r *Registry) Finish(ctx context.Context, id string) (model.EventRecord, error) {
	ev, err := r.lookup(id)
	if err != nil {
		return model.EventRecord{}, err
	}
	rec, err := ev.Finish(ctx)
	if err != nil && !errors.Is(err, event.ErrPersistence) {
		return rec, err
	}
	r.timers.Unschedule(id)
	r.adjustActive(-1)
	return rec, err
}

// EndNow ends an Active event early by moving its timer to now, so the
// finish pass still goes through the scheduler.
func (r *Registry) EndNow(ctx context.Context, id string) (model.EventRecord, error) {
	ev, err := r.lookup(id)
	if err != nil {
		return model.EventRecord{}, err
	}
	rec := ev.Record()
	if rec.State != model.StateActive {
		return rec, fmt.Errorf("end %s (%s): %w", id, rec.State, event.ErrNotActive)
	}
	r.timers.Schedule(id, r.deps.Clock())
	r.logger.Info(ctx, "event ended early", logger.String("event_id", id))
	return rec, nil
}

// Abandon deletes a Created event.
func (r *Registry) Abandon(ctx context.Context, id string) error {
	ev, err := r.lookup(id)
	if err != nil {
		return err
	}
	if err := ev.Discard(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.events, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.updateGaugesLocked()
	r.mu.Unlock()

	r.logger.Info(ctx, "event abandoned", logger.String("event_id", id))
	return nil
}

// Result returns the standings of an ended event.
func (r *Registry) Result(id string) (event.Result, error) {
	ev, err := r.lookup(id)
	if err != nil {
		return event.Result{}, err
	}
	return ev.Result()
}

// LoadAll rebuilds the registry from the store and re-arms every Active
// event at its persisted end. Events of kinds no longer configured are
// skipped. Ids already registered are left untouched.
func (r *Registry) LoadAll(ctx context.Context) (int, error) {
	stored, err := r.deps.Store.LoadEvents(ctx)
	if err != nil {
		return 0, fmt.Errorf("load events: %w: %w", event.ErrPersistence, err)
	}

	loaded := 0
	for _, st := range stored {
		rules, err := r.catalog.Lookup(st.Event.Kind)
		if err != nil {
			r.logger.Warn(ctx, "skipping stored event of unknown kind",
				logger.String("event_id", st.Event.ID),
				logger.String("kind", string(st.Event.Kind)),
			)
			continue
		}

		r.mu.Lock()
		if _, exists := r.events[st.Event.ID]; exists {
			r.mu.Unlock()
			continue
		}
		r.events[st.Event.ID] = event.Restore(st, rules, r.deps)
		r.order = append(r.order, st.Event.ID)
		if st.Event.State == model.StateActive {
			r.active++
		}
		r.updateGaugesLocked()
		r.mu.Unlock()

		if st.Event.State == model.StateActive {
			r.timers.Schedule(st.Event.ID, st.Event.EndsAt)
		}
		loaded++
	}
	r.logger.Info(ctx, "events loaded", logger.Int("count", loaded), logger.Int("stored", len(stored)))
	return loaded, nil
}

// Len returns the number of tracked events.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}

// Active returns the number of Active events.
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

func (r *Registry) lookup(id string) (*event.Event, error) {
	r.mu.RLock()
	ev, ok := r.events[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrEventNotFound)
	}
	return ev, nil
}

func (r *Registry) adjustActive(delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active += delta
	if r.active < 0 {
		r.active = 0
	}
	r.updateGaugesLocked()
}

func (r *Registry) updateGaugesLocked() {
	metrics.UpdateTrackedEvents(len(r.events))
	metrics.UpdateActiveEvents(r.active)
}
