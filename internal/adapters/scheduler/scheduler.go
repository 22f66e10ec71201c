// Package scheduler keeps one end-of-event timer per event and posts a
// finish task when it fires.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/okian/guildboard/internal/domain/model"
	"github.com/okian/guildboard/pkg/logger"
	"github.com/okian/guildboard/pkg/metrics"
)

// Handle identifies one arming of one event's timer.
type Handle struct {
	EventID string
	seq     uint64
}

// PostFunc receives fired tasks. It must not block for long.
type PostFunc func(ctx context.Context, task model.FinishTask)

type entry struct {
	seq    uint64
	fireAt time.Time
	timer  *time.Timer
}

// Scheduler arms at most one timer per event. Re-arming replaces the
// previous timer; cancelling with a stale handle does nothing.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*entry
	seq     uint64
	post    PostFunc
	clock   func() time.Time
	logger  logger.Logger
	stopped bool
	ctx     context.Context
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source used to compute delays.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a scheduler that hands fired tasks to post.
func New(post PostFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		entries: make(map[string]*entry),
		post:    post,
		clock:   time.Now,
		logger:  logger.Discard(),
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Arm schedules eventID to fire at fireAt, replacing any timer already
// armed for it. A fireAt in the past fires immediately.
func (s *Scheduler) Arm(eventID string, fireAt time.Time) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[eventID]; ok {
		old.timer.Stop()
	}
	s.seq++
	h := Handle{EventID: eventID, seq: s.seq}
	if s.stopped {
		return h
	}
	delay := fireAt.Sub(s.clock())
	if delay < 0 {
		delay = 0
	}
	e := &entry{seq: h.seq, fireAt: fireAt}
	e.timer = time.AfterFunc(delay, func() { s.fire(eventID, h.seq) })
	s.entries[eventID] = e
	metrics.UpdateTimersArmed(len(s.entries))
	s.logger.Debug(s.ctx, "timer armed",
		logger.String("event_id", eventID),
		logger.Time("fire_at", fireAt),
		logger.Duration("delay", delay),
	)
	return h
}

// Cancel disarms the timer behind h if it is still the current one.
func (s *Scheduler) Cancel(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[h.EventID]
	if !ok || e.seq != h.seq {
		return false
	}
	e.timer.Stop()
	delete(s.entries, h.EventID)
	metrics.UpdateTimersArmed(len(s.entries))
	return true
}

// Disarm cancels whatever timer is armed for eventID.
func (s *Scheduler) Disarm(eventID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[eventID]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.entries, eventID)
	metrics.UpdateTimersArmed(len(s.entries))
	return true
}

// Armed returns when eventID is due, if a timer is armed.
func (s *Scheduler) Armed(eventID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[eventID]
	if !ok {
		return time.Time{}, false
	}
	return e.fireAt, true
}

// Len returns the number of armed timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop disarms every timer. Later Arm calls are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, id)
	}
	metrics.UpdateTimersArmed(0)
}

func (s *Scheduler) fire(eventID string, seq uint64) {
	s.mu.Lock()
	e, ok := s.entries[eventID]
	if !ok || e.seq != seq {
		// replaced or cancelled after the timer started running
		s.mu.Unlock()
		return
	}
	delete(s.entries, eventID)
	metrics.UpdateTimersArmed(len(s.entries))
	task := model.FinishTask{EventID: eventID, FireAt: e.fireAt}
	s.mu.Unlock()

	metrics.RecordTimerFire()
	s.post(s.ctx, task)
}
