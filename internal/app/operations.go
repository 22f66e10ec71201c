package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/guildboard/internal/domain/event"
	"github.com/okian/guildboard/internal/domain/model"
	"github.com/okian/guildboard/internal/domain/registry"
	"github.com/okian/guildboard/pkg/logger"
	"github.com/okian/guildboard/pkg/metrics"
)

// post receives fired timers. A token already seen is dropped; a task the
// queue refuses is forgotten and its timer re-armed a little later.
func (s *Service) post(ctx context.Context, task model.FinishTask) {
	token := task.Token()
	if s.deduper.SeenAndRecord(ctx, token) {
		metrics.RecordTimerDuplicate()
		s.logger.Debug(ctx, "duplicate timer firing dropped", logger.String("token", token))
		return
	}
	if s.queue.Enqueue(ctx, task) {
		return
	}

	s.deduper.Unrecord(ctx, token)
	metrics.RecordTimerRearm()
	retryAt := s.clock().Add(s.requeueDelay)
	s.logger.Warn(ctx, "finish queue refused task, re-arming",
		logger.String("event_id", task.EventID),
		logger.Time("retry_at", retryAt),
	)
	s.scheduler.Arm(task.EventID, retryAt)
}

func (s *Service) reg() (*registry.Registry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.registry, nil
}

// CreateEvent registers a new event.
func (s *Service) CreateEvent(ctx context.Context, kind string, duration time.Duration) (model.EventRecord, error) {
	r, err := s.reg()
	if err != nil {
		return model.EventRecord{}, err
	}
	return r.Create(ctx, model.Kind(kind), duration)
}

// ListEvents returns every tracked event in creation order.
func (s *Service) ListEvents(ctx context.Context) ([]model.EventRecord, error) {
	r, err := s.reg()
	if err != nil {
		return nil, err
	}
	return r.List(), nil
}

// GetEvent returns an event and its roster.
func (s *Service) GetEvent(ctx context.Context, id string) (event.View, error) {
	r, err := s.reg()
	if err != nil {
		return event.View{}, err
	}
	return r.Get(id)
}

// ActivateEvent starts an event.
func (s *Service) ActivateEvent(ctx context.Context, id string) (model.EventRecord, error) {
	r, err := s.reg()
	if err != nil {
		return model.EventRecord{}, err
	}
	return r.Activate(ctx, id)
}

// EnrollParticipant adds a player to an event.
func (s *Service) EnrollParticipant(ctx context.Context, id, playerID, displayName string) (model.ParticipantRecord, error) {
	r, err := s.reg()
	if err != nil {
		return model.ParticipantRecord{}, err
	}
	return r.Enroll(ctx, id, playerID, displayName)
}

// EndEvent ends an Active event now.
func (s *Service) EndEvent(ctx context.Context, id string) (model.EventRecord, error) {
	r, err := s.reg()
	if err != nil {
		return model.EventRecord{}, err
	}
	return r.EndNow(ctx, id)
}

// AbandonEvent deletes a Created event.
func (s *Service) AbandonEvent(ctx context.Context, id string) error {
	r, err := s.reg()
	if err != nil {
		return err
	}
	return r.Abandon(ctx, id)
}

// EventResult returns the standings of an ended event.
func (s *Service) EventResult(ctx context.Context, id string) (event.Result, error) {
	r, err := s.reg()
	if err != nil {
		return event.Result{}, err
	}
	return r.Result(id)
}

// Ready reports whether the service is started and its store reachable.
func (s *Service) Ready(ctx context.Context) error {
	s.mu.RLock()
	started, st := s.started, s.store
	s.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}
	if err := st.Ping(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}
