// Package service composes the event engine: store, stats provider,
// registry, scheduler, finish queue and worker pool.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	eventqueue "github.com/okian/guildboard/internal/adapters/mq/queue"
	workerpool "github.com/okian/guildboard/internal/adapters/mq/worker"
	"github.com/okian/guildboard/internal/adapters/repository"
	"github.com/okian/guildboard/internal/adapters/scheduler"
	"github.com/okian/guildboard/internal/adapters/stats"
	"github.com/okian/guildboard/internal/domain/dedupe"
	"github.com/okian/guildboard/internal/domain/event"
	"github.com/okian/guildboard/internal/domain/model"
	"github.com/okian/guildboard/internal/domain/registry"
	"github.com/okian/guildboard/internal/domain/scoring"
	"github.com/okian/guildboard/pkg/logger"
	"github.com/okian/guildboard/pkg/metrics"
)

// ErrNotStarted is returned by operations called before Start.
var ErrNotStarted = fmt.Errorf("service not started: %w", model.ErrUnavailable)

const (
	defaultQueueSize    = 1024
	defaultDedupeSize   = 10000
	defaultRequeueDelay = 2 * time.Second
	stopTimeout         = 30 * time.Second
)

// Service implements the API dependencies for the event engine.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	ownsStore bool
	provider  event.StatsProvider
	catalog   *scoring.Catalog
	registry  *registry.Registry
	scheduler *scheduler.Scheduler
	deduper   dedupe.Deduper
	queue     eventqueue.Queue
	pool      *workerpool.Pool

	// Configuration
	workerCount      int
	queueSize        int
	dedupeSize       int
	fetchConcurrency int
	minDuration      time.Duration
	maxDuration      time.Duration
	requeueDelay     time.Duration
	storageDriver    string
	storageDSN       string
	statsOpts        []stats.Option
	retryOpts        []stats.RetryOption
	clock            func() time.Time

	// State
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// New constructs a Service. Nothing is opened until Start.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:   runtime.NumCPU(),
		queueSize:     defaultQueueSize,
		dedupeSize:    defaultDedupeSize,
		requeueDelay:  defaultRequeueDelay,
		storageDriver: repository.DriverMemory,
		clock:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store, restores persisted events and starts the workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting event service...")

	if s.store == nil {
		st, err := repository.Open(ctx, s.storageDriver, s.storageDSN)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		s.store = st
		s.ownsStore = true
	}
	if s.catalog == nil {
		c, err := scoring.NewCatalog(scoring.WithDefaults())
		if err != nil {
			return fmt.Errorf("scoring catalog: %w", err)
		}
		s.catalog = c
	}
	if s.provider == nil {
		retryOpts := append([]stats.RetryOption{stats.WithRetryLogger(s.logger.Named("stats"))}, s.retryOpts...)
		s.provider = stats.NewRetrying(stats.NewClient(s.statsOpts...), retryOpts...)
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.scheduler = scheduler.New(s.post,
		scheduler.WithClock(s.clock),
		scheduler.WithLogger(s.logger.Named("scheduler")),
	)

	reg, err := registry.New(s.catalog, timers{s.scheduler}, event.Deps{
		Stats:            s.provider,
		Store:            s.store,
		Clock:            s.clock,
		FetchConcurrency: s.fetchConcurrency,
		Logger:           s.logger.Named("event"),
	},
		registry.WithDurationBounds(s.minDuration, s.maxDuration),
		registry.WithLogger(s.logger.Named("registry")),
	)
	if err != nil {
		s.closeStore(ctx)
		return fmt.Errorf("registry: %w", err)
	}
	s.registry = reg

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.pool = workerpool.NewPool(s.workerCount, s.queue, finisher{reg: reg, logger: s.logger.Named("finisher")}, s.logger)
	s.pool.Start(runCtx)

	loaded, err := reg.LoadAll(ctx)
	if err != nil {
		s.scheduler.Stop()
		_ = s.pool.Shutdown(ctx)
		cancel()
		s.closeStore(ctx)
		return fmt.Errorf("restore events: %w", err)
	}

	s.started = true
	s.logger.Info(ctx, "event service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queue_size", s.queueSize),
		logger.Int("dedupe_size", s.dedupeSize),
		logger.Int("restored_events", loaded),
		logger.Int("armed_timers", s.scheduler.Len()),
	)
	return nil
}

// Stop disarms every timer, drains the workers and closes the store.
// Active events stay Active in the store and are re-armed on next Start.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	s.logger.Info(ctx, "stopping event service...")

	s.scheduler.Stop()
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}
	s.cancel()
	s.closeStore(ctx)

	s.started = false
	s.logger.Info(ctx, "event service stopped")
}

func (s *Service) closeStore(ctx context.Context) {
	if !s.ownsStore || s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "close store", logger.Error(err))
	}
	s.store = nil
	s.ownsStore = false
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}
	if s.started {
		ctx := context.Background()
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["trackedEvents"] = s.registry.Len()
		stats["activeEvents"] = s.registry.Active()
		stats["armedTimers"] = s.scheduler.Len()
		stats["dedupeEntries"] = s.deduper.Size()
		stats["kinds"] = s.catalog.Kinds()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.pool.Size())
	}
	return stats
}

// timers adapts the scheduler to the registry's Timers port.
type timers struct{ s *scheduler.Scheduler }

func (t timers) Schedule(eventID string, fireAt time.Time) { t.s.Arm(eventID, fireAt) }
func (t timers) Unschedule(eventID string)                 { t.s.Disarm(eventID) }

// finisher delivers finish tasks to the registry. A task for an event that
// already ended is a duplicate and is not an error.
type finisher struct {
	reg    *registry.Registry
	logger logger.Logger
}

func (f finisher) Finish(ctx context.Context, eventID string) error {
	_, err := f.reg.Finish(ctx, eventID)
	switch {
	case err == nil:
		return nil
	case event.IsNotActive(err):
		f.logger.Debug(ctx, "finish task for inactive event dropped", logger.String("event_id", eventID))
		return nil
	default:
		return err
	}
}
