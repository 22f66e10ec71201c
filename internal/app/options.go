package service

import (
	"time"

	"github.com/okian/guildboard/internal/adapters/repository"
	"github.com/okian/guildboard/internal/adapters/stats"
	"github.com/okian/guildboard/internal/domain/event"
	"github.com/okian/guildboard/internal/domain/scoring"
	"github.com/okian/guildboard/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of finish workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the finish queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many fired timer tokens are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithFetchConcurrency bounds parallel stat fetches within one event.
func WithFetchConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.fetchConcurrency = n
		}
	}
}

// WithDurationBounds sets the accepted event durations.
func WithDurationBounds(minDuration, maxDuration time.Duration) Option {
	return func(s *Service) {
		s.minDuration = minDuration
		s.maxDuration = maxDuration
	}
}

// WithRequeueDelay sets how long a refused finish task waits before the
// timer fires again.
func WithRequeueDelay(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.requeueDelay = d
		}
	}
}

// WithStorage selects the store opened by Start.
func WithStorage(driver, dsn string) Option {
	return func(s *Service) {
		if driver != "" {
			s.storageDriver = driver
		}
		s.storageDSN = dsn
	}
}

// WithStore uses an already opened store. The service does not close it.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
			s.ownsStore = false
		}
	}
}

// WithStatsProvider replaces the Hypixel client and its retry wrapper.
func WithStatsProvider(p event.StatsProvider) Option {
	return func(s *Service) {
		if p != nil {
			s.provider = p
		}
	}
}

// WithStatsClientOptions configures the default Hypixel client.
func WithStatsClientOptions(opts ...stats.Option) Option {
	return func(s *Service) {
		s.statsOpts = append(s.statsOpts, opts...)
	}
}

// WithRetryOptions configures retries around the default Hypixel client.
func WithRetryOptions(opts ...stats.RetryOption) Option {
	return func(s *Service) {
		s.retryOpts = append(s.retryOpts, opts...)
	}
}

// WithCatalog sets the rule-sets events can be created with.
func WithCatalog(c *scoring.Catalog) Option {
	return func(s *Service) {
		if c != nil {
			s.catalog = c
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
