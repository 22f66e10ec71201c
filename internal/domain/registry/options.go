package registry

import (
	"time"

	"github.com/okian/guildboard/pkg/logger"
)

// Option configures a Registry.
type Option func(*Registry)

// WithDurationBounds sets the accepted event durations, inclusive.
func WithDurationBounds(minDuration, maxDuration time.Duration) Option {
	return func(r *Registry) {
		if minDuration > 0 {
			r.minDuration = minDuration
		}
		if maxDuration > 0 {
			r.maxDuration = maxDuration
		}
	}
}

// WithIDGenerator replaces the uuid generator used for new events.
func WithIDGenerator(gen func() string) Option {
	return func(r *Registry) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// WithLogger sets the registry logger. Events log through the logger in
// their Deps.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}
