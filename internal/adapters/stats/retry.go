package stats

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/okian/guildboard/internal/domain/event"
	"github.com/okian/guildboard/internal/domain/model"
	"github.com/okian/guildboard/pkg/logger"
	"github.com/okian/guildboard/pkg/metrics"
)

const (
	defaultMaxTries       = 4
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
	defaultMaxElapsed     = 45 * time.Second
)

// Retrying retries rate-limited and transient fetches with exponential
// backoff. A Retry-After hint from the server lengthens the next wait.
// Not-found and unauthorized answers are returned at once.
type Retrying struct {
	next       event.StatsProvider
	maxTries   uint
	initial    time.Duration
	maxBackoff time.Duration
	maxElapsed time.Duration
	logger     logger.Logger
}

// RetryOption configures Retrying.
type RetryOption func(*Retrying)

// WithMaxTries bounds the number of attempts, including the first.
func WithMaxTries(n int) RetryOption {
	return func(r *Retrying) {
		if n > 0 {
			r.maxTries = uint(n)
		}
	}
}

// WithBackoff sets the first and the largest wait between attempts.
func WithBackoff(initial, max time.Duration) RetryOption {
	return func(r *Retrying) {
		if initial > 0 {
			r.initial = initial
		}
		if max >= r.initial {
			r.maxBackoff = max
		}
	}
}

// WithMaxElapsed bounds the total time spent on one fetch.
func WithMaxElapsed(d time.Duration) RetryOption {
	return func(r *Retrying) {
		if d > 0 {
			r.maxElapsed = d
		}
	}
}

// WithRetryLogger sets the logger used for retry notices.
func WithRetryLogger(l logger.Logger) RetryOption {
	return func(r *Retrying) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRetrying wraps next.
func NewRetrying(next event.StatsProvider, opts ...RetryOption) *Retrying {
	r := &Retrying{
		next:       next,
		maxTries:   defaultMaxTries,
		initial:    defaultInitialBackoff,
		maxBackoff: defaultMaxBackoff,
		maxElapsed: defaultMaxElapsed,
		logger:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fetch implements event.StatsProvider.
func (r *Retrying) Fetch(ctx context.Context, kind model.Kind, playerID string) (*model.Snapshot, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.initial
	exp.MaxInterval = r.maxBackoff
	b := &hintedBackOff{BackOff: exp}

	op := func() (*model.Snapshot, error) {
		snap, err := r.next.Fetch(ctx, kind, playerID)
		if err == nil {
			return snap, nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		if d, ok := AsRateLimit(err); ok {
			b.hint = d
		}
		return nil, err
	}
	notify := func(err error, wait time.Duration) {
		class := Class(err)
		metrics.RecordStatsRetry(class)
		r.logger.Debug(ctx, "retrying stats fetch",
			logger.String("kind", string(kind)),
			logger.String("player_id", playerID),
			logger.String("class", class),
			logger.Duration("wait", wait),
		)
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.maxTries),
		backoff.WithMaxElapsedTime(r.maxElapsed),
		backoff.WithNotify(notify),
	)
}

// hintedBackOff waits at least as long as the last server hint. The hint
// applies to one wait only.
type hintedBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (h *hintedBackOff) NextBackOff() time.Duration {
	next := h.BackOff.NextBackOff()
	if next != backoff.Stop && h.hint > next {
		next = h.hint
	}
	h.hint = 0
	return next
}

func (h *hintedBackOff) Reset() {
	h.hint = 0
	h.BackOff.Reset()
}

var _ event.StatsProvider = (*Retrying)(nil)
var _ event.StatsProvider = (*Client)(nil)
