// Package config defines service configuration structures and loading hooks.
package config

import (
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/okian/guildboard/internal/adapters/repository"
	"github.com/okian/guildboard/internal/domain/model"
	"github.com/okian/guildboard/internal/domain/scoring"
	"github.com/okian/guildboard/pkg/logger"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StorageDriver is sqlite, postgres or memory. StorageDSN is the sqlite
	// file path or the postgres connection string.
	StorageDriver string `koanf:"storage_driver"`
	StorageDSN    string `koanf:"storage_dsn"`

	// Hypixel API access.
	StatsBaseURL      string        `koanf:"stats_base_url"`
	StatsAPIKey       string        `koanf:"stats_api_key"`
	StatsTimeout      time.Duration `koanf:"stats_timeout"`
	StatsMaxTries     int           `koanf:"stats_max_tries"`
	StatsRetryInitial time.Duration `koanf:"stats_retry_initial"`
	StatsRetryMax     time.Duration `koanf:"stats_retry_max"`
	StatsMaxElapsed   time.Duration `koanf:"stats_max_elapsed"`

	// FetchConcurrency bounds parallel stat fetches within one event.
	FetchConcurrency int `koanf:"fetch_concurrency"`

	MinEventDuration time.Duration `koanf:"min_event_duration"`
	MaxEventDuration time.Duration `koanf:"max_event_duration"`

	// EventQueueSize bounds the finish task queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of finish workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets how many fired timer tokens are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// RequeueDelay is the wait before a refused finish task fires again.
	RequeueDelay time.Duration `koanf:"requeue_delay"`

	// MetricsLabels are constant labels added to every metric.
	MetricsLabels map[string]string `koanf:"metrics_labels"`

	// RuleSets adds or overrides scoring rule-sets by kind.
	RuleSets map[string]RuleSetConfig `koanf:"rule_sets"`
}

// RuleSetConfig is the file form of a scoring rule-set. Weights are keyed by
// category, then by tier written as a decimal string.
type RuleSetConfig struct {
	Source  string                        `koanf:"source"`
	Counter string                        `koanf:"counter"`
	Weights map[string]map[string]float64 `koanf:"weights"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		StorageDriver:     repository.DriverSQLite,
		StorageDSN:        "guildboard.db",
		StatsBaseURL:      "https://api.hypixel.net",
		StatsTimeout:      10 * time.Second,
		StatsMaxTries:     4,
		StatsRetryInitial: 500 * time.Millisecond,
		StatsRetryMax:     10 * time.Second,
		StatsMaxElapsed:   45 * time.Second,
		FetchConcurrency:  4,
		MinEventDuration:  time.Minute,
		MaxEventDuration:  30 * 24 * time.Hour,
		EventQueueSize:    1024,
		WorkerCount:       runtime.NumCPU(),
		DedupeSize:        10_000,
		RequeueDelay:      2 * time.Second,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("addr must not be empty: %w", ErrInvalidConfig)
	case c.EventQueueSize <= 0:
		return fmt.Errorf("queue_size must be positive: %w", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("worker_count must be positive: %w", ErrInvalidConfig)
	case c.DedupeSize <= 0:
		return fmt.Errorf("dedupe_size must be positive: %w", ErrInvalidConfig)
	case c.FetchConcurrency <= 0:
		return fmt.Errorf("fetch_concurrency must be positive: %w", ErrInvalidConfig)
	case c.MinEventDuration <= 0 || c.MaxEventDuration < c.MinEventDuration:
		return fmt.Errorf("event duration bounds %s..%s: %w", c.MinEventDuration, c.MaxEventDuration, ErrInvalidConfig)
	case c.StatsMaxTries <= 0:
		return fmt.Errorf("stats_max_tries must be positive: %w", ErrInvalidConfig)
	}
	if _, err := logger.ParseFormat(c.LogFormat); err != nil {
		return fmt.Errorf("log_format: %w: %w", ErrInvalidConfig, err)
	}
	switch strings.ToLower(c.StorageDriver) {
	case repository.DriverSQLite, repository.DriverPostgres, repository.DriverMemory:
	default:
		return fmt.Errorf("storage_driver %q: %w", c.StorageDriver, ErrInvalidConfig)
	}
	if c.StorageDriver != repository.DriverMemory && strings.TrimSpace(c.StorageDSN) == "" {
		return fmt.Errorf("storage_dsn required for %s: %w", c.StorageDriver, ErrInvalidConfig)
	}
	if _, err := c.ScoringRuleSets(); err != nil {
		return err
	}
	return nil
}

// ScoringRuleSets converts RuleSets, sorted by kind.
func (c *Config) ScoringRuleSets() ([]scoring.RuleSet, error) {
	kinds := make([]string, 0, len(c.RuleSets))
	for k := range c.RuleSets {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	out := make([]scoring.RuleSet, 0, len(kinds))
	for _, kind := range kinds {
		rc := c.RuleSets[kind]
		rs := scoring.RuleSet{
			Kind:    model.Kind(kind),
			Source:  model.Kind(rc.Source),
			Weights: make(map[string]map[int]float64, len(rc.Weights)),
		}
		if rc.Counter != "" {
			ck, err := model.ParseCounterKind(rc.Counter)
			if err != nil {
				return nil, fmt.Errorf("rule_sets.%s.counter: %w: %w", kind, ErrInvalidConfig, err)
			}
			rs.Counter = ck
		}
		for category, tiers := range rc.Weights {
			rs.Weights[category] = make(map[int]float64, len(tiers))
			for tier, w := range tiers {
				t, err := strconv.Atoi(tier)
				if err != nil {
					return nil, fmt.Errorf("rule_sets.%s.weights.%s: tier %q: %w", kind, category, tier, ErrInvalidConfig)
				}
				rs.Weights[category][t] = w
			}
		}
		out = append(out, rs)
	}
	return out, nil
}
