package model

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// CounterKind selects which field of Counters a rule-set scores.
type CounterKind string

const (
	CounterAttempts CounterKind = "attempts"
	CounterKills    CounterKind = "kills"
)

// ParseCounterKind maps a config string onto a CounterKind; empty means attempts.
func ParseCounterKind(s string) (CounterKind, error) {
	switch CounterKind(s) {
	case "", CounterAttempts:
		return CounterAttempts, nil
	case CounterKills:
		return CounterKills, nil
	}
	return "", fmt.Errorf("counter %q: %w", s, ErrValidation)
}

// Counters are the monotone activity totals of one (category, tier) cell.
type Counters struct {
	Attempts int64 `json:"attempts"`
	Kills    int64 `json:"kills"`
}

// Value returns the field named by k.
func (c Counters) Value(k CounterKind) float64 {
	if k == CounterKills {
		return float64(c.Kills)
	}
	return float64(c.Attempts)
}

// Snapshot is a point-in-time reading of a player's counters.
// Categories maps category (e.g. boss name) to tier to counters.
type Snapshot struct {
	ProfileID  string                      `json:"profile_id,omitempty"`
	FetchedAt  time.Time                   `json:"fetched_at"`
	Categories map[string]map[int]Counters `json:"categories"`
}

// NewSnapshot returns an empty snapshot stamped with at.
func NewSnapshot(profileID string, at time.Time) *Snapshot {
	return &Snapshot{ProfileID: profileID, FetchedAt: at, Categories: map[string]map[int]Counters{}}
}

// Set stores counters for category/tier.
func (s *Snapshot) Set(category string, tier int, c Counters) {
	if s.Categories == nil {
		s.Categories = map[string]map[int]Counters{}
	}
	tiers, ok := s.Categories[category]
	if !ok {
		tiers = map[int]Counters{}
		s.Categories[category] = tiers
	}
	tiers[tier] = c
}

// Get returns the counters of category/tier, zero when absent.
func (s *Snapshot) Get(category string, tier int) Counters {
	if s == nil {
		return Counters{}
	}
	return s.Categories[category][tier]
}

// Keys returns every (category, tier) present, sorted.
func (s *Snapshot) Keys() []Key {
	if s == nil {
		return nil
	}
	keys := make([]Key, 0, len(s.Categories)*5)
	for c, tiers := range s.Categories {
		for t := range tiers {
			keys = append(keys, Key{Category: c, Tier: t})
		}
	}
	SortKeys(keys)
	return keys
}

// Clone returns a deep copy; nil stays nil.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := &Snapshot{ProfileID: s.ProfileID, FetchedAt: s.FetchedAt, Categories: make(map[string]map[int]Counters, len(s.Categories))}
	for c, tiers := range s.Categories {
		cp := make(map[int]Counters, len(tiers))
		for t, v := range tiers {
			cp[t] = v
		}
		out.Categories[c] = cp
	}
	return out
}

// Key addresses one counter cell.
type Key struct {
	Category string
	Tier     int
}

func (k Key) String() string { return k.Category + "/" + strconv.Itoa(k.Tier) }

// SortKeys orders keys by category then tier.
func SortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Category != keys[j].Category {
			return keys[i].Category < keys[j].Category
		}
		return keys[i].Tier < keys[j].Tier
	})
}
