package scoring

import (
	"fmt"
	"sort"
	"sync"

	"github.com/okian/guildboard/internal/domain/model"
)

// Built-in kinds.
const (
	KindSlayer   model.Kind = "slayer"
	KindDungeons model.Kind = "dungeons"
)

// SlayerBosses lists the slayer categories in display order.
var SlayerBosses = []string{"zombie", "spider", "wolf", "enderman", "blaze", "vampire"}

// Dungeon categories.
const (
	CategoryCatacombs       = "catacombs"
	CategoryMasterCatacombs = "master_catacombs"
)

const (
	slayerTiers     = 5
	catacombsFloors = 8
)

// RuleSet describes how one event kind is scored. Weights doubles as the
// key enumeration: a snapshot may only carry (category, tier) cells present here.
// Source names the stats section to read and defaults to Kind.
type RuleSet struct {
	Kind    model.Kind
	Source  model.Kind
	Counter model.CounterKind
	Weights map[string]map[int]float64
}

// Section returns the stats section this rule-set scores.
func (r RuleSet) Section() model.Kind {
	if r.Source != "" {
		return r.Source
	}
	return r.Kind
}

// Weight returns the weight of a cell, zero when absent.
func (r RuleSet) Weight(category string, tier int) float64 {
	return r.Weights[category][tier]
}

// Keys returns every weighted cell, sorted.
func (r RuleSet) Keys() []model.Key {
	keys := make([]model.Key, 0, len(r.Weights)*slayerTiers)
	for c, tiers := range r.Weights {
		for t := range tiers {
			keys = append(keys, model.Key{Category: c, Tier: t})
		}
	}
	model.SortKeys(keys)
	return keys
}

// Validate rejects a snapshot carrying any cell the rule-set does not know.
func (r RuleSet) Validate(s *model.Snapshot) error {
	if s == nil {
		return nil
	}
	for _, k := range s.Keys() {
		if _, ok := r.Weights[k.Category][k.Tier]; !ok {
			return fmt.Errorf("%s: %s: %w", r.Kind, k, ErrUnknownKey)
		}
	}
	return nil
}

// Check reports a malformed rule-set.
func (r RuleSet) Check() error {
	if r.Kind == "" {
		return fmt.Errorf("empty kind: %w", ErrInvalidRule)
	}
	if len(r.Weights) == 0 {
		return fmt.Errorf("%s: no weights: %w", r.Kind, ErrInvalidRule)
	}
	for c, tiers := range r.Weights {
		if c == "" || len(tiers) == 0 {
			return fmt.Errorf("%s: category %q has no tiers: %w", r.Kind, c, ErrInvalidRule)
		}
		for t, w := range tiers {
			if t < 0 || w < 0 {
				return fmt.Errorf("%s: %s/%d weight %v: %w", r.Kind, c, t, w, ErrInvalidRule)
			}
		}
	}
	if _, err := model.ParseCounterKind(string(r.Counter)); err != nil {
		return fmt.Errorf("%s: %w", r.Kind, ErrInvalidRule)
	}
	return nil
}

// SlayerRules weights tier N of every boss by N+1 and counts attempts.
func SlayerRules() RuleSet {
	w := make(map[string]map[int]float64, len(SlayerBosses))
	for _, boss := range SlayerBosses {
		tiers := make(map[int]float64, slayerTiers)
		for t := 0; t < slayerTiers; t++ {
			tiers[t] = float64(t + 1)
		}
		w[boss] = tiers
	}
	return RuleSet{Kind: KindSlayer, Counter: model.CounterAttempts, Weights: w}
}

// DungeonRules weights catacombs floor N by N+1 and master floors double, counting completions.
func DungeonRules() RuleSet {
	normal := make(map[int]float64, catacombsFloors)
	master := make(map[int]float64, catacombsFloors-1)
	for f := 0; f < catacombsFloors; f++ {
		normal[f] = float64(f + 1)
		if f > 0 {
			master[f] = float64(2 * (f + 1))
		}
	}
	return RuleSet{
		Kind:    KindDungeons,
		Counter: model.CounterKills,
		Weights: map[string]map[int]float64{CategoryCatacombs: normal, CategoryMasterCatacombs: master},
	}
}

// Catalog maps kinds to rule-sets.
type Catalog struct {
	mu    sync.RWMutex
	rules map[model.Kind]RuleSet
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithDefaults registers the built-in slayer and dungeons rule-sets.
func WithDefaults() Option {
	return func(c *Catalog) {
		c.rules[KindSlayer] = SlayerRules()
		c.rules[KindDungeons] = DungeonRules()
	}
}

// WithRuleSet registers or replaces one rule-set.
func WithRuleSet(r RuleSet) Option {
	return func(c *Catalog) {
		c.rules[r.Kind] = r
	}
}

// NewCatalog builds a catalog; every registered rule-set is checked.
func NewCatalog(opts ...Option) (*Catalog, error) {
	c := &Catalog{rules: make(map[model.Kind]RuleSet)}
	for _, opt := range opts {
		opt(c)
	}
	for kind, r := range c.rules {
		if r.Counter == "" {
			r.Counter = model.CounterAttempts
		}
		if r.Section() != r.Kind {
			base, ok := builtin(r.Section())
			if !ok {
				return nil, fmt.Errorf("%s: source %q: %w", r.Kind, r.Source, ErrInvalidRule)
			}
			r.Weights = widen(r.Weights, base)
		}
		if err := r.Check(); err != nil {
			return nil, err
		}
		c.rules[kind] = r
	}
	return c, nil
}

func builtin(kind model.Kind) (RuleSet, bool) {
	switch kind {
	case KindSlayer:
		return SlayerRules(), true
	case KindDungeons:
		return DungeonRules(), true
	}
	return RuleSet{}, false
}

// widen adds every cell of base missing from w with weight zero, so a
// rule-set scoring a subset of a section still accepts its full snapshots.
func widen(w map[string]map[int]float64, base RuleSet) map[string]map[int]float64 {
	out := make(map[string]map[int]float64, len(base.Weights))
	for c, tiers := range base.Weights {
		out[c] = make(map[int]float64, len(tiers))
		for t := range tiers {
			out[c][t] = 0
		}
	}
	for c, tiers := range w {
		if out[c] == nil {
			out[c] = make(map[int]float64, len(tiers))
		}
		for t, v := range tiers {
			out[c][t] = v
		}
	}
	return out
}

// Lookup returns the rule-set for kind.
func (c *Catalog) Lookup(kind model.Kind) (RuleSet, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rules[kind]
	if !ok {
		return RuleSet{}, fmt.Errorf("%q: %w", kind, ErrUnknownKind)
	}
	return r, nil
}

// Kinds lists the registered kinds, sorted.
func (c *Catalog) Kinds() []model.Kind {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Kind, 0, len(c.rules))
	for k := range c.rules {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
