// Package scoring turns pairs of stat snapshots into scores and ranks them.
// Everything here is pure; callers own concurrency.
package scoring

import (
	"math"
	"sort"

	"github.com/okian/guildboard/internal/domain/model"
)

// Score sums max(0, current-baseline) * weight over every weighted cell.
// Cells missing from either snapshot count as zero. Cells are visited in
// sorted order so the floating point sum is reproducible.
func Score(baseline, current *model.Snapshot, rules RuleSet) float64 {
	var total float64
	for _, k := range rules.Keys() {
		w := rules.Weight(k.Category, k.Tier)
		if w == 0 {
			continue
		}
		delta := current.Get(k.Category, k.Tier).Value(rules.Counter) - baseline.Get(k.Category, k.Tier).Value(rules.Counter)
		total += math.Max(0, delta) * w
	}
	return total
}

// Regressions counts weighted cells whose counter went down between snapshots.
func Regressions(baseline, current *model.Snapshot, rules RuleSet) int {
	n := 0
	for _, k := range rules.Keys() {
		if current.Get(k.Category, k.Tier).Value(rules.Counter) < baseline.Get(k.Category, k.Tier).Value(rules.Counter) {
			n++
		}
	}
	return n
}

// Entry is one scored participant. Position is its enrollment order.
type Entry struct {
	PlayerID    string
	DisplayName string
	Position    int
	Score       float64
	Rank        int
}

// Rank orders entries by descending score, breaking ties by enrollment
// order, and assigns 1-based ranks. The input slice is not modified.
func Rank(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Position < out[j].Position
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
