package drill

import (
	"fmt"
)

// Verify checks a result against the roster: every participant is either
// ranked or unscored exactly once, ranks run 1..n, scores never increase
// down the table, and equal scores keep enrollment order.
func Verify(res Result, roster []Participant) error {
	position := make(map[string]int, len(roster))
	for _, p := range roster {
		position[p.PlayerID] = p.Position
	}
	if res.Event.State != "finished" && res.Event.State != "failed" {
		return fmt.Errorf("event state %q: %w", res.Event.State, ErrVerification)
	}

	seen := make(map[string]bool, len(roster))
	mark := func(id string) error {
		if _, ok := position[id]; !ok {
			return fmt.Errorf("unknown player %s in result: %w", id, ErrVerification)
		}
		if seen[id] {
			return fmt.Errorf("player %s listed twice: %w", id, ErrVerification)
		}
		seen[id] = true
		return nil
	}

	for i, s := range res.Standings {
		if err := mark(s.PlayerID); err != nil {
			return err
		}
		if s.Rank != i+1 {
			return fmt.Errorf("row %d has rank %d: %w", i, s.Rank, ErrVerification)
		}
		if s.Score < 0 {
			return fmt.Errorf("negative score for %s: %w", s.PlayerID, ErrVerification)
		}
		if i == 0 {
			continue
		}
		prev := res.Standings[i-1]
		switch {
		case s.Score > prev.Score:
			return fmt.Errorf("rank %d scores above rank %d: %w", s.Rank, prev.Rank, ErrVerification)
		case s.Score == prev.Score && position[s.PlayerID] < position[prev.PlayerID]:
			return fmt.Errorf("tie between %s and %s out of enrollment order: %w", prev.PlayerID, s.PlayerID, ErrVerification)
		}
	}
	for _, u := range res.Unscored {
		if err := mark(u.PlayerID); err != nil {
			return err
		}
	}
	if len(seen) != len(roster) {
		return fmt.Errorf("%d of %d players accounted for: %w", len(seen), len(roster), ErrVerification)
	}
	return nil
}
