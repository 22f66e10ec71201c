package event

import (
	"fmt"
	"time"

	"github.com/okian/guildboard/internal/domain/model"
	"github.com/okian/guildboard/internal/domain/scoring"
	"github.com/okian/guildboard/pkg/metrics"
)

// Standing is one ranked row of a result.
type Standing struct {
	Rank        int
	PlayerID    string
	DisplayName string
	Score       float64
}

// Unscored is a participant left out of the ranking, with the reason.
type Unscored struct {
	PlayerID    string
	DisplayName string
	Stage       string // "baseline" or "final"
	Reason      string
}

// Result is the standings of an ended event. It is derived from the stored
// snapshots on every call and never persisted.
type Result struct {
	Event     model.EventRecord
	Standings []Standing
	Unscored  []Unscored
}

// Result computes the standings of a Finished or Failed event.
// A Failed event reports whatever final snapshots were fetched.
func (e *Event) Result() (Result, error) {
	e.mu.Lock()
	rec := e.rec
	participants := e.roster.All()
	discarded := e.discarded
	e.mu.Unlock()

	if discarded {
		return Result{}, fmt.Errorf("%s: %w", rec.ID, ErrDiscarded)
	}
	if !rec.State.Terminal() {
		return Result{}, fmt.Errorf("result %s (%s): %w", rec.ID, rec.State, ErrNotFinished)
	}
	start := time.Now()
	res := Compute(rec, participants, e.rules)
	metrics.RecordResultComputed(float64(time.Since(start).Microseconds())/1000, len(res.Standings))
	return res, nil
}

// Compute scores and ranks participants. Participants without both
// snapshots are listed as unscored in enrollment order.
func Compute(rec model.EventRecord, participants []model.ParticipantRecord, rules scoring.RuleSet) Result {
	res := Result{Event: rec, Standings: []Standing{}, Unscored: []Unscored{}}
	entries := make([]scoring.Entry, 0, len(participants))
	for _, p := range participants {
		switch {
		case p.Baseline == nil:
			reason := p.BaselineError
			if reason == "" {
				reason = ReasonNoBaseline
			}
			res.Unscored = append(res.Unscored, Unscored{PlayerID: p.PlayerID, DisplayName: p.DisplayName, Stage: "baseline", Reason: reason})
		case p.Current == nil:
			reason := p.CurrentError
			if reason == "" {
				reason = ReasonUnavailable
			}
			res.Unscored = append(res.Unscored, Unscored{PlayerID: p.PlayerID, DisplayName: p.DisplayName, Stage: "final", Reason: reason})
		default:
			entries = append(entries, scoring.Entry{
				PlayerID:    p.PlayerID,
				DisplayName: p.DisplayName,
				Position:    p.Position,
				Score:       scoring.Score(p.Baseline, p.Current, rules),
			})
		}
	}
	for _, en := range scoring.Rank(entries) {
		res.Standings = append(res.Standings, Standing{
			Rank:        en.Rank,
			PlayerID:    en.PlayerID,
			DisplayName: en.DisplayName,
			Score:       en.Score,
		})
	}
	return res
}
