package event

import (
	"fmt"
	"sort"

	"github.com/okian/guildboard/internal/domain/model"
)

// Roster is the ordered participant list of one event.
// It is not safe for concurrent use; the owning Event serializes access.
type Roster struct {
	order []string
	byID  map[string]*model.ParticipantRecord
	next  int
}

// NewRoster returns an empty roster.
func NewRoster() *Roster {
	return &Roster{byID: make(map[string]*model.ParticipantRecord)}
}

// RestoreRoster rebuilds a roster from persisted records, ordered by position.
func RestoreRoster(records []model.ParticipantRecord) *Roster {
	sorted := make([]model.ParticipantRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })
	r := NewRoster()
	for _, p := range sorted {
		if _, dup := r.byID[p.PlayerID]; dup {
			continue
		}
		p := p.Clone()
		r.order = append(r.order, p.PlayerID)
		r.byID[p.PlayerID] = &p
		if p.Position >= r.next {
			r.next = p.Position + 1
		}
	}
	return r
}

// Enroll appends p at the next position.
func (r *Roster) Enroll(p model.ParticipantRecord) (model.ParticipantRecord, error) {
	if _, ok := r.byID[p.PlayerID]; ok {
		return model.ParticipantRecord{}, fmt.Errorf("%s: %w", p.PlayerID, ErrAlreadyEnrolled)
	}
	p = p.Clone()
	p.Position = r.next
	r.next++
	r.order = append(r.order, p.PlayerID)
	r.byID[p.PlayerID] = &p
	return p.Clone(), nil
}

// Contains reports whether playerID is enrolled.
func (r *Roster) Contains(playerID string) bool {
	_, ok := r.byID[playerID]
	return ok
}

// Get returns a copy of one participant.
func (r *Roster) Get(playerID string) (model.ParticipantRecord, error) {
	p, ok := r.byID[playerID]
	if !ok {
		return model.ParticipantRecord{}, fmt.Errorf("%s: %w", playerID, ErrParticipantNotFound)
	}
	return p.Clone(), nil
}

// Baseline returns the participant's baseline snapshot.
func (r *Roster) Baseline(playerID string) (*model.Snapshot, error) {
	p, ok := r.byID[playerID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", playerID, ErrParticipantNotFound)
	}
	if p.Baseline == nil {
		return nil, fmt.Errorf("%s: %w", playerID, ErrNoBaseline)
	}
	return p.Baseline.Clone(), nil
}

// Len returns the number of participants.
func (r *Roster) Len() int { return len(r.order) }

// All returns copies of every participant in enrollment order.
func (r *Roster) All() []model.ParticipantRecord {
	out := make([]model.ParticipantRecord, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id].Clone())
	}
	return out
}

// Clone returns an independent copy.
func (r *Roster) Clone() *Roster {
	return RestoreRoster(r.All())
}

// replace overwrites an enrolled participant, keeping its position.
func (r *Roster) replace(p model.ParticipantRecord) {
	cur, ok := r.byID[p.PlayerID]
	if !ok {
		return
	}
	p = p.Clone()
	p.Position = cur.Position
	r.byID[p.PlayerID] = &p
}
