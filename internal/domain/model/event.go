// Package model contains domain records passed between layers.
package model

import "time"

// Kind names a rule-set, e.g. "slayer" or "dungeons".
type Kind string

// State is the lifecycle position of an event.
type State string

const (
	StateCreated  State = "created"
	StateActive   State = "active"
	StateFinished State = "finished"
	StateFailed   State = "failed"
)

// Valid reports whether s is one of the four lifecycle states.
func (s State) Valid() bool {
	switch s {
	case StateCreated, StateActive, StateFinished, StateFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateFailed
}

// EventRecord is the persisted shape of an event, without its roster.
type EventRecord struct {
	ID         string
	Kind       Kind
	Duration   time.Duration
	State      State
	CreatedAt  time.Time
	StartedAt  time.Time // zero until activation
	EndsAt     time.Time // StartedAt + Duration, immutable once set
	FinishedAt time.Time // zero until the event reaches a terminal state
	Failure    string
}

// ParticipantRecord is one roster entry together with its snapshots.
// Position is the zero-based enrollment order and breaks ranking ties.
type ParticipantRecord struct {
	EventID       string
	PlayerID      string
	DisplayName   string
	Position      int
	EnrolledAt    time.Time
	Baseline      *Snapshot
	BaselineError string
	Current       *Snapshot
	CurrentError  string
}

// HasBaseline reports whether the participant can be scored at finish.
func (p ParticipantRecord) HasBaseline() bool { return p.Baseline != nil }

// Clone returns a deep copy.
func (p ParticipantRecord) Clone() ParticipantRecord {
	out := p
	out.Baseline = p.Baseline.Clone()
	out.Current = p.Current.Clone()
	return out
}

// FinishTask asks a worker to run the finish pass of one event.
type FinishTask struct {
	EventID string
	FireAt  time.Time
}

// Token identifies one timer firing for de-duplication.
func (t FinishTask) Token() string {
	return t.EventID + "@" + t.FireAt.UTC().Format(time.RFC3339Nano)
}

// StoredEvent is an event and its roster as read back from persistence.
type StoredEvent struct {
	Event        EventRecord
	Participants []ParticipantRecord
}
