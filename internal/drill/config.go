// Package drill exercises a running guildboard end to end over HTTP: it
// creates an event, enrolls players concurrently, ends the event early and
// checks the published standings.
package drill

import (
	"errors"
	"time"
)

// Defaults used by the command.
const (
	DefaultKind         = "slayer"
	DefaultDuration     = time.Hour
	DefaultPlayers      = 20
	DefaultWorkers      = 4
	DefaultTimeout      = 10 * time.Second
	DefaultPollInterval = 500 * time.Millisecond
	DefaultResultWait   = 2 * time.Minute
)

// ErrVerification marks a drill whose result broke an ordering or
// accounting rule.
var ErrVerification = errors.New("result verification failed")

// Config holds configuration for a drill run.
type Config struct {
	BaseURL      string        // Base URL of the service
	Kind         string        // Event kind to create
	Duration     time.Duration // Event duration; the drill ends it early
	Players      []string      // Player ids to enroll; generated when empty
	NumPlayers   int           // Number of players to generate
	Workers      int           // Concurrent enrollment requests
	Timeout      time.Duration // HTTP request timeout
	PollInterval time.Duration // Result polling interval
	ResultWait   time.Duration // Upper bound on waiting for the result
}

func (c *Config) withDefaults() {
	if c.Kind == "" {
		c.Kind = DefaultKind
	}
	if c.Duration <= 0 {
		c.Duration = DefaultDuration
	}
	if c.NumPlayers <= 0 {
		c.NumPlayers = DefaultPlayers
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.ResultWait <= 0 {
		c.ResultWait = DefaultResultWait
	}
}

// Event is the event shape returned by the API.
type Event struct {
	ID           string        `json:"id"`
	Kind         string        `json:"kind"`
	State        string        `json:"state"`
	EndsAt       *time.Time    `json:"ends_at,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
}

// Participant is one roster entry.
type Participant struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
	Position    int    `json:"position"`
	HasBaseline bool   `json:"has_baseline"`
}

// Standing is one ranked row.
type Standing struct {
	Rank        int     `json:"rank"`
	PlayerID    string  `json:"player_id"`
	DisplayName string  `json:"display_name"`
	Score       float64 `json:"score"`
}

// Unscored is a participant left out of the ranking.
type Unscored struct {
	PlayerID string `json:"player_id"`
	Stage    string `json:"stage"`
	Reason   string `json:"reason"`
}

// Result is the result shape returned by the API.
type Result struct {
	Event     Event      `json:"event"`
	Standings []Standing `json:"standings"`
	Unscored  []Unscored `json:"unscored"`
}

// Stats summarizes a run.
type Stats struct {
	EventID   string
	Enrolled  int
	Scored    int
	Unscored  int
	StartTime time.Time
	Duration  time.Duration
}
