package api

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/okian/guildboard/internal/domain/event"
	"github.com/okian/guildboard/internal/domain/model"
)

// createEventRequest mirrors the OpenAPI schema for POST /events. Duration
// is a Go duration string such as "168h"; duration_seconds is accepted when
// it is absent.
// maxDurationSeconds is the largest value that still fits a time.Duration.
const maxDurationSeconds = int64(math.MaxInt64 / int64(time.Second))

type createEventRequest struct {
	Kind            string `json:"kind"`
	Duration        string `json:"duration"`
	DurationSeconds int64  `json:"duration_seconds"`
}

func (c createEventRequest) validate() (time.Duration, error) {
	if strings.TrimSpace(c.Kind) == "" {
		return 0, errors.New("missing kind")
	}
	if c.Duration != "" {
		d, err := time.ParseDuration(c.Duration)
		if err != nil {
			return 0, errors.New("invalid duration; use a form like 72h or 90m")
		}
		return d, nil
	}
	if c.DurationSeconds <= 0 {
		return 0, errors.New("missing duration")
	}
	if c.DurationSeconds > maxDurationSeconds {
		return 0, errors.New("duration_seconds is too large")
	}
	return time.Duration(c.DurationSeconds) * time.Second, nil
}

type enrollRequest struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
}

func (e enrollRequest) validate() error {
	if strings.TrimSpace(e.PlayerID) == "" {
		return errors.New("missing player_id")
	}
	return nil
}

type eventResponse struct {
	ID              string                `json:"id"`
	Kind            string                `json:"kind"`
	State           string                `json:"state"`
	DurationSeconds int64                 `json:"duration_seconds"`
	CreatedAt       time.Time             `json:"created_at"`
	StartedAt       *time.Time            `json:"started_at,omitempty"`
	EndsAt          *time.Time            `json:"ends_at,omitempty"`
	FinishedAt      *time.Time            `json:"finished_at,omitempty"`
	Failure         string                `json:"failure,omitempty"`
	Participants    []participantResponse `json:"participants,omitempty"`
}

type participantResponse struct {
	PlayerID      string    `json:"player_id"`
	DisplayName   string    `json:"display_name"`
	Position      int       `json:"position"`
	EnrolledAt    time.Time `json:"enrolled_at"`
	HasBaseline   bool      `json:"has_baseline"`
	BaselineError string    `json:"baseline_error,omitempty"`
}

type standingResponse struct {
	Rank        int     `json:"rank"`
	PlayerID    string  `json:"player_id"`
	DisplayName string  `json:"display_name"`
	Score       float64 `json:"score"`
}

type unscoredResponse struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
	Stage       string `json:"stage"`
	Reason      string `json:"reason"`
}

type resultResponse struct {
	Event     eventResponse      `json:"event"`
	Standings []standingResponse `json:"standings"`
	Unscored  []unscoredResponse `json:"unscored"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func toEventResponse(rec model.EventRecord) eventResponse {
	return eventResponse{
		ID:              rec.ID,
		Kind:            string(rec.Kind),
		State:           string(rec.State),
		DurationSeconds: int64(rec.Duration / time.Second),
		CreatedAt:       rec.CreatedAt,
		StartedAt:       optionalTime(rec.StartedAt),
		EndsAt:          optionalTime(rec.EndsAt),
		FinishedAt:      optionalTime(rec.FinishedAt),
		Failure:         rec.Failure,
	}
}

func toParticipantResponse(p model.ParticipantRecord) participantResponse {
	return participantResponse{
		PlayerID:      p.PlayerID,
		DisplayName:   p.DisplayName,
		Position:      p.Position,
		EnrolledAt:    p.EnrolledAt,
		HasBaseline:   p.HasBaseline(),
		BaselineError: p.BaselineError,
	}
}

func toViewResponse(v event.View) eventResponse {
	out := toEventResponse(v.Event)
	out.Participants = make([]participantResponse, 0, len(v.Participants))
	for _, p := range v.Participants {
		out.Participants = append(out.Participants, toParticipantResponse(p))
	}
	return out
}

func toResultResponse(res event.Result) resultResponse {
	out := resultResponse{
		Event:     toEventResponse(res.Event),
		Standings: make([]standingResponse, 0, len(res.Standings)),
		Unscored:  make([]unscoredResponse, 0, len(res.Unscored)),
	}
	for _, s := range res.Standings {
		out.Standings = append(out.Standings, standingResponse(s))
	}
	for _, u := range res.Unscored {
		out.Unscored = append(out.Unscored, unscoredResponse(u))
	}
	return out
}
