// Package event implements the lifecycle of one guild event: enrollment,
// baseline capture at activation, the finish pass, and on-demand results.
package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/guildboard/internal/domain/model"
	"github.com/okian/guildboard/internal/domain/scoring"
	"github.com/okian/guildboard/pkg/logger"
	"github.com/okian/guildboard/pkg/metrics"
)

const defaultFetchConcurrency = 4

// Deps are the collaborators shared by every event of a registry.
type Deps struct {
	Stats            StatsProvider
	Store            Store
	Clock            func() time.Time
	FetchConcurrency int
	Logger           logger.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.FetchConcurrency <= 0 {
		d.FetchConcurrency = defaultFetchConcurrency
	}
	if d.Logger == nil {
		d.Logger = logger.Discard()
	}
	return d
}

// Event is the aggregate for one competition. All transitions hold mu,
// including the stat fetches they depend on, so a single event never has
// two transitions in flight. State is committed to memory only after the
// store accepted it.
type Event struct {
	mu        sync.Mutex
	rec       model.EventRecord
	rules     scoring.RuleSet
	roster    *Roster
	discarded bool
	deps      Deps
}

// New returns a Created event. It is not persisted.
func New(id string, rules scoring.RuleSet, duration time.Duration, deps Deps) *Event {
	deps = deps.withDefaults()
	return &Event{
		rec: model.EventRecord{
			ID:        id,
			Kind:      rules.Kind,
			Duration:  duration,
			State:     model.StateCreated,
			CreatedAt: deps.Clock().UTC(),
		},
		rules:  rules,
		roster: NewRoster(),
		deps:   deps,
	}
}

// Restore rebuilds an event from persisted records.
func Restore(stored model.StoredEvent, rules scoring.RuleSet, deps Deps) *Event {
	return &Event{
		rec:    stored.Event,
		rules:  rules,
		roster: RestoreRoster(stored.Participants),
		deps:   deps.withDefaults(),
	}
}

// View is an immutable copy of an event.
type View struct {
	Event        model.EventRecord
	Participants []model.ParticipantRecord
}

// Record returns a copy of the event row.
func (e *Event) Record() model.EventRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec
}

// View returns the event and its roster.
func (e *Event) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return View{Event: e.rec, Participants: e.roster.All()}
}

// Participant returns one roster entry.
func (e *Event) Participant(playerID string) (model.ParticipantRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.roster.Get(playerID)
}

// Save writes the event and its full roster.
func (e *Event) Save(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.deps.Store.SaveEvent(ctx, e.rec, e.roster.All()...); err != nil {
		return fmt.Errorf("save %s: %w: %w", e.rec.ID, ErrPersistence, err)
	}
	return nil
}

// AddParticipant enrolls a player. While Created the player waits for
// activation to get a baseline; while Active the baseline is fetched now.
// A failed fetch still enrolls the player, who is then reported unscored.
func (e *Event) AddParticipant(ctx context.Context, playerID, displayName string) (model.ParticipantRecord, error) {
	if playerID == "" {
		return model.ParticipantRecord{}, fmt.Errorf("empty player id: %w", ErrInvalidParticipant)
	}
	if displayName == "" {
		displayName = playerID
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.discarded {
		return model.ParticipantRecord{}, fmt.Errorf("%s: %w", e.rec.ID, ErrDiscarded)
	}
	if e.rec.State.Terminal() {
		return model.ParticipantRecord{}, fmt.Errorf("%s is %s: %w", e.rec.ID, e.rec.State, ErrEventClosed)
	}
	if e.roster.Contains(playerID) {
		return model.ParticipantRecord{}, fmt.Errorf("%s in %s: %w", playerID, e.rec.ID, ErrAlreadyEnrolled)
	}

	state := e.rec.State
	p := model.ParticipantRecord{
		EventID:     e.rec.ID,
		PlayerID:    playerID,
		DisplayName: displayName,
		EnrolledAt:  e.deps.Clock().UTC(),
	}
	if state == model.StateActive {
		snap, err := e.fetchOne(ctx, playerID)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.ParticipantRecord{}, fmt.Errorf("enroll %s: %w", playerID, ctxErr)
		}
		e.applyBaseline(ctx, &p, snap, err)
	}

	roster := e.roster.Clone()
	p, err := roster.Enroll(p)
	if err != nil {
		return model.ParticipantRecord{}, err
	}
	if err := e.deps.Store.SaveEvent(ctx, e.rec, p); err != nil {
		return model.ParticipantRecord{}, fmt.Errorf("enroll %s: %w: %w", playerID, ErrPersistence, err)
	}
	e.roster = roster
	metrics.RecordEnrollment(string(e.rec.Kind), string(state))
	e.deps.Logger.Info(ctx, "participant enrolled",
		logger.String("event_id", e.rec.ID),
		logger.String("player_id", playerID),
		logger.String("state", string(state)),
		logger.Bool("has_baseline", p.HasBaseline()),
	)
	return p, nil
}

// Activate moves a Created event to Active, fixes its end time and captures
// a baseline for everyone already enrolled. It returns the committed record.
func (e *Event) Activate(ctx context.Context) (model.EventRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.discarded {
		return model.EventRecord{}, fmt.Errorf("%s: %w", e.rec.ID, ErrDiscarded)
	}
	if e.rec.State != model.StateCreated {
		return model.EventRecord{}, fmt.Errorf("activate %s (%s): %w", e.rec.ID, e.rec.State, ErrInvalidState)
	}

	now := e.deps.Clock().UTC()
	next := e.rec
	next.State = model.StateActive
	next.StartedAt = now
	next.EndsAt = now.Add(e.rec.Duration)

	roster := e.roster.Clone()
	participants := roster.All()
	snaps, errs := e.fetchAll(ctx, participants)
	if err := ctx.Err(); err != nil {
		return model.EventRecord{}, fmt.Errorf("activate %s: %w", e.rec.ID, err)
	}
	for i := range participants {
		e.applyBaseline(ctx, &participants[i], snaps[i], errs[i])
		roster.replace(participants[i])
	}

	if err := e.deps.Store.SaveEvent(ctx, next, roster.All()...); err != nil {
		return model.EventRecord{}, fmt.Errorf("activate %s: %w: %w", e.rec.ID, ErrPersistence, err)
	}
	e.rec = next
	e.roster = roster

	metrics.RecordEventActivated(string(next.Kind))
	e.deps.Logger.Info(ctx, "event activated",
		logger.String("event_id", next.ID),
		logger.String("kind", string(next.Kind)),
		logger.Time("ends_at", next.EndsAt),
		logger.Int("participants", roster.Len()),
	)
	return next, nil
}

// Finish runs the end-of-event pass: it re-fetches every participant that
// holds a baseline and commits Finished. If the commit fails the event is
// Failed in memory with all fetched snapshots kept, a Failed write is
// attempted, and the persistence error is returned.
// Calling Finish on an event that is not Active returns ErrNotActive.
func (e *Event) Finish(ctx context.Context) (model.EventRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.discarded || e.rec.State != model.StateActive {
		return e.rec, fmt.Errorf("finish %s (%s): %w", e.rec.ID, e.rec.State, ErrNotActive)
	}
	start := time.Now()

	roster := e.roster.Clone()
	var scoreable []model.ParticipantRecord
	for _, p := range roster.All() {
		if p.HasBaseline() {
			scoreable = append(scoreable, p)
		}
	}
	snaps, errs := e.fetchAll(ctx, scoreable)
	if err := ctx.Err(); err != nil {
		return e.rec, fmt.Errorf("finish %s: %w", e.rec.ID, err)
	}
	for i := range scoreable {
		p := &scoreable[i]
		if errs[i] != nil {
			p.Current = nil
			p.CurrentError = errs[i].Error()
			metrics.RecordUnscored(string(e.rules.Kind), reasonCode(errs[i]))
			e.deps.Logger.Warn(ctx, "final snapshot unavailable",
				logger.String("event_id", e.rec.ID),
				logger.String("player_id", p.PlayerID),
				logger.Error(errs[i]),
			)
		} else {
			p.Current = snaps[i]
			p.CurrentError = ""
			e.checkAnomalies(ctx, *p)
		}
		roster.replace(*p)
	}

	now := e.deps.Clock().UTC()
	next := e.rec
	next.State = model.StateFinished
	next.FinishedAt = now

	if err := e.deps.Store.SaveEvent(ctx, next, roster.All()...); err != nil {
		failed := e.rec
		failed.State = model.StateFailed
		failed.FinishedAt = now
		failed.Failure = "finish not persisted: " + err.Error()
		e.rec = failed
		e.roster = roster
		// If this write fails too the store still says Active. LoadAll re-arms
		// such an event on restart, so the finish is retried rather than lost.
		if ferr := e.deps.Store.SaveEvent(ctx, failed, roster.All()...); ferr != nil {
			metrics.RecordStoreDivergence(string(failed.Kind))
			e.deps.Logger.Error(ctx, "failed state not persisted; store still holds the event as active",
				logger.String("event_id", failed.ID),
				logger.Error(ferr),
			)
		}
		metrics.RecordEventFinished(string(failed.Kind), string(model.StateFailed))
		metrics.RecordFinishDuration(float64(time.Since(start).Milliseconds()))
		e.deps.Logger.Error(ctx, "event failed",
			logger.String("event_id", failed.ID),
			logger.Error(err),
		)
		return failed, fmt.Errorf("finish %s: %w: %w", failed.ID, ErrPersistence, err)
	}

	e.rec = next
	e.roster = roster
	metrics.RecordEventFinished(string(next.Kind), string(model.StateFinished))
	metrics.RecordFinishDuration(float64(time.Since(start).Milliseconds()))
	e.deps.Logger.Info(ctx, "event finished",
		logger.String("event_id", next.ID),
		logger.Int("participants", roster.Len()),
		logger.Int("scoreable", len(scoreable)),
		logger.Duration("took", time.Since(start)),
	)
	return next, nil
}

// Discard deletes a Created event. Any later call sees ErrDiscarded.
func (e *Event) Discard(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.discarded {
		return fmt.Errorf("%s: %w", e.rec.ID, ErrDiscarded)
	}
	if e.rec.State != model.StateCreated {
		return fmt.Errorf("discard %s (%s): %w", e.rec.ID, e.rec.State, ErrInvalidState)
	}
	if err := e.deps.Store.DeleteEvent(ctx, e.rec.ID); err != nil {
		return fmt.Errorf("discard %s: %w: %w", e.rec.ID, ErrPersistence, err)
	}
	e.discarded = true
	metrics.RecordEventDiscarded(string(e.rec.Kind))
	return nil
}

// fetchAll fetches snapshots for ps with bounded concurrency. Every fetch
// runs to completion; failures are reported per index.
func (e *Event) fetchAll(ctx context.Context, ps []model.ParticipantRecord) ([]*model.Snapshot, []error) {
	snaps := make([]*model.Snapshot, len(ps))
	errs := make([]error, len(ps))
	var g errgroup.Group
	g.SetLimit(e.deps.FetchConcurrency)
	for i := range ps {
		g.Go(func() error {
			snaps[i], errs[i] = e.fetchOne(ctx, ps[i].PlayerID)
			return nil
		})
	}
	_ = g.Wait()
	return snaps, errs
}

func (e *Event) fetchOne(ctx context.Context, playerID string) (*model.Snapshot, error) {
	snap, err := e.deps.Stats.Fetch(ctx, e.rules.Section(), playerID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("%s: empty snapshot: %w", playerID, model.ErrNotFound)
	}
	if err := e.rules.Validate(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (e *Event) applyBaseline(ctx context.Context, p *model.ParticipantRecord, snap *model.Snapshot, err error) {
	if err != nil {
		p.Baseline = nil
		p.BaselineError = err.Error()
		metrics.RecordUnscored(string(e.rules.Kind), reasonCode(err))
		e.deps.Logger.Warn(ctx, "baseline unavailable, participant will be unscored",
			logger.String("event_id", e.rec.ID),
			logger.String("player_id", p.PlayerID),
			logger.String("reason", reasonCode(err)),
			logger.Error(err),
		)
		return
	}
	p.Baseline = snap
	p.BaselineError = ""
}

// checkAnomalies reports counter regressions and profile switches. Neither
// changes the score: regressions are already clamped to zero.
func (e *Event) checkAnomalies(ctx context.Context, p model.ParticipantRecord) {
	kind := string(e.rules.Kind)
	if p.Baseline.ProfileID != "" && p.Current.ProfileID != "" && p.Baseline.ProfileID != p.Current.ProfileID {
		metrics.RecordDataAnomaly(kind, "profile_switch")
		e.deps.Logger.Warn(ctx, "participant switched profile during event",
			logger.String("event_id", e.rec.ID),
			logger.String("player_id", p.PlayerID),
			logger.String("baseline_profile", p.Baseline.ProfileID),
			logger.String("current_profile", p.Current.ProfileID),
		)
	}
	if n := scoring.Regressions(p.Baseline, p.Current, e.rules); n > 0 {
		metrics.RecordDataAnomaly(kind, "regression")
		e.deps.Logger.Warn(ctx, "counters decreased during event",
			logger.String("event_id", e.rec.ID),
			logger.String("player_id", p.PlayerID),
			logger.Int("cells", n),
		)
	}
}

// IsNotActive reports whether err means the event had already left Active.
func IsNotActive(err error) bool { return errors.Is(err, ErrNotActive) }
