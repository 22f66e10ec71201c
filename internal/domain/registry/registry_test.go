package registry_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/guildboard/internal/adapters/repository"
	"github.com/okian/guildboard/internal/domain/event"
	"github.com/okian/guildboard/internal/domain/model"
	"github.com/okian/guildboard/internal/domain/registry"
	"github.com/okian/guildboard/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeTimers struct {
	mu    sync.Mutex
	armed map[string]time.Time
	arms  int
}

func newFakeTimers() *fakeTimers { return &fakeTimers{armed: map[string]time.Time{}} }

func (t *fakeTimers) Schedule(id string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed[id] = at
	t.arms++
}

func (t *fakeTimers) Unschedule(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.armed, id)
}

func (t *fakeTimers) at(id string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.armed[id]
	return at, ok
}

// counterStats returns a zombie tier 0 snapshot whose attempts grow by
// step on every fetch of the same player.
type counterStats struct {
	mu    sync.Mutex
	step  map[string]int64
	seen  map[string]int64
	fails map[string]error
}

func newCounterStats() *counterStats {
	return &counterStats{step: map[string]int64{}, seen: map[string]int64{}, fails: map[string]error{}}
}

func (s *counterStats) Fetch(_ context.Context, _ model.Kind, playerID string) (*model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fails[playerID]; err != nil {
		return nil, err
	}
	snap := model.NewSnapshot("profile-"+playerID, time.Unix(0, 0))
	snap.Set("zombie", 0, model.Counters{Attempts: s.seen[playerID]})
	s.seen[playerID] += s.step[playerID]
	return snap, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	ctx    context.Context
	store  *repository.MemoryStore
	stats  *counterStats
	timers *fakeTimers
	clock  *clock
	reg    *registry.Registry
}

func newFixture() *fixture {
	f := &fixture{
		ctx:    context.Background(),
		store:  repository.NewMemoryStore(),
		stats:  newCounterStats(),
		timers: newFakeTimers(),
		clock:  &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	f.reg = f.build()
	return f
}

func (f *fixture) build() *registry.Registry {
	catalog, err := scoring.NewCatalog(scoring.WithDefaults())
	So(err, ShouldBeNil)
	n := 0
	reg, err := registry.New(catalog, f.timers, event.Deps{
		Stats: f.stats,
		Store: f.store,
		Clock: f.clock.Now,
	}, registry.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("ev-%d", n)
	}))
	So(err, ShouldBeNil)
	return reg
}

func TestCreate(t *testing.T) {
	Convey("Given an empty registry", t, func() {
		f := newFixture()

		Convey("Create persists a Created event", func() {
			rec, err := f.reg.Create(f.ctx, scoring.KindSlayer, time.Hour)
			So(err, ShouldBeNil)
			So(rec.ID, ShouldEqual, "ev-1")
			So(rec.State, ShouldEqual, model.StateCreated)
			So(f.reg.Len(), ShouldEqual, 1)

			stored, err := f.store.LoadEvents(f.ctx)
			So(err, ShouldBeNil)
			So(stored, ShouldHaveLength, 1)
		})

		Convey("Unknown kinds are rejected", func() {
			_, err := f.reg.Create(f.ctx, "bedwars", time.Hour)
			So(errors.Is(err, scoring.ErrUnknownKind), ShouldBeTrue)
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
		})

		Convey("Durations outside the bounds are rejected", func() {
			_, err := f.reg.Create(f.ctx, scoring.KindSlayer, time.Second)
			So(errors.Is(err, registry.ErrInvalidDuration), ShouldBeTrue)
			_, err = f.reg.Create(f.ctx, scoring.KindSlayer, 365*24*time.Hour)
			So(errors.Is(err, registry.ErrInvalidDuration), ShouldBeTrue)
			So(f.reg.Len(), ShouldEqual, 0)
		})

		Convey("Unknown ids report not found", func() {
			_, err := f.reg.Get("nope")
			So(errors.Is(err, registry.ErrEventNotFound), ShouldBeTrue)
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			_, err = f.reg.Activate(f.ctx, "nope")
			So(errors.Is(err, registry.ErrEventNotFound), ShouldBeTrue)
		})

		Convey("List keeps creation order", func() {
			for i := 0; i < 3; i++ {
				_, err := f.reg.Create(f.ctx, scoring.KindDungeons, time.Hour)
				So(err, ShouldBeNil)
			}
			list := f.reg.List()
			So(list, ShouldHaveLength, 3)
			So(list[0].ID, ShouldEqual, "ev-1")
			So(list[2].ID, ShouldEqual, "ev-3")
		})
	})

	Convey("New refuses missing collaborators", t, func() {
		_, err := registry.New(nil, newFakeTimers(), event.Deps{})
		So(errors.Is(err, registry.ErrNotConfigured), ShouldBeTrue)
	})
}

func TestLifecycle(t *testing.T) {
	Convey("Given an active event with two players", t, func() {
		f := newFixture()
		f.stats.step["A"] = 3
		f.stats.step["B"] = 1

		rec, err := f.reg.Create(f.ctx, scoring.KindSlayer, time.Hour)
		So(err, ShouldBeNil)
		_, err = f.reg.Enroll(f.ctx, rec.ID, "A", "Alice")
		So(err, ShouldBeNil)
		_, err = f.reg.Enroll(f.ctx, rec.ID, "B", "Bob")
		So(err, ShouldBeNil)

		active, err := f.reg.Activate(f.ctx, rec.ID)
		So(err, ShouldBeNil)
		So(f.reg.Active(), ShouldEqual, 1)

		at, ok := f.timers.at(rec.ID)
		So(ok, ShouldBeTrue)
		So(at, ShouldEqual, active.EndsAt)

		Convey("Finish ranks by score and disarms the timer", func() {
			f.clock.Advance(time.Hour)
			done, err := f.reg.Finish(f.ctx, rec.ID)
			So(err, ShouldBeNil)
			So(done.State, ShouldEqual, model.StateFinished)
			So(f.reg.Active(), ShouldEqual, 0)
			_, ok := f.timers.at(rec.ID)
			So(ok, ShouldBeFalse)

			res, err := f.reg.Result(rec.ID)
			So(err, ShouldBeNil)
			So(res.Standings, ShouldHaveLength, 2)
			So(res.Standings[0].PlayerID, ShouldEqual, "A")
			So(res.Standings[0].Score, ShouldEqual, 3)
			So(res.Standings[1].PlayerID, ShouldEqual, "B")

			Convey("A second finish is a no-op conflict", func() {
				_, err := f.reg.Finish(f.ctx, rec.ID)
				So(event.IsNotActive(err), ShouldBeTrue)
				So(f.reg.Active(), ShouldEqual, 0)
			})
		})

		Convey("EndNow moves the timer to the current time", func() {
			f.clock.Advance(10 * time.Minute)
			_, err := f.reg.EndNow(f.ctx, rec.ID)
			So(err, ShouldBeNil)
			at, ok := f.timers.at(rec.ID)
			So(ok, ShouldBeTrue)
			So(at, ShouldEqual, f.clock.Now())
		})

		Convey("Result before the end is a conflict", func() {
			_, err := f.reg.Result(rec.ID)
			So(errors.Is(err, event.ErrNotFinished), ShouldBeTrue)
		})

		Convey("Abandon refuses an active event", func() {
			err := f.reg.Abandon(f.ctx, rec.ID)
			So(errors.Is(err, event.ErrInvalidState), ShouldBeTrue)
			So(f.reg.Len(), ShouldEqual, 1)
		})
	})

	Convey("EndNow on a created event is a conflict", t, func() {
		f := newFixture()
		rec, err := f.reg.Create(f.ctx, scoring.KindSlayer, time.Hour)
		So(err, ShouldBeNil)
		_, err = f.reg.EndNow(f.ctx, rec.ID)
		So(errors.Is(err, event.ErrNotActive), ShouldBeTrue)
	})

	Convey("Abandon removes a created event everywhere", t, func() {
		f := newFixture()
		rec, err := f.reg.Create(f.ctx, scoring.KindSlayer, time.Hour)
		So(err, ShouldBeNil)

		So(f.reg.Abandon(f.ctx, rec.ID), ShouldBeNil)
		So(f.reg.Len(), ShouldEqual, 0)
		So(f.reg.List(), ShouldBeEmpty)
		stored, err := f.store.LoadEvents(f.ctx)
		So(err, ShouldBeNil)
		So(stored, ShouldBeEmpty)
	})
}

func TestLoadAll(t *testing.T) {
	Convey("Given a store holding one event of each state", t, func() {
		f := newFixture()
		created, err := f.reg.Create(f.ctx, scoring.KindSlayer, time.Hour)
		So(err, ShouldBeNil)
		running, err := f.reg.Create(f.ctx, scoring.KindSlayer, 2*time.Hour)
		So(err, ShouldBeNil)
		_, err = f.reg.Enroll(f.ctx, running.ID, "A", "Alice")
		So(err, ShouldBeNil)
		running, err = f.reg.Activate(f.ctx, running.ID)
		So(err, ShouldBeNil)
		ended, err := f.reg.Create(f.ctx, scoring.KindSlayer, time.Hour)
		So(err, ShouldBeNil)
		_, err = f.reg.Activate(f.ctx, ended.ID)
		So(err, ShouldBeNil)
		_, err = f.reg.Finish(f.ctx, ended.ID)
		So(err, ShouldBeNil)

		Convey("A restarted registry re-arms exactly the active event at its original end", func() {
			f.timers = newFakeTimers()
			f.clock.Advance(30 * time.Minute)
			restarted := f.build()

			n, err := restarted.LoadAll(f.ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 3)
			So(restarted.Active(), ShouldEqual, 1)
			So(f.timers.arms, ShouldEqual, 1)

			at, ok := f.timers.at(running.ID)
			So(ok, ShouldBeTrue)
			So(at, ShouldEqual, running.EndsAt)

			view, err := restarted.Get(running.ID)
			So(err, ShouldBeNil)
			So(view.Participants, ShouldHaveLength, 1)
			So(view.Participants[0].HasBaseline(), ShouldBeTrue)

			list := restarted.List()
			So(list[0].ID, ShouldEqual, created.ID)

			Convey("Loading twice does not duplicate events", func() {
				n, err := restarted.LoadAll(f.ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
				So(restarted.Len(), ShouldEqual, 3)
			})
		})

		Convey("Events of unconfigured kinds are skipped", func() {
			So(f.store.SaveEvent(f.ctx, model.EventRecord{
				ID: "legacy", Kind: "bedwars", State: model.StateActive,
				CreatedAt: f.clock.Now(), Duration: time.Hour,
			}), ShouldBeNil)

			restarted := f.build()
			n, err := restarted.LoadAll(f.ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 3)
			_, err = restarted.Get("legacy")
			So(errors.Is(err, registry.ErrEventNotFound), ShouldBeTrue)
		})
	})
}
