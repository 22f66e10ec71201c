package event_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/guildboard/internal/domain/event"
	"github.com/okian/guildboard/internal/domain/model"
	"github.com/okian/guildboard/internal/domain/scoring"
	"github.com/okian/guildboard/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func zombieRules() scoring.RuleSet {
	return scoring.RuleSet{
		Kind:    scoring.KindSlayer,
		Counter: model.CounterAttempts,
		Weights: map[string]map[int]float64{"zombie": {0: 1, 1: 2}},
	}
}

type fixture struct {
	ctx   context.Context
	stats *fakeStats
	store *fakeStore
	clock *clock
	ev    *event.Event
}

func newFixture() *fixture {
	f := &fixture{ctx: context.Background(), stats: newFakeStats(), store: newFakeStore(), clock: newClock()}
	f.ev = event.New("ev-1", zombieRules(), time.Hour, event.Deps{
		Stats:            f.stats,
		Store:            f.store,
		Clock:            f.clock.Now,
		FetchConcurrency: 2,
	})
	return f
}

func TestLifecycle(t *testing.T) {
	Convey("Given a created slayer event", t, func() {
		f := newFixture()
		So(f.ev.Record().State, ShouldEqual, model.StateCreated)

		Convey("Players enrolled before activation get their baseline at activation", func() {
			f.stats.queue("A", zombie("p", 5, 2), nil).queue("A", zombie("p", 9, 2), nil)
			_, err := f.ev.AddParticipant(f.ctx, "A", "Alice")
			So(err, ShouldBeNil)
			So(f.stats.callCount("A"), ShouldEqual, 0)

			rec, err := f.ev.Activate(f.ctx)
			So(err, ShouldBeNil)
			So(rec.State, ShouldEqual, model.StateActive)
			So(rec.EndsAt, ShouldEqual, f.clock.Now().Add(time.Hour))
			So(f.stats.callCount("A"), ShouldEqual, 1)

			base, err := f.ev.Participant("A")
			So(err, ShouldBeNil)
			So(base.Baseline.Get("zombie", 0).Attempts, ShouldEqual, 5)

			Convey("Finishing scores the clamped weighted delta", func() {
				f.clock.Advance(time.Hour)
				rec, err := f.ev.Finish(f.ctx)
				So(err, ShouldBeNil)
				So(rec.State, ShouldEqual, model.StateFinished)
				So(rec.FinishedAt, ShouldEqual, f.clock.Now())

				res, err := f.ev.Result()
				So(err, ShouldBeNil)
				So(res.Standings, ShouldHaveLength, 1)
				So(res.Standings[0].PlayerID, ShouldEqual, "A")
				So(res.Standings[0].DisplayName, ShouldEqual, "Alice")
				So(res.Standings[0].Score, ShouldEqual, 4)
				So(res.Standings[0].Rank, ShouldEqual, 1)
				So(res.Unscored, ShouldBeEmpty)

				stored, ok := f.store.stored("ev-1")
				So(ok, ShouldBeTrue)
				So(stored.State, ShouldEqual, model.StateFinished)
				So(f.store.storedParticipant("ev-1", "A").Current.Get("zombie", 0).Attempts, ShouldEqual, 9)
			})

			Convey("A second activation is rejected and changes nothing", func() {
				_, err := f.ev.Activate(f.ctx)
				So(errors.Is(err, event.ErrInvalidState), ShouldBeTrue)
				So(errors.Is(err, model.ErrConflict), ShouldBeTrue)
				So(f.ev.Record().EndsAt, ShouldEqual, rec.EndsAt)
				So(f.stats.callCount("A"), ShouldEqual, 1)
			})

			Convey("Finishing twice runs the pass once", func() {
				_, err := f.ev.Finish(f.ctx)
				So(err, ShouldBeNil)
				_, err = f.ev.Finish(f.ctx)
				So(errors.Is(err, event.ErrNotActive), ShouldBeTrue)
				So(event.IsNotActive(err), ShouldBeTrue)
				So(f.stats.callCount("A"), ShouldEqual, 2)
			})
		})

		Convey("Tied scores rank in enrollment order", func() {
			f.stats.queue("A", zombie("", 0, 0), nil).queue("A", zombie("", 10, 0), nil)
			f.stats.queue("B", zombie("", 0, 0), nil).queue("B", zombie("", 0, 5), nil)
			_, err := f.ev.AddParticipant(f.ctx, "A", "")
			So(err, ShouldBeNil)
			_, err = f.ev.AddParticipant(f.ctx, "B", "")
			So(err, ShouldBeNil)
			_, err = f.ev.Activate(f.ctx)
			So(err, ShouldBeNil)
			_, err = f.ev.Finish(f.ctx)
			So(err, ShouldBeNil)

			res, err := f.ev.Result()
			So(err, ShouldBeNil)
			So(res.Standings, ShouldHaveLength, 2)
			So(res.Standings[0].PlayerID, ShouldEqual, "A")
			So(res.Standings[0].Score, ShouldEqual, 10)
			So(res.Standings[1].PlayerID, ShouldEqual, "B")
			So(res.Standings[1].Score, ShouldEqual, 10)
			So(res.Standings[0].DisplayName, ShouldEqual, "A")
		})

		Convey("A player the provider cannot find is unscored but the event still finishes", func() {
			f.stats.queue("A", zombie("", 1, 1), nil).queue("A", zombie("", 2, 1), nil)
			f.stats.queue("C", nil, errStatsNotFound)
			_, _ = f.ev.AddParticipant(f.ctx, "A", "")
			_, _ = f.ev.AddParticipant(f.ctx, "C", "Carol")

			_, err := f.ev.Activate(f.ctx)
			So(err, ShouldBeNil)
			_, err = f.ev.Finish(f.ctx)
			So(err, ShouldBeNil)
			So(f.stats.callCount("C"), ShouldEqual, 1)

			res, err := f.ev.Result()
			So(err, ShouldBeNil)
			So(res.Standings, ShouldHaveLength, 1)
			So(res.Unscored, ShouldHaveLength, 1)
			So(res.Unscored[0].PlayerID, ShouldEqual, "C")
			So(res.Unscored[0].Stage, ShouldEqual, "baseline")
			So(res.Unscored[0].Reason, ShouldContainSubstring, "not found")
		})

		Convey("A final fetch failure leaves that participant unscored", func() {
			f.stats.queue("A", zombie("", 1, 1), nil).queue("A", nil, fmt.Errorf("timeout: %w", model.ErrUnavailable))
			_, _ = f.ev.AddParticipant(f.ctx, "A", "")
			_, _ = f.ev.Activate(f.ctx)
			_, err := f.ev.Finish(f.ctx)
			So(err, ShouldBeNil)
			res, _ := f.ev.Result()
			So(res.Standings, ShouldBeEmpty)
			So(res.Unscored[0].Stage, ShouldEqual, "final")
		})

		Convey("Snapshots with keys outside the rule-set are treated as fetch failures", func() {
			bad := model.NewSnapshot("", time.Time{})
			bad.Set("ghast", 0, model.Counters{Attempts: 1})
			f.stats.queue("A", bad, nil)
			_, _ = f.ev.AddParticipant(f.ctx, "A", "")
			_, err := f.ev.Activate(f.ctx)
			So(err, ShouldBeNil)
			_, err = f.ev.Participant("A")
			So(err, ShouldBeNil)
			p, _ := f.ev.Participant("A")
			So(p.HasBaseline(), ShouldBeFalse)
			So(p.BaselineError, ShouldContainSubstring, "ghast")
		})

		Convey("A late joiner's baseline is taken when they join", func() {
			_, err := f.ev.Activate(f.ctx)
			So(err, ShouldBeNil)
			f.stats.queue("L", zombie("", 50, 0), nil).queue("L", zombie("", 53, 0), nil)
			f.clock.Advance(10 * time.Minute)
			p, err := f.ev.AddParticipant(f.ctx, "L", "Late")
			So(err, ShouldBeNil)
			So(p.Baseline.Get("zombie", 0).Attempts, ShouldEqual, 50)
			So(p.EnrolledAt, ShouldEqual, f.clock.Now())

			_, err = f.ev.Finish(f.ctx)
			So(err, ShouldBeNil)
			res, _ := f.ev.Result()
			So(res.Standings[0].Score, ShouldEqual, 3)
		})

		Convey("Enrollment rules", func() {
			_, err := f.ev.AddParticipant(f.ctx, "A", "")
			So(err, ShouldBeNil)
			_, err = f.ev.AddParticipant(f.ctx, "A", "again")
			So(errors.Is(err, event.ErrAlreadyEnrolled), ShouldBeTrue)
			_, err = f.ev.AddParticipant(f.ctx, "", "nobody")
			So(errors.Is(err, event.ErrInvalidParticipant), ShouldBeTrue)

			_, _ = f.ev.Activate(f.ctx)
			_, _ = f.ev.Finish(f.ctx)
			_, err = f.ev.AddParticipant(f.ctx, "Z", "")
			So(errors.Is(err, event.ErrEventClosed), ShouldBeTrue)
			So(f.ev.View().Participants, ShouldHaveLength, 1)
		})

		Convey("Finish and result require the right state", func() {
			_, err := f.ev.Finish(f.ctx)
			So(errors.Is(err, event.ErrNotActive), ShouldBeTrue)
			_, err = f.ev.Result()
			So(errors.Is(err, event.ErrNotFinished), ShouldBeTrue)
			_, _ = f.ev.Activate(f.ctx)
			_, err = f.ev.Result()
			So(errors.Is(err, event.ErrNotFinished), ShouldBeTrue)
		})

		Convey("An empty event finishes with empty standings", func() {
			_, _ = f.ev.Activate(f.ctx)
			_, err := f.ev.Finish(f.ctx)
			So(err, ShouldBeNil)
			res, err := f.ev.Result()
			So(err, ShouldBeNil)
			So(res.Standings, ShouldBeEmpty)
			So(res.Unscored, ShouldBeEmpty)
		})
	})
}

func TestPersistenceFailures(t *testing.T) {
	Convey("Given a created event with one participant", t, func() {
		f := newFixture()
		f.stats.queue("A", zombie("", 1, 0), nil).queue("A", zombie("", 4, 0), nil)
		_, err := f.ev.AddParticipant(f.ctx, "A", "")
		So(err, ShouldBeNil)

		Convey("A failed activation write keeps the event Created", func() {
			f.store.failSaves = 1
			_, err := f.ev.Activate(f.ctx)
			So(errors.Is(err, event.ErrPersistence), ShouldBeTrue)
			So(errors.Is(err, model.ErrPersistence), ShouldBeTrue)
			So(f.ev.Record().State, ShouldEqual, model.StateCreated)
			p, _ := f.ev.Participant("A")
			So(p.HasBaseline(), ShouldBeFalse)
		})

		Convey("A failed enrollment write does not enroll", func() {
			f.store.failSaves = 1
			_, err := f.ev.AddParticipant(f.ctx, "B", "")
			So(errors.Is(err, event.ErrPersistence), ShouldBeTrue)
			_, err = f.ev.Participant("B")
			So(errors.Is(err, event.ErrParticipantNotFound), ShouldBeTrue)
		})

		Convey("A failed finish write moves the event to Failed and keeps the fetched data", func() {
			_, err := f.ev.Activate(f.ctx)
			So(err, ShouldBeNil)
			f.store.failWhen = func(rec model.EventRecord) bool { return rec.State == model.StateFinished }

			rec, err := f.ev.Finish(f.ctx)
			So(errors.Is(err, event.ErrPersistence), ShouldBeTrue)
			So(rec.State, ShouldEqual, model.StateFailed)
			So(rec.Failure, ShouldContainSubstring, "disk full")

			stored, _ := f.store.stored("ev-1")
			So(stored.State, ShouldEqual, model.StateFailed)

			res, err := f.ev.Result()
			So(err, ShouldBeNil)
			So(res.Event.State, ShouldEqual, model.StateFailed)
			So(res.Standings[0].Score, ShouldEqual, 3)

			_, err = f.ev.Finish(f.ctx)
			So(errors.Is(err, event.ErrNotActive), ShouldBeTrue)
		})

		Convey("When the failed write is lost too the store keeps the event Active and the gap is counted", func() {
			_, err := f.ev.Activate(f.ctx)
			So(err, ShouldBeNil)
			f.store.failWhen = func(rec model.EventRecord) bool { return rec.State != model.StateActive }

			rec, err := f.ev.Finish(f.ctx)
			So(errors.Is(err, event.ErrPersistence), ShouldBeTrue)
			So(rec.State, ShouldEqual, model.StateFailed)

			stored, _ := f.store.stored("ev-1")
			So(stored.State, ShouldEqual, model.StateActive)

			n, err := testutil.GatherAndCount(metrics.GetRegistry(), "guildboard_events_store_divergence_total")
			So(err, ShouldBeNil)
			So(n, ShouldBeGreaterThan, 0)
		})
	})
}

func TestDiscard(t *testing.T) {
	Convey("Given a created event that was saved", t, func() {
		f := newFixture()
		So(f.ev.Save(f.ctx), ShouldBeNil)

		Convey("Discard deletes it and blocks further use", func() {
			So(f.ev.Discard(f.ctx), ShouldBeNil)
			_, ok := f.store.stored("ev-1")
			So(ok, ShouldBeFalse)
			_, err := f.ev.Activate(f.ctx)
			So(errors.Is(err, event.ErrDiscarded), ShouldBeTrue)
			_, err = f.ev.AddParticipant(f.ctx, "A", "")
			So(errors.Is(err, event.ErrDiscarded), ShouldBeTrue)
			So(errors.Is(f.ev.Discard(f.ctx), event.ErrDiscarded), ShouldBeTrue)
		})

		Convey("An active event cannot be discarded", func() {
			_, _ = f.ev.Activate(f.ctx)
			So(errors.Is(f.ev.Discard(f.ctx), event.ErrInvalidState), ShouldBeTrue)
		})
	})
}

func TestConcurrentEnrollment(t *testing.T) {
	Convey("Concurrent joins on one active event each get a distinct position", t, func() {
		f := newFixture()
		const n = 20
		for i := 0; i < n; i++ {
			f.stats.queue(fmt.Sprintf("p%02d", i), zombie("", 0, 0), nil)
		}
		_, err := f.ev.Activate(f.ctx)
		So(err, ShouldBeNil)

		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, _ = f.ev.AddParticipant(f.ctx, fmt.Sprintf("p%02d", i), "")
			}(i)
		}
		wg.Wait()

		ps := f.ev.View().Participants
		So(ps, ShouldHaveLength, n)
		seen := map[int]bool{}
		for i, p := range ps {
			So(p.Position, ShouldEqual, i)
			seen[p.Position] = true
			So(p.HasBaseline(), ShouldBeTrue)
		}
		So(len(seen), ShouldEqual, n)
	})
}

func TestRestore(t *testing.T) {
	Convey("Restore rebuilds roster order from positions", t, func() {
		f := newFixture()
		stored := model.StoredEvent{
			Event: model.EventRecord{ID: "ev-9", Kind: scoring.KindSlayer, State: model.StateActive, Duration: time.Hour},
			Participants: []model.ParticipantRecord{
				{EventID: "ev-9", PlayerID: "second", Position: 1, Baseline: zombie("", 0, 0)},
				{EventID: "ev-9", PlayerID: "first", Position: 0, Baseline: zombie("", 0, 0)},
			},
		}
		ev := event.Restore(stored, zombieRules(), event.Deps{Stats: f.stats, Store: f.store, Clock: f.clock.Now})
		ps := ev.View().Participants
		So(ps[0].PlayerID, ShouldEqual, "first")
		So(ps[1].PlayerID, ShouldEqual, "second")

		f.stats.queue("late", zombie("", 0, 0), nil)
		p, err := ev.AddParticipant(f.ctx, "late", "")
		So(err, ShouldBeNil)
		So(p.Position, ShouldEqual, 2)
	})
}
