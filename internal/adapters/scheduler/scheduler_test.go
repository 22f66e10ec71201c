package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/okian/guildboard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type sink struct {
	mu    sync.Mutex
	tasks []model.FinishTask
	ch    chan model.FinishTask
}

func newSink() *sink { return &sink{ch: make(chan model.FinishTask, 16)} }

func (k *sink) post(ctx context.Context, t model.FinishTask) {
	k.mu.Lock()
	k.tasks = append(k.tasks, t)
	k.mu.Unlock()
	k.ch <- t
}

func (k *sink) count() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.tasks)
}

func (k *sink) wait(d time.Duration) (model.FinishTask, bool) {
	select {
	case t := <-k.ch:
		return t, true
	case <-time.After(d):
		return model.FinishTask{}, false
	}
}

func TestScheduler(t *testing.T) {
	Convey("Given a scheduler", t, func() {
		k := newSink()
		s := New(k.post)
		Reset(s.Stop)

		Convey("A timer fires once with its event and due time", func() {
			at := time.Now().Add(20 * time.Millisecond)
			s.Arm("e1", at)
			So(s.Len(), ShouldEqual, 1)
			due, ok := s.Armed("e1")
			So(ok, ShouldBeTrue)
			So(due.Equal(at), ShouldBeTrue)

			task, ok := k.wait(time.Second)
			So(ok, ShouldBeTrue)
			So(task.EventID, ShouldEqual, "e1")
			So(task.FireAt.Equal(at), ShouldBeTrue)
			So(s.Len(), ShouldEqual, 0)
			_, ok = k.wait(50 * time.Millisecond)
			So(ok, ShouldBeFalse)
		})

		Convey("A past due time fires immediately", func() {
			s.Arm("late", time.Now().Add(-time.Hour))
			task, ok := k.wait(time.Second)
			So(ok, ShouldBeTrue)
			So(task.EventID, ShouldEqual, "late")
		})

		Convey("Re-arming replaces the earlier timer", func() {
			first := s.Arm("e1", time.Now().Add(time.Hour))
			s.Arm("e1", time.Now().Add(10*time.Millisecond))
			So(s.Len(), ShouldEqual, 1)

			_, ok := k.wait(time.Second)
			So(ok, ShouldBeTrue)
			So(s.Cancel(first), ShouldBeFalse)
			_, ok = k.wait(50 * time.Millisecond)
			So(ok, ShouldBeFalse)
			So(k.count(), ShouldEqual, 1)
		})

		Convey("Cancel with the current handle disarms; a stale handle is a no-op", func() {
			stale := s.Arm("e1", time.Now().Add(time.Hour))
			current := s.Arm("e1", time.Now().Add(time.Hour))
			So(s.Cancel(stale), ShouldBeFalse)
			So(s.Len(), ShouldEqual, 1)
			So(s.Cancel(current), ShouldBeTrue)
			So(s.Len(), ShouldEqual, 0)
			So(s.Cancel(current), ShouldBeFalse)
		})

		Convey("Disarm and Stop clear timers", func() {
			s.Arm("a", time.Now().Add(time.Hour))
			s.Arm("b", time.Now().Add(time.Hour))
			So(s.Disarm("a"), ShouldBeTrue)
			So(s.Disarm("a"), ShouldBeFalse)
			s.Stop()
			So(s.Len(), ShouldEqual, 0)
			s.Arm("c", time.Now())
			_, ok := k.wait(50 * time.Millisecond)
			So(ok, ShouldBeFalse)
		})

		Convey("Different events fire independently", func() {
			s.Arm("a", time.Now().Add(5*time.Millisecond))
			s.Arm("b", time.Now().Add(10*time.Millisecond))
			got := map[string]bool{}
			for i := 0; i < 2; i++ {
				task, ok := k.wait(time.Second)
				So(ok, ShouldBeTrue)
				got[task.EventID] = true
			}
			So(got, ShouldResemble, map[string]bool{"a": true, "b": true})
		})
	})
}
