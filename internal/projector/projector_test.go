package projector_test

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/types"
	"github.com/okian/podium/internal/projector"
	"github.com/okian/podium/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// flakyWatcher forwards a real feed and can be broken on demand.
type flakyWatcher struct {
	inner repository.Watcher

	mu     sync.Mutex
	broken chan struct{}
}

func newFlakyWatcher(inner repository.Watcher) *flakyWatcher {
	return &flakyWatcher{inner: inner, broken: make(chan struct{})}
}

func (f *flakyWatcher) Watch(ctx context.Context, collections ...repository.Collection) (<-chan repository.Change, error) {
	in, err := f.inner.Watch(ctx, collections...)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	broken := f.broken
	f.mu.Unlock()

	out := make(chan repository.Change, 64)
	go func() {
		defer close(out)
		for {
			select {
			case c, ok := <-in:
				if !ok {
					return
				}
				out <- c
			case <-broken:
				return
			}
		}
	}()
	return out, nil
}

func (f *flakyWatcher) breakFeed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	close(f.broken)
	f.broken = make(chan struct{})
}

var errStoreDown = errors.New("store unavailable")

// failingReader reads through a memory store until fail is set.
type failingReader struct {
	*repository.MemoryStore
	fail atomic.Bool
}

func (r *failingReader) ListScores(ctx context.Context, eventID string) ([]model.ScoreRecord, error) {
	if r.fail.Load() {
		return nil, errStoreDown
	}
	return r.MemoryStore.ListScores(ctx, eventID)
}

func (r *failingReader) ListScoresForContestant(ctx context.Context, contestantID string) ([]model.ScoreRecord, error) {
	if r.fail.Load() {
		return nil, errStoreDown
	}
	return r.MemoryStore.ListScoresForContestant(ctx, contestantID)
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func seed(ctx context.Context, s *repository.MemoryStore) (model.Event, []model.Contestant) {
	ev := &model.Event{
		Name: "Gala",
		Criteria: []model.Criterion{
			{ID: "vocal", Name: "Vocal", Weight: 40, Enabled: true},
			{ID: "stage", Name: "Stage", Weight: 30, Enabled: true},
			{ID: "costume", Name: "Costume", Weight: 20, Enabled: true},
			{ID: "crowd", Name: "Crowd", Weight: 10, Enabled: true},
		},
	}
	So(s.CreateEvent(ctx, ev), ShouldBeNil)
	var out []model.Contestant
	for _, name := range []string{"Ada", "Bo", "Cy"} {
		c := &model.Contestant{EventID: ev.ID, Name: name}
		So(s.CreateContestant(ctx, c), ShouldBeNil)
		out = append(out, *c)
	}
	return *ev, out
}

func score(ctx context.Context, s *repository.MemoryStore, ev model.Event, c model.Contestant, judge string, v map[string]float64) {
	So(s.AppendScore(ctx, &model.ScoreRecord{JudgeID: judge, ContestantID: c.ID, EventID: ev.ID, Scores: v}), ShouldBeNil)
}

func TestProjector(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started projector over a memory store", t, func() {
		store := repository.NewMemoryStore()
		feed := newFlakyWatcher(store)
		p := projector.New(store, feed, projector.WithWorkers(2), projector.WithMaxSubscribers(2))
		runCtx, cancel := context.WithCancel(ctx)
		So(p.Start(runCtx), ShouldBeNil)
		Reset(func() {
			_ = p.Shutdown(ctx)
			cancel()
			_ = store.Close()
		})

		ev, cs := seed(ctx, store)
		score(ctx, store, ev, cs[1], "j1", map[string]float64{"vocal": 40, "stage": 30, "costume": 20, "crowd": 10})

		Convey("When the event is viewed for the first time", func() {
			view, err := p.View(ctx, ev.ID)
			So(err, ShouldBeNil)

			Convey("Then it is tracked and ranked from the store", func() {
				So(p.Tracked(), ShouldContain, ev.ID)
				So(view.Connected, ShouldBeTrue)
				So(view.EventID, ShouldEqual, ev.ID)
				So(len(view.Standings.Standings), ShouldEqual, 3)
				So(view.Standings.Standings[0].ContestantID, ShouldEqual, cs[1].ID)
				So(view.Standings.Standings[0].Leading, ShouldBeTrue)
				So(view.Standings.Standings[1].Name, ShouldEqual, "Ada")
				So(view.Standings.Standings[1].PerCriterionAverage["vocal"], ShouldBeNil)
			})
		})

		Convey("When scores arrive for a tracked event", func() {
			_, err := p.View(ctx, ev.ID)
			So(err, ShouldBeNil)
			score(ctx, store, ev, cs[2], "j1", map[string]float64{"vocal": 40, "stage": 30, "costume": 20, "crowd": 10})
			score(ctx, store, ev, cs[2], "j2", map[string]float64{"vocal": 30, "stage": 20, "costume": 15, "crowd": 8})

			Convey("Then the view converges to the recomputed ranking", func() {
				ok := eventually(func() bool {
					v, err := p.View(ctx, ev.ID)
					return err == nil && v.Standings.Standings[0].ContestantID == cs[1].ID &&
						v.Standings.Standings[1].ContestantID == cs[2].ID &&
						v.Standings.Standings[1].JudgeCount == 2
				})
				So(ok, ShouldBeTrue)
				v, _ := p.View(ctx, ev.ID)
				So(v.Standings.Standings[1].TotalWeighted, ShouldAlmostEqual, 25.9, 1e-9)
			})
		})

		Convey("When a criterion is disabled", func() {
			_, err := p.View(ctx, ev.ID)
			So(err, ShouldBeNil)
			crit := append([]model.Criterion(nil), ev.Criteria...)
			crit[0].Enabled = false
			_, err = store.UpdateCriteria(ctx, ev.ID, crit)
			So(err, ShouldBeNil)

			Convey("Then the refresh drops its contribution and warns about weights", func() {
				ok := eventually(func() bool {
					v, err := p.View(ctx, ev.ID)
					return err == nil && math.Abs(v.Standings.Standings[0].TotalWeighted-14) < 1e-9 && len(v.Warnings) == 1
				})
				So(ok, ShouldBeTrue)
			})
		})

		Convey("When a client subscribes", func() {
			subCtx, unsubscribe := context.WithCancel(ctx)
			ch, err := p.Subscribe(subCtx, ev.ID)
			So(err, ShouldBeNil)
			first := <-ch

			Convey("Then it gets the current view and later versions", func() {
				So(first.Version, ShouldBeGreaterThan, 0)
				score(ctx, store, ev, cs[0], "j1", map[string]float64{"vocal": 100})
				var next types.LiveView
				ok := eventually(func() bool {
					select {
					case next = <-ch:
					default:
					}
					return next.Version > first.Version
				})
				So(ok, ShouldBeTrue)
				unsubscribe()
				So(eventually(func() bool {
					_, open := <-ch
					return !open
				}), ShouldBeTrue)
			})

			Convey("Then subscriptions beyond the limit are refused", func() {
				_, err := p.Subscribe(ctx, ev.ID)
				So(err, ShouldBeNil)
				_, err = p.Subscribe(ctx, ev.ID)
				So(errors.Is(err, projector.ErrTooManySubscribers), ShouldBeTrue)
				unsubscribe()
			})
		})

		Convey("When the change feed fails", func() {
			ch, err := p.Subscribe(ctx, ev.ID)
			So(err, ShouldBeNil)
			<-ch
			feed.breakFeed()

			Convey("Then reads report the disconnect with the last known view", func() {
				So(eventually(func() bool { return !p.Connected() }), ShouldBeTrue)
				view, err := p.View(ctx, ev.ID)
				So(errors.Is(err, projector.ErrDisconnected), ShouldBeTrue)
				So(view.Connected, ShouldBeFalse)
				So(len(view.Standings.Standings), ShouldEqual, 3)

				var last types.LiveView
				So(eventually(func() bool {
					select {
					case last = <-ch:
					default:
					}
					return last.Version > 0 && !last.Connected
				}), ShouldBeTrue)
			})

			Convey("Then reconnecting catches up on missed changes", func() {
				So(eventually(func() bool { return !p.Connected() }), ShouldBeTrue)
				score(ctx, store, ev, cs[0], "j1", map[string]float64{"vocal": 100})

				So(p.Reconnect(ctx), ShouldBeNil)
				view, err := p.View(ctx, ev.ID)
				So(err, ShouldBeNil)
				So(view.Connected, ShouldBeTrue)
				So(view.Standings.Standings[0].ContestantID, ShouldEqual, cs[0].ID)
			})
		})

		Convey("When an unknown event is viewed", func() {
			_, err := p.View(ctx, "missing")

			Convey("Then it is not found and not tracked", func() {
				So(errors.Is(err, repository.ErrEventNotFound), ShouldBeTrue)
				So(p.Tracked(), ShouldNotContain, "missing")
			})
		})
	})
}

func TestProjector_RecomputeFailure(t *testing.T) {
	ctx := context.Background()

	Convey("Given a tracked event whose store reads start failing", t, func() {
		store := repository.NewMemoryStore()
		reader := &failingReader{MemoryStore: store}
		p := projector.New(reader, store, projector.WithWorkers(1))
		runCtx, cancel := context.WithCancel(ctx)
		So(p.Start(runCtx), ShouldBeNil)
		Reset(func() {
			_ = p.Shutdown(ctx)
			cancel()
			_ = store.Close()
		})

		ev, cs := seed(ctx, store)
		ch, err := p.Subscribe(ctx, ev.ID)
		So(err, ShouldBeNil)
		<-ch

		reader.fail.Store(true)
		score(ctx, store, ev, cs[0], "j1", map[string]float64{"vocal": 90})

		Convey("When the recompute job fails", func() {
			So(eventually(func() bool { return p.Stale() == 1 }), ShouldBeTrue)

			Convey("Then the last view is served flagged as not current", func() {
				view, err := p.View(ctx, ev.ID)
				So(errors.Is(err, projector.ErrDisconnected), ShouldBeTrue)
				So(view.Connected, ShouldBeFalse)
				So(view.Stale, ShouldBeTrue)
				So(view.Standings.Standings[0].TotalWeighted, ShouldEqual, 0)
				So(p.Connected(), ShouldBeTrue)

				var last types.LiveView
				So(eventually(func() bool {
					select {
					case last = <-ch:
					default:
					}
					return last.Stale && !last.Connected
				}), ShouldBeTrue)
			})

			Convey("Then the next read refreshes once the store recovers", func() {
				reader.fail.Store(false)
				view, err := p.View(ctx, ev.ID)
				So(err, ShouldBeNil)
				So(view.Connected, ShouldBeTrue)
				So(view.Stale, ShouldBeFalse)
				So(view.Standings.Standings[0].ContestantID, ShouldEqual, cs[0].ID)
				So(view.Standings.Standings[0].TotalWeighted, ShouldAlmostEqual, 36, 1e-9)
				So(p.Stale(), ShouldEqual, 0)
			})
		})
	})
}
